package act

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

var RelevantObjectBindingsSchema = schema.Must("RelevantObjectBindings", []schema.Field{
	schema.NewField("source_object_type", schema.Nested(ObjectTypeSchema), schema.SerializeWith(schema.SerializeAttr("id"))),
	schema.NewField("destination_object_type", schema.Nested(ObjectTypeSchema), schema.SerializeWith(schema.SerializeAttr("id"))),
	schema.NewField("bidirectional_binding", schema.Default(false)),
})

var RelevantFactBindingsSchema = schema.Must("RelevantFactBindings", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
	schema.NewField("fact_type", schema.Flatten()),
},
	schema.SerializeAs(func(e *schema.Entity, _ schema.Document) any {
		if id := e.GetString("id"); id != "" {
			return schema.Document{"factType": id}
		}
		return nil
	}),
	schema.TruthyWhen(func(e *schema.Entity) bool {
		return e.GetString("id") != ""
	}),
)

var FactTypeSchema = schema.Must("FactType", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
	schema.NewField("default_confidence"),
	schema.NewField("validator", schema.Default(DefaultValidatorName)),
	schema.NewField("validator_parameter", schema.Default(DefaultValidator)),
	schema.NewField("relevant_object_bindings", schema.Nested(RelevantObjectBindingsSchema)),
	schema.NewField("relevant_fact_bindings", schema.Nested(RelevantFactBindingsSchema)),
	schema.NewField("namespace", schema.Nested(NamespaceSchema)),
}, schema.IdentityFields("name", "namespace"))

// NewObjectBinding describes that facts of a type may bind the two object types.
// Either object type may be nil.
func NewObjectBinding(ctx context.Context, source, destination *ObjectType, bidirectional bool) (*schema.Entity, error) {
	var src, dst any
	if source != nil {
		src = source.Entity.Clone()
	}
	if destination != nil {
		dst = destination.Entity.Clone()
	}

	return RelevantObjectBindingsSchema.Build(ctx, []any{src, dst, bidirectional}, nil)
}

func NewFactBinding(ctx context.Context, factType *FactType) (*schema.Entity, error) {
	return RelevantFactBindingsSchema.Build(ctx, nil, schema.Document{"name": factType.Name(), "id": factType.ID()})
}

// bindingKey identifies an object binding by the ids of its object types and its direction.
func bindingKey(binding *schema.Entity) string {
	id := func(name string) string {
		if t := binding.GetRef(name); t != nil {
			return t.GetString("id")
		}
		return ""
	}

	return fmt.Sprintf("%s|%s|%t", id("source_object_type"), id("destination_object_type"), binding.GetBool("bidirectional_binding"))
}

type FactType struct {
	base
}

func DecodeFactType(ctx context.Context, doc schema.Document) (*FactType, error) {
	e, err := FactTypeSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &FactType{base{Entity: e}}, nil
}

func (ft *FactType) Configure(a *Act) *FactType {
	ft.act = a
	return ft
}

func (ft *FactType) Name() string {
	return ft.GetString("name")
}

func (ft *FactType) ObjectBindings() []*schema.Entity {
	return ft.GetRefs("relevant_object_bindings")
}

func (ft *FactType) FactBindings() []*schema.Entity {
	return ft.GetRefs("relevant_fact_bindings")
}

// IsMeta reports if the fact type binds other facts rather than objects.
func (ft *FactType) IsMeta() bool {
	for _, b := range ft.FactBindings() {
		if b.Truthy() {
			return true
		}
	}
	return false
}

func (ft *FactType) Add(ctx context.Context) error {
	response, err := ft.post(ctx, "v1/factType", ft.Serialize())
	if err != nil {
		return err
	}

	if err = ft.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("created fact type", slog.String("name", ft.Name()), slog.String("id", ft.ID()))
	return nil
}

func (ft *FactType) AddObjectBinding(ctx context.Context, source, destination *ObjectType, bidirectional bool) error {
	binding, err := NewObjectBinding(ctx, source, destination, bidirectional)
	if err != nil {
		return err
	}

	return ft.AddObjectBindings(ctx, []*schema.Entity{binding})
}

// AddObjectBindings adds the bindings that the fact type does not already have.
func (ft *FactType) AddObjectBindings(ctx context.Context, bindings []*schema.Entity) error {
	if ft.ID() == "" {
		return errors.NewMissingFieldError("must have fact type id to add object bindings")
	}

	log := logging.GetFromContext(ctx)

	existing := map[string]struct{}{}
	for _, b := range ft.ObjectBindings() {
		existing[bindingKey(b)] = struct{}{}
	}

	added := []*schema.Entity{}
	for _, b := range bindings {
		key := bindingKey(b)
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		added = append(added, b)
	}

	if len(added) == 0 {
		log.Warn("all bindings specified already exist", slog.String("fact_type", ft.Name()))
		return nil
	}

	serialized := make([]any, 0, len(added))
	for _, b := range added {
		serialized = append(serialized, b.WireValue())
	}

	response, err := ft.put(ctx, "v1/factType/uuid/"+url.PathEscape(ft.ID()), schema.Document{"addObjectBindings": serialized})
	if err != nil {
		return err
	}

	if err = ft.reload(ctx, response); err != nil {
		return err
	}

	for _, b := range added {
		name := func(field string) string {
			if t := b.GetRef(field); t != nil {
				return t.GetString("name")
			}
			return ""
		}

		log.Info("added binding to fact type",
			slog.String("fact_type", ft.Name()),
			slog.String("source", name("source_object_type")),
			slog.String("destination", name("destination_object_type")),
			slog.Bool("bidirectional", b.GetBool("bidirectional_binding")),
		)
	}

	return nil
}

func (ft *FactType) AddFactBinding(ctx context.Context, factType *FactType) error {
	binding, err := NewFactBinding(ctx, factType)
	if err != nil {
		return err
	}

	return ft.AddFactBindings(ctx, []*schema.Entity{binding})
}

// AddFactBindings adds the fact type bindings, identified by id, that are not already present.
func (ft *FactType) AddFactBindings(ctx context.Context, bindings []*schema.Entity) error {
	if ft.ID() == "" {
		return errors.NewMissingFieldError("must have fact type id to add fact bindings")
	}

	log := logging.GetFromContext(ctx)

	existing := map[string]struct{}{}
	for _, b := range ft.FactBindings() {
		existing[b.GetString("id")] = struct{}{}
	}

	added := []*schema.Entity{}
	for _, b := range bindings {
		id := b.GetString("id")
		if _, ok := existing[id]; ok {
			continue
		}
		existing[id] = struct{}{}
		added = append(added, b)
	}

	if len(added) == 0 {
		log.Warn("all bindings specified already exist", slog.String("fact_type", ft.Name()))
		return nil
	}

	serialized := make([]any, 0, len(added))
	for _, b := range added {
		serialized = append(serialized, b.WireValue())
	}

	response, err := ft.put(ctx, "v1/factType/uuid/"+url.PathEscape(ft.ID()), schema.Document{"addFactBindings": serialized})
	if err != nil {
		return err
	}

	if err = ft.reload(ctx, response); err != nil {
		return err
	}

	for _, b := range added {
		log.Info("added binding to meta fact type", slog.String("fact_type", ft.Name()), slog.String("binding", b.GetString("name")))
	}

	return nil
}

func (ft *FactType) Rename(ctx context.Context, name string) error {
	if ft.ID() == "" {
		return errors.NewMissingFieldError("must have fact type id to rename")
	}

	oldName := ft.Name()

	response, err := ft.put(ctx, "v1/factType/uuid/"+url.PathEscape(ft.ID()), schema.Document{"name": name})
	if err != nil {
		return err
	}

	if err = ft.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("renamed fact type", slog.String("id", ft.ID()), slog.String("from", oldName), slog.String("to", name))
	return nil
}
