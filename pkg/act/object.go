package act

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

var ObjectTypeSchema = schema.Must("ObjectType", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
	schema.NewField("validator", schema.Default(DefaultValidatorName)),
	schema.NewField("validator_parameter", schema.Default(DefaultObjectValidator)),
	schema.NewField("namespace", schema.Nested(NamespaceSchema)),
	schema.NewField("index_option"),
}, schema.IdentityFields("name", "namespace"))

var ObjectStatisticsSchema = schema.Must("ObjectStatistics", []schema.Field{
	schema.NewField("type", schema.Nested(ObjectTypeSchema)),
	schema.NewField("count"),
	schema.NewField("last_seen_timestamp", schema.NoSerialize()),
	schema.NewField("last_added_timestamp", schema.NoSerialize()),
})

var ObjectSchema = schema.Must("Object", []schema.Field{
	schema.NewField("type", schema.Nested(ObjectTypeSchema), schema.SerializeWith(schema.SerializeAttr("name"))),
	schema.NewField("value"),
	schema.NewField("id"),
	schema.NewField("statistics", schema.Nested(ObjectStatisticsSchema), schema.NoSerialize()),
	schema.NewField("object", schema.Flatten()),
	schema.NewField("direction"),
	schema.NewField("object_type", schema.DeserializeTarget("type"), schema.NoSerialize()),
	schema.NewField("object_value", schema.DeserializeTarget("value"), schema.NoSerialize()),
},
	schema.IdentityFields("type", "value"),
	schema.SerializeAs(func(e *schema.Entity, doc schema.Document) any {
		if e.GetString("id") == "" && e.GetString("value") == "" {
			return nil
		}
		return doc
	}),
	schema.TruthyWhen(func(e *schema.Entity) bool {
		t := e.GetRef("type")
		return e.GetString("id") != "" || (t != nil && t.GetString("name") != "" && e.GetString("value") != "")
	}),
)

type ObjectType struct {
	base
}

func DecodeObjectType(ctx context.Context, doc schema.Document) (*ObjectType, error) {
	e, err := ObjectTypeSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &ObjectType{base{Entity: e}}, nil
}

func (ot *ObjectType) Configure(a *Act) *ObjectType {
	ot.act = a
	return ot
}

func (ot *ObjectType) Name() string {
	return ot.GetString("name")
}

func (ot *ObjectType) Add(ctx context.Context) error {
	response, err := ot.post(ctx, "v1/objectType", ot.Serialize())
	if err != nil {
		return err
	}

	if err = ot.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("created object type", slog.String("name", ot.Name()), slog.String("id", ot.ID()))
	return nil
}

type Object struct {
	base
}

func wrapObject(e *schema.Entity, a *Act) *Object {
	if e == nil {
		return nil
	}
	return &Object{base{Entity: e, act: a}}
}

func DecodeObject(ctx context.Context, doc schema.Document) (*Object, error) {
	e, err := ObjectSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Object{base{Entity: e}}, nil
}

func (o *Object) Configure(a *Act) *Object {
	o.act = a
	return o
}

func (o *Object) TypeName() string {
	if t := o.GetRef("type"); t != nil {
		return t.GetString("name")
	}
	return ""
}

func (o *Object) Value() string {
	return o.GetString("value")
}

// Statistics lists the number of facts of each type bound to the object.
func (o *Object) Statistics() []*schema.Entity {
	return o.GetRefs("statistics")
}

// String renders the object as (type/value).
func (o *Object) String() string {
	return fmt.Sprintf("(%s/%s)", o.TypeName(), o.Value())
}

func (o *Object) path(operation string) (string, error) {
	if o.ID() != "" {
		return fmt.Sprintf("v1/object/uuid/%s/%s", url.PathEscape(o.ID()), operation), nil
	}

	if o.TypeName() != "" && o.Value() != "" {
		return fmt.Sprintf("v1/object/%s/%s/%s", url.PathEscape(o.TypeName()), url.PathEscape(o.Value()), operation), nil
	}

	return "", errors.NewMissingFieldError("must have either object id or object type/value to get facts")
}

// Facts returns the facts bound to the object.
func (o *Object) Facts(ctx context.Context) (*ResultSet[*Fact], error) {
	path, err := o.path("facts")
	if err != nil {
		return nil, err
	}

	response, err := o.post(ctx, path, schema.Document{})
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, o.act.decodeFact)
}

// TraverseResult holds the elements of a traversal sorted by kind.
type TraverseResult struct {
	Facts     []*Fact
	MetaFacts []*Fact
	Objects   []*Object
	Unknown   []schema.Document
}

// Traverse runs a graph query starting at the object.
func (o *Object) Traverse(ctx context.Context, query string) (*TraverseResult, error) {
	path, err := o.path("traverse")
	if err != nil {
		return nil, err
	}

	response, err := o.post(ctx, path, schema.Document{"query": query})
	if err != nil {
		return nil, err
	}

	data, ok := response["data"].([]any)
	if !ok {
		return nil, errors.NewResponseError("traverse response should be list: %v", response["data"])
	}

	result := &TraverseResult{}
	log := logging.GetFromContext(ctx)

	for _, element := range data {
		doc, ok := element.(schema.Document)
		if !ok {
			log.Warn("unable to guess element type", slog.Any("element", element))
			continue
		}

		_, isMeta := doc["inReferenceTo"]
		_, hasSource := doc["sourceObject"]
		_, hasDestination := doc["destinationObject"]
		_, hasStatistics := doc["statistics"]

		switch {
		case isMeta:
			f, err := o.act.decodeFact(ctx, doc)
			if err != nil {
				return nil, err
			}
			result.MetaFacts = append(result.MetaFacts, f)
		case hasSource || hasDestination:
			f, err := o.act.decodeFact(ctx, doc)
			if err != nil {
				return nil, err
			}
			result.Facts = append(result.Facts, f)
		case hasStatistics:
			obj, err := o.act.decodeObject(ctx, doc)
			if err != nil {
				return nil, err
			}
			result.Objects = append(result.Objects, obj)
		default:
			log.Warn("unable to guess element type", slog.Any("element", doc))
			result.Unknown = append(result.Unknown, doc)
		}
	}

	return result, nil
}

// objectFromWire accepts an object document, an object id or a "type/value" reference.
func objectFromWire(ctx context.Context, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case schema.Document:
		return ObjectSchema.Decode(ctx, v)
	case string:
		v = strings.TrimSpace(v)
		if isUUID(v) {
			return ObjectSchema.Build(ctx, nil, schema.Document{"id": v})
		}

		typ, value, ok := strings.Cut(v, "/")
		if !ok {
			return nil, errors.NewValidationError("object reference must be an id or type/value: %s", v)
		}

		return ObjectSchema.Build(ctx, []any{typ, value}, nil)
	}

	return nil, errors.NewValidationError("unsupported object reference %v", raw)
}

// objectReference is the form used for objects when submitting facts: the
// object id if known, otherwise type/value.
func objectReference(o *schema.Entity) any {
	if o == nil {
		return nil
	}

	if id := o.GetString("id"); id != "" {
		return id
	}

	typ := ""
	if t := o.GetRef("type"); t != nil {
		typ = t.GetString("name")
	}

	if typ == "" && o.GetString("value") == "" {
		return nil
	}

	return typ + "/" + o.GetString("value")
}
