package act

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
	"github.com/mnemonic-no/act-api-go/pkg/act/search"
)

var ReferencedFactSchema = schema.Must("ReferencedFact", []schema.Field{
	schema.NewField("type", schema.Nested(FactTypeSchema), schema.SerializeWith(schema.SerializeAttr("name"))),
	schema.NewField("value", schema.Default("")),
	schema.NewField("id"),
},
	schema.SerializeAs(func(e *schema.Entity, doc schema.Document) any {
		if e.GetString("id") == "" && typeName(e) == "" {
			return nil
		}
		return doc
	}),
	schema.TruthyWhen(func(e *schema.Entity) bool {
		return typeName(e) != "" || e.GetString("value") != "" || e.GetString("id") != ""
	}),
)

var FactSchema = schema.Must("Fact", []schema.Field{
	schema.NewField("type", schema.Nested(FactTypeSchema), schema.SerializeWith(schema.SerializeAttr("name"))),
	schema.NewField("value", schema.Default("")),
	schema.NewField("id", schema.NoSerialize()),
	schema.NewField("flags", schema.NoSerialize()),
	schema.NewField("origin", schema.Nested(OriginSchema)),
	schema.NewField("added_by", schema.Nested(OriginSchema), schema.NoSerialize()),
	schema.NewField("trust", schema.NoSerialize()),
	schema.NewField("confidence"),
	schema.NewField("certainty", schema.NoSerialize()),
	schema.NewField("timestamp", schema.NoSerialize()),
	schema.NewField("last_seen_timestamp", schema.NoSerialize()),
	schema.NewField("in_reference_to", schema.Nested(ReferencedFactSchema)),
	schema.NewField("organization", schema.DeserializeWith(organizationFromWire)),
	schema.NewField("access_mode", schema.Default(AccessModePublic)),
	schema.NewField("source_object", schema.DeserializeWith(objectFromWire)),
	schema.NewField("destination_object", schema.DeserializeWith(objectFromWire)),
	schema.NewField("bidirectional_binding", schema.Default(false)),
	schema.NewField("acl"),
})

func typeName(e *schema.Entity) string {
	if t := e.GetRef("type"); t != nil {
		return t.GetString("name")
	}
	return ""
}

type Fact struct {
	base
}

func DecodeFact(ctx context.Context, doc schema.Document) (*Fact, error) {
	e, err := FactSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Fact{base{Entity: e}}, nil
}

func (f *Fact) Configure(a *Act) *Fact {
	f.act = a
	return f
}

// Clone returns a deep copy bound to the same Act instance.
func (f *Fact) Clone() *Fact {
	return &Fact{base{Entity: f.Entity.Clone(), act: f.act}}
}

func (f *Fact) TypeName() string {
	return typeName(f.Entity)
}

func (f *Fact) Value() string {
	return f.GetString("value")
}

func (f *Fact) SourceObject() *Object {
	return wrapObject(f.GetRef("source_object"), f.act)
}

func (f *Fact) DestinationObject() *Object {
	return wrapObject(f.GetRef("destination_object"), f.act)
}

func (f *Fact) IsBidirectional() bool {
	return f.GetBool("bidirectional_binding")
}

// IsMeta reports if the fact refers to another fact.
func (f *Fact) IsMeta() bool {
	return f.GetRef("in_reference_to").Truthy()
}

func (f *Fact) InReferenceTo() *schema.Entity {
	return f.GetRef("in_reference_to")
}

func (f *Fact) Origin() *Origin {
	o := f.GetRef("origin")
	if o == nil {
		return nil
	}
	return &Origin{base{Entity: o, act: f.act}}
}

// String renders the fact as (src_type/src_value) -[type/value]-> (dst_type/dst_value).
// Values starting with a dash are left out.
func (f *Fact) String() string {
	var b strings.Builder

	if src := f.GetRef("source_object"); src.Truthy() {
		b.WriteString(wrapObject(src, f.act).String())
		b.WriteString(" -")
	}

	b.WriteString("[")
	b.WriteString(f.TypeName())
	if v := f.Value(); v != "" && !strings.HasPrefix(v, "-") {
		b.WriteString("/")
		b.WriteString(v)
	}
	b.WriteString("]")

	if dst := f.GetRef("destination_object"); dst.Truthy() {
		if f.IsBidirectional() {
			b.WriteString("-")
		} else {
			b.WriteString("->")
		}
		b.WriteString(" ")
		b.WriteString(wrapObject(dst, f.act).String())
	}

	return b.String()
}

// newObject builds an object for a fact binding, applying the configured
// formatter and validator.
func (f *Fact) newObject(ctx context.Context, objectType, value string) (*schema.Entity, error) {
	var cfg Config
	if f.act != nil {
		cfg = f.act.cfg
	}

	if cfg.ObjectFormatter != nil {
		value = cfg.ObjectFormatter(objectType, value)
	}

	obj, err := ObjectSchema.Build(ctx, []any{objectType, value}, nil)
	if err != nil {
		return nil, err
	}

	if !obj.Truthy() {
		return nil, errors.NewMissingFieldError("must have either object id or object type and object value")
	}

	if cfg.ObjectValidator != nil {
		ok, err := cfg.ObjectValidator.Validate(ctx, objectType, value)
		if err != nil {
			return nil, err
		}

		if !ok {
			if cfg.StrictValidator {
				return nil, errors.NewValidationError("object did not pass validation: %s/%s", objectType, value)
			}

			logging.GetFromContext(ctx).Warn("object did not pass validation",
				slog.String("object_type", objectType), slog.String("object_value", value))
		}
	}

	return obj, nil
}

func objectByID(ctx context.Context, id string) (*schema.Entity, error) {
	if id == "" {
		return nil, errors.NewMissingFieldError("must have either object id or object type and object value")
	}
	return ObjectSchema.Build(ctx, nil, schema.Document{"id": id})
}

func (f *Fact) SetSource(ctx context.Context, objectType, value string) error {
	obj, err := f.newObject(ctx, objectType, value)
	if err != nil {
		return err
	}
	f.Set("source_object", obj)
	return nil
}

func (f *Fact) SetSourceID(ctx context.Context, id string) error {
	obj, err := objectByID(ctx, id)
	if err != nil {
		return err
	}
	f.Set("source_object", obj)
	return nil
}

func (f *Fact) SetDestination(ctx context.Context, objectType, value string) error {
	obj, err := f.newObject(ctx, objectType, value)
	if err != nil {
		return err
	}
	f.Set("destination_object", obj)
	return nil
}

func (f *Fact) SetDestinationID(ctx context.Context, id string) error {
	obj, err := objectByID(ctx, id)
	if err != nil {
		return err
	}
	f.Set("destination_object", obj)
	return nil
}

func (f *Fact) SetBidirectional(ctx context.Context, sourceType, sourceValue, destinationType, destinationValue string) error {
	if err := f.SetSource(ctx, sourceType, sourceValue); err != nil {
		return err
	}

	if err := f.SetDestination(ctx, destinationType, destinationValue); err != nil {
		return err
	}

	f.Set("bidirectional_binding", true)
	return nil
}

// Get reloads the fact from the platform.
func (f *Fact) Get(ctx context.Context) error {
	if f.ID() == "" {
		return errors.NewMissingFieldError("must have fact id to get, or use search instead")
	}

	response, err := f.get(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID()), nil)
	if err != nil {
		return err
	}

	return f.reload(ctx, response)
}

// Add submits the fact, or the meta fact if it refers to another fact, and
// loads the created fact as returned by the platform.
func (f *Fact) Add(ctx context.Context) error {
	if f.IsMeta() {
		return f.addMeta(ctx)
	}
	return f.addFact(ctx)
}

func (f *Fact) addFact(ctx context.Context) error {
	started := time.Now()

	params := f.Serialize()
	delete(params, "inReferenceTo")

	setOrDelete(params, "sourceObject", objectReference(f.GetRef("source_object")))
	setOrDelete(params, "destinationObject", objectReference(f.GetRef("destination_object")))

	if err := f.resolveOrigin(ctx, params); err != nil {
		return err
	}

	response, err := f.post(ctx, "v1/fact", params)
	if err != nil {
		return err
	}

	if err = f.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("created fact",
		slog.String("fact", f.String()), slog.String("id", f.ID()), slog.Duration("elapsed", time.Since(started)))

	return nil
}

func (f *Fact) addMeta(ctx context.Context) error {
	started := time.Now()

	ref := f.InReferenceTo()
	if ref.GetString("id") == "" {
		return errors.NewMissingFieldError("referenced fact must have fact id")
	}

	params := schema.Document{}
	for k, v := range f.Serialize() {
		if k == "inReferenceTo" || k == "bidirectionalBinding" || isBlank(v) {
			continue
		}
		params[k] = v
	}

	if err := f.resolveOrigin(ctx, params); err != nil {
		return err
	}

	response, err := f.post(ctx, "v1/fact/uuid/"+url.PathEscape(ref.GetString("id"))+"/meta", params)
	if err != nil {
		return err
	}

	if err = f.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("created meta fact",
		slog.String("fact", f.String()), slog.String("id", f.ID()), slog.Duration("elapsed", time.Since(started)))

	return nil
}

// resolveOrigin replaces the origin document with the id of the origin.
func (f *Fact) resolveOrigin(ctx context.Context, params schema.Document) error {
	delete(params, "origin")

	origin := f.GetRef("origin")
	if origin == nil {
		return nil
	}

	api, err := f.api()
	if err != nil {
		return err
	}

	resolver := f.act.origins
	if resolver == nil {
		resolver = defaultResolver
	}

	id, err := resolver.Resolve(ctx, api, origin.GetString("name"), origin.GetString("id"))
	if err != nil {
		return err
	}

	setOrDelete(params, "origin", id)
	return nil
}

func setOrDelete(params schema.Document, key string, value any) {
	if value == nil || value == "" {
		delete(params, key)
		return
	}
	params[key] = value
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case schema.Document:
		return len(t) == 0
	}
	return false
}

// Meta creates an unsaved meta fact referring to this fact.
func (f *Fact) Meta(ctx context.Context, factType string, options ...FactOption) (*Fact, error) {
	var referencedType any
	if t := f.GetRef("type"); t != nil {
		referencedType = t.Clone()
	}

	ref, err := ReferencedFactSchema.Build(ctx, []any{referencedType, f.Value(), f.GetString("id")}, nil)
	if err != nil {
		return nil, err
	}

	return newFact(ctx, f.act, factType, append([]FactOption{InReferenceTo(ref)}, options...)...)
}

// GetACL returns the subjects with explicit access to the fact.
func (f *Fact) GetACL(ctx context.Context) ([]*schema.Entity, error) {
	if f.ID() == "" {
		return nil, errors.NewMissingFieldError("must have fact id to resolve acl")
	}

	response, err := f.get(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID())+"/access", nil)
	if err != nil {
		return nil, err
	}

	rs, err := NewResultSet(ctx, response, func(ctx context.Context, doc schema.Document) (*schema.Entity, error) {
		return UserReferenceSchema.Decode(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	return rs.Items(), nil
}

func (f *Fact) GrantAccess(ctx context.Context, subject string) error {
	return errors.NewNotImplementedError("grant access is not implemented, ignoring %s", subject)
}

func (f *Fact) GetComments(ctx context.Context) (*ResultSet[*Comment], error) {
	if f.ID() == "" {
		return nil, errors.NewMissingFieldError("must have fact id to get comments")
	}

	response, err := f.get(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID())+"/comments", nil)
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, DecodeComment)
}

// AddComment comments the fact. A non empty replyTo must be the UUID of another comment.
func (f *Fact) AddComment(ctx context.Context, comment, replyTo string) error {
	if f.ID() == "" {
		return errors.NewMissingFieldError("must have fact id to add comment")
	}

	if replyTo != "" && !isUUID(replyTo) {
		return errors.NewValidationError("reply_to is not a valid UUID: %s", replyTo)
	}

	body := schema.Document{"comment": comment}
	if replyTo != "" {
		body["replyTo"] = replyTo
	}

	_, err := f.post(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID())+"/comments", body)
	return err
}

// GetMeta lists the meta facts referring to this fact. Before, After and Limit
// from the search package apply.
func (f *Fact) GetMeta(ctx context.Context, params ...search.Param) (*ResultSet[*Fact], error) {
	if f.ID() == "" {
		return nil, errors.NewMissingFieldError("must have fact id to get meta facts")
	}

	response, err := f.get(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID())+"/meta", search.Query(params...))
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, f.act.decodeFact)
}

type RetractOptions struct {
	Organization string
	Source       string
	AccessMode   string
	Comment      string
	ACL          []string
}

// Retract retracts the fact and loads the retraction fact returned by the platform.
func (f *Fact) Retract(ctx context.Context, opts RetractOptions) error {
	if f.ID() == "" {
		return errors.NewMissingFieldError("must have fact id to retract fact")
	}

	params := schema.Document{}
	setOrDelete(params, "organization", opts.Organization)
	setOrDelete(params, "source", opts.Source)
	setOrDelete(params, "accessMode", opts.AccessMode)
	setOrDelete(params, "comment", opts.Comment)
	if len(opts.ACL) > 0 {
		params["acl"] = opts.ACL
	}

	response, err := f.post(ctx, "v1/fact/uuid/"+url.PathEscape(f.ID())+"/retract", params)
	if err != nil {
		return err
	}

	if err = f.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("retracted fact", slog.String("id", f.ID()))
	return nil
}

// FactOption configures a fact under construction.
type FactOption func(ctx context.Context, f *Fact) error

func Value(value string) FactOption {
	return func(_ context.Context, f *Fact) error {
		f.Set("value", strings.TrimSpace(value))
		return nil
	}
}

func Source(objectType, value string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return f.SetSource(ctx, objectType, value)
	}
}

func SourceID(id string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return f.SetSourceID(ctx, id)
	}
}

func Destination(objectType, value string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return f.SetDestination(ctx, objectType, value)
	}
}

func DestinationID(id string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return f.SetDestinationID(ctx, id)
	}
}

func Bidirectional(sourceType, sourceValue, destinationType, destinationValue string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return f.SetBidirectional(ctx, sourceType, sourceValue, destinationType, destinationValue)
	}
}

func Confidence(confidence float64) FactOption {
	return func(_ context.Context, f *Fact) error {
		f.Set("confidence", confidence)
		return nil
	}
}

// OriginName attributes the fact to an origin that is resolved by name on submission.
func OriginName(name string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		return setOrigin(ctx, f, name, "")
	}
}

func OriginID(id string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		if !isUUID(id) {
			return errors.NewArgumentError("origin id is not a valid UUID: %s", id)
		}
		return setOrigin(ctx, f, "", id)
	}
}

func setOrigin(ctx context.Context, f *Fact, name, id string) error {
	origin, err := originReference(ctx, name, id)
	if err != nil {
		return err
	}

	if origin == nil {
		f.Set("origin", nil)
		return nil
	}

	f.Set("origin", origin)
	return nil
}

func Organization(organization string) FactOption {
	return func(ctx context.Context, f *Fact) error {
		org, err := organizationFromWire(ctx, organization)
		if err != nil {
			return err
		}

		f.Set("organization", org)
		return nil
	}
}

func AccessMode(mode string) FactOption {
	return func(_ context.Context, f *Fact) error {
		for _, m := range AccessModes {
			if m == mode {
				f.Set("access_mode", mode)
				return nil
			}
		}
		return errors.NewArgumentError("unknown access mode %s", mode)
	}
}

func ACL(subjects ...string) FactOption {
	return func(_ context.Context, f *Fact) error {
		acl := make([]any, 0, len(subjects))
		for _, s := range subjects {
			if !isUUID(s) {
				return errors.NewArgumentError("acl entry is not a valid UUID: %s", s)
			}
			acl = append(acl, s)
		}
		f.Set("acl", acl)
		return nil
	}
}

func InReferenceTo(ref *schema.Entity) FactOption {
	return func(_ context.Context, f *Fact) error {
		f.Set("in_reference_to", ref)
		return nil
	}
}
