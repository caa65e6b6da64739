package schema

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// Entity is an instance of a Schema. Field values live in an attribute store
// owned by the entity, while values set on undeclared names are kept apart
// and never reach the wire.
type Entity struct {
	schema *Schema
	data   map[string]any
	extras map[string]any
}

func newEntity(s *Schema) *Entity {
	return &Entity{
		schema: s,
		data:   make(map[string]any, len(s.fields)),
		extras: map[string]any{},
	}
}

func (e *Entity) Schema() *Schema { return e.schema }

// Update deserializes a wire document into the entity, overwriting the
// fields it carries and keeping all others.
func (e *Entity) Update(ctx context.Context, doc Document) error {
	return e.deserialize(ctx, doc)
}

// Load replaces the whole attribute store with the content of a wire document.
func (e *Entity) Load(ctx context.Context, doc Document) error {
	e.data = make(map[string]any, len(e.schema.fields))

	if err := e.deserialize(ctx, doc); err != nil {
		return err
	}

	e.applyDefaults()
	return nil
}

func (e *Entity) deserialize(ctx context.Context, doc Document) error {
	keys := make([]string, 0, len(doc))
	attrs := make(map[string]string, len(doc))

	for k := range doc {
		attr := ToAttr(k)
		keys = append(keys, attr)
		attrs[attr] = k
	}
	sort.Strings(keys)

	for _, attr := range keys {
		raw := doc[attrs[attr]]

		f, ok := e.schema.deserializeField(attr)
		if !ok {
			if e.schema.strict {
				return errors.NewUnknownFieldError("%s is not defined in schema %s", attr, e.schema.name)
			}

			logging.GetFromContext(ctx).Warn(
				"field not defined in schema", slog.String("field", attr), slog.String("schema", e.schema.name),
			)
			continue
		}

		if f.deserializeOff {
			continue
		}

		if f.flatten {
			if raw == nil {
				continue
			}

			nested, ok := raw.(Document)
			if !ok {
				return errors.NewSchemaDefinitionError(
					"flattened field %s in %s requires a document, got %v", f.name, e.schema.name, raw,
				)
			}

			if err := e.deserialize(ctx, nested); err != nil {
				return err
			}
			continue
		}

		value, err := f.deserialize(ctx, raw)
		if err != nil {
			return err
		}

		e.data[f.name] = value
	}

	return nil
}

func (e *Entity) applyDefaults() {
	for _, f := range e.schema.fields {
		if _, ok := e.data[f.name]; ok || !f.stored() {
			continue
		}
		e.data[f.name] = f.Default()
	}
}

// Has reports if the attribute store holds a value for the field name.
func (e *Entity) Has(name string) bool {
	_, ok := e.data[name]
	return ok
}

// Get returns the current value of a declared field or of a value previously
// set on an undeclared name.
func (e *Entity) Get(name string) (any, error) {
	if v, ok := e.data[name]; ok {
		return v, nil
	}

	if v, ok := e.extras[name]; ok {
		return v, nil
	}

	return nil, errors.NewAttributeNotFoundError("%s has no attribute %s", e.schema.name, name)
}

// Set updates a stored field in place. Any other name is kept outside the
// wire schema.
func (e *Entity) Set(name string, value any) {
	if f, ok := e.schema.Field(name); ok && f.stored() {
		e.data[name] = value
		return
	}

	e.extras[name] = value
}

func (e *Entity) GetString(name string) string {
	v, _ := e.Get(name)
	s, _ := v.(string)
	return s
}

func (e *Entity) GetBool(name string) bool {
	v, _ := e.Get(name)
	b, _ := v.(bool)
	return b
}

func (e *Entity) GetFloat(name string) (float64, bool) {
	v, _ := e.Get(name)
	return toFloat(v)
}

// GetRef returns the nested entity stored under name, or nil.
func (e *Entity) GetRef(name string) *Entity {
	v, _ := e.Get(name)
	r, _ := v.(*Entity)
	return r
}

func (e *Entity) GetList(name string) []any {
	v, _ := e.Get(name)
	l, _ := asList(v)
	return l
}

func (e *Entity) GetRefs(name string) []*Entity {
	refs := []*Entity{}
	for _, v := range e.GetList(name) {
		if r, ok := v.(*Entity); ok {
			refs = append(refs, r)
		}
	}
	return refs
}

// Truthy reports if the entity counts as set. Schemas decide through TruthyWhen.
func (e *Entity) Truthy() bool {
	if e == nil {
		return false
	}

	if e.schema.truthy != nil {
		return e.schema.truthy(e)
	}

	return true
}

// Clone returns a deep copy of the entity, nested entities included.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	c := newEntity(e.schema)
	for k, v := range e.data {
		c.data[k] = clone(v)
	}
	for k, v := range e.extras {
		c.extras[k] = v
	}

	return c
}

type serializeConfig struct {
	excludeEmpty bool
	wireNames    bool
}

type SerializeOption func(*serializeConfig)

// ExcludeEmpty controls if fields without a value are left out. Only absent
// and nil values are considered empty.
func ExcludeEmpty(exclude bool) SerializeOption {
	return func(c *serializeConfig) {
		c.excludeEmpty = exclude
	}
}

// WireNames controls if keys are converted to their camelCase wire names.
func WireNames(enabled bool) SerializeOption {
	return func(c *serializeConfig) {
		c.wireNames = enabled
	}
}

func newSerializeConfig(options []SerializeOption) serializeConfig {
	cfg := serializeConfig{excludeEmpty: true, wireNames: true}
	for _, option := range options {
		option(&cfg)
	}
	return cfg
}

// Serialize walks the declared fields in order and produces a wire document.
func (e *Entity) Serialize(options ...SerializeOption) Document {
	cfg := newSerializeConfig(options)
	doc := Document{}

	for _, f := range e.schema.fields {
		value := e.data[f.name]

		if cfg.excludeEmpty && isNil(value) {
			continue
		}

		if f.serializeOff {
			continue
		}

		serialized := f.serialize(value, options...)
		if cfg.excludeEmpty && serialized == nil {
			continue
		}

		doc[f.WireName(cfg.wireNames)] = serialized
	}

	return doc
}

// WireValue returns what the entity contributes to a wire document, honoring the
// schema's SerializeAs override.
func (e *Entity) WireValue(options ...SerializeOption) any {
	if e == nil {
		return nil
	}

	doc := e.Serialize(options...)
	if e.schema.serializeAs != nil {
		return e.schema.serializeAs(e, doc)
	}

	return doc
}

// JSON encodes the serialized entity.
func (e *Entity) JSON(options ...SerializeOption) ([]byte, error) {
	return json.Marshal(e.WireValue(options...))
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return e.JSON()
}
