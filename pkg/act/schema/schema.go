package schema

import (
	"context"

	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// Schema is the registered, immutable field list of one concrete entity type.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int

	strict      bool
	identity    []string
	serializeAs func(e *Entity, doc Document) any
	truthy      func(e *Entity) bool
}

type SchemaOption func(*Schema)

// Strict makes deserialization fail on wire keys that match no declared field.
func Strict() SchemaOption {
	return func(s *Schema) {
		s.strict = true
	}
}

// Lenient makes deserialization log and skip unknown wire keys. This is the default.
func Lenient() SchemaOption {
	return func(s *Schema) {
		s.strict = false
	}
}

// IdentityFields narrows the field tuple used for hashing.
func IdentityFields(names ...string) SchemaOption {
	return func(s *Schema) {
		s.identity = names
	}
}

// SerializeAs overrides the value an entity contributes when serialized as
// a nested value or encoded as JSON. The function receives the regular document.
func SerializeAs(fn func(e *Entity, doc Document) any) SchemaOption {
	return func(s *Schema) {
		s.serializeAs = fn
	}
}

func TruthyWhen(fn func(e *Entity) bool) SchemaOption {
	return func(s *Schema) {
		s.truthy = fn
	}
}

// New registers a schema. A nil field list, duplicate field names and
// targets that point to undeclared fields are rejected.
func New(name string, fields []Field, options ...SchemaOption) (*Schema, error) {
	if fields == nil {
		return nil, errors.NewSchemaDefinitionError("no fields defined for %s", name)
	}

	s := &Schema{
		name:   name,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.name == "" {
			return nil, errors.NewSchemaDefinitionError("field %d of %s has no name", i, name)
		}

		if _, ok := s.index[f.name]; ok {
			return nil, errors.NewSchemaDefinitionError("duplicate field %s in %s", f.name, name)
		}

		s.index[f.name] = i
	}

	for _, f := range s.fields {
		if f.deserializeTarget == "" {
			continue
		}

		target, ok := s.index[f.deserializeTarget]
		if !ok {
			return nil, errors.NewSchemaDefinitionError(
				"field %s in %s has unknown deserialize target %s", f.name, name, f.deserializeTarget,
			)
		}

		if s.fields[target].deserializeTarget != "" {
			return nil, errors.NewSchemaDefinitionError(
				"deserialize target %s of field %s in %s is itself redirected", f.deserializeTarget, f.name, name,
			)
		}
	}

	for _, option := range options {
		option(s)
	}

	for _, id := range s.identity {
		if _, ok := s.index[id]; !ok {
			return nil, errors.NewSchemaDefinitionError("identity field %s is not declared in %s", id, name)
		}
	}

	return s, nil
}

// Must is like New but panics on error. It simplifies package level declarations.
func Must(name string, fields []Field, options ...SchemaOption) *Schema {
	s, err := New(name, fields, options...)
	if err != nil {
		panic(err)
	}
	return s
}

// Extend registers a new schema that copies the field list and options
// of s and appends additional fields.
func (s *Schema) Extend(name string, fields []Field, options ...SchemaOption) (*Schema, error) {
	all := make([]Field, 0, len(s.fields)+len(fields))
	all = append(all, s.fields...)
	all = append(all, fields...)

	inherited := []SchemaOption{
		func(x *Schema) {
			x.strict = s.strict
			x.identity = s.identity
			x.serializeAs = s.serializeAs
			x.truthy = s.truthy
		},
	}

	return New(name, all, append(inherited, options...)...)
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) Fields() []Field {
	fields := make([]Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) IsStrict() bool { return s.strict }

// deserializeField resolves the field that receives input for an attribute name.
func (s *Schema) deserializeField(attr string) (Field, bool) {
	f, ok := s.Field(attr)
	if !ok {
		return Field{}, false
	}

	if f.deserializeTarget != "" {
		return s.Field(f.deserializeTarget)
	}

	return f, true
}

// Build constructs an entity. Positional values bind to fields in declaration
// order and are folded into the named values, where named values take precedence.
func (s *Schema) Build(ctx context.Context, positional []any, named Document) (*Entity, error) {
	if len(positional) > len(s.fields) {
		return nil, errors.NewSchemaDefinitionError(
			"%s takes at most %d positional values, %d given", s.name, len(s.fields), len(positional),
		)
	}

	args := make(Document, len(positional)+len(named))
	for i, v := range positional {
		args[s.fields[i].name] = v
	}

	// a named value replaces the positional value of the field it ends up in,
	// also when it reaches that field through a wire name or a deserialize target
	for k, v := range named {
		attr := ToAttr(k)
		if attr != k && bound(positional, s, attr) {
			delete(args, attr)
		}
		if f, ok := s.deserializeField(attr); ok && f.name != attr && bound(positional, s, f.name) {
			delete(args, f.name)
		}
		args[k] = v
	}

	e := newEntity(s)
	if err := e.deserialize(ctx, args); err != nil {
		return nil, err
	}

	e.applyDefaults()

	return e, nil
}

// bound reports if the field received one of the positional values.
func bound(positional []any, s *Schema, name string) bool {
	i, ok := s.index[name]
	return ok && i < len(positional)
}

// Decode constructs an entity from a wire document.
func (s *Schema) Decode(ctx context.Context, doc Document) (*Entity, error) {
	return s.Build(ctx, nil, doc)
}

// MustBuild is like Build but panics on error. Intended for tests and
// package level prototypes.
func (s *Schema) MustBuild(ctx context.Context, positional []any, named Document) *Entity {
	e, err := s.Build(ctx, positional, named)
	if err != nil {
		panic(err)
	}
	return e
}
