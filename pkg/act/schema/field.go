package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// Document is the nested key-value structure exchanged with the platform.
type Document = map[string]any

type SerializeFunc func(value any) any
type DeserializeFunc func(ctx context.Context, raw any) (any, error)

// Field describes how one named attribute round-trips to and from a wire document.
// A Field is immutable once it has been registered with a Schema.
type Field struct {
	name string

	defaultValue any
	defaultFunc  func() any

	serializer     SerializeFunc
	serializeOff   bool
	deserializer   DeserializeFunc
	nested         *Schema
	deserializeOff bool

	serializeTarget   string
	deserializeTarget string
	flatten           bool
}

type FieldOption func(*Field)

func NewField(name string, options ...FieldOption) Field {
	f := Field{name: name}

	for _, option := range options {
		option(&f)
	}

	return f
}

// Default sets a prototype value that is deep copied each time it is applied.
func Default(value any) FieldOption {
	return func(f *Field) {
		f.defaultValue = value
		f.defaultFunc = nil
	}
}

// DefaultFunc sets a factory producing a fresh default value on each application.
func DefaultFunc(fn func() any) FieldOption {
	return func(f *Field) {
		f.defaultFunc = fn
		f.defaultValue = nil
	}
}

func SerializeWith(fn SerializeFunc) FieldOption {
	return func(f *Field) {
		f.serializer = fn
		f.serializeOff = false
	}
}

// NoSerialize marks the field as never emitted in wire documents.
func NoSerialize() FieldOption {
	return func(f *Field) {
		f.serializer = nil
		f.serializeOff = true
	}
}

func DeserializeWith(fn DeserializeFunc) FieldOption {
	return func(f *Field) {
		f.deserializer = fn
		f.nested = nil
		f.deserializeOff = false
	}
}

// Nested declares that the wire value of the field is a document of the given schema.
func Nested(s *Schema) FieldOption {
	return func(f *Field) {
		f.nested = s
		f.deserializer = nil
		f.deserializeOff = false
	}
}

// NoDeserialize marks the field as never populated from input.
func NoDeserialize() FieldOption {
	return func(f *Field) {
		f.deserializer = nil
		f.nested = nil
		f.deserializeOff = true
	}
}

// SerializeTarget makes the field emit its value under another wire key.
func SerializeTarget(name string) FieldOption {
	return func(f *Field) {
		f.serializeTarget = name
	}
}

// DeserializeTarget redirects input for this field into the named field.
func DeserializeTarget(name string) FieldOption {
	return func(f *Field) {
		f.deserializeTarget = name
	}
}

// Flatten merges the keys of the field's wire document into the parent entity.
func Flatten() FieldOption {
	return func(f *Field) {
		f.flatten = true
	}
}

func (f Field) Name() string                  { return f.name }
func (f Field) Serializable() bool            { return !f.serializeOff }
func (f Field) Deserializable() bool          { return !f.deserializeOff }
func (f Field) IsFlatten() bool               { return f.flatten }
func (f Field) DeserializeTargetName() string { return f.deserializeTarget }
func (f Field) NestedSchema() *Schema         { return f.nested }

// WireName returns the key the field is emitted under.
func (f Field) WireName(toWire bool) string {
	key := f.name
	if f.serializeTarget != "" {
		key = f.serializeTarget
	}

	if toWire {
		return ToWire(key)
	}

	return key
}

// stored reports if the field keeps a value under its own name.
func (f Field) stored() bool {
	return f.deserializeTarget == "" && !f.flatten && !f.deserializeOff
}

// Default returns a fresh copy of the declared default value.
func (f Field) Default() any {
	if f.defaultFunc != nil {
		return f.defaultFunc()
	}

	return clone(f.defaultValue)
}

func (f Field) defaultPrototype() any {
	if f.defaultFunc != nil {
		return f.defaultFunc()
	}

	return f.defaultValue
}

// DeserializeValue turns a single raw wire value into the stored value.
func (f Field) DeserializeValue(ctx context.Context, raw any) (any, error) {
	if e, ok := raw.(*Entity); ok {
		return e, nil
	}

	if f.nested != nil {
		switch v := raw.(type) {
		case nil:
			return nil, nil
		case Document:
			return f.nested.Build(ctx, nil, v)
		default:
			return f.nested.Build(ctx, []any{v}, nil)
		}
	}

	if f.deserializer != nil {
		return f.deserializer(ctx, raw)
	}

	switch v := raw.(type) {
	case Document:
		return nil, errors.NewSchemaDefinitionError(
			"document is not supported by the default deserializer. field=%s, value=%v", f.name, v,
		)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed != v {
			logging.GetFromContext(ctx).Debug("value was trimmed", slog.String("field", f.name), slog.String("value", v))
		}
		return trimmed, nil
	}

	return raw, nil
}

func (f Field) deserialize(ctx context.Context, raw any) (any, error) {
	list, ok := asList(raw)
	if !ok {
		return f.DeserializeValue(ctx, raw)
	}

	result := make([]any, 0, len(list))
	for _, item := range list {
		v, err := f.DeserializeValue(ctx, item)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}

	return result, nil
}

// SerializeValue turns a single stored value into its wire representation.
func (f Field) SerializeValue(value any, options ...SerializeOption) any {
	if f.serializer != nil {
		return f.serializer(value)
	}

	if e, ok := value.(*Entity); ok {
		return e.WireValue(options...)
	}

	return value
}

func (f Field) serialize(value any, options ...SerializeOption) any {
	list, ok := asList(value)
	if !ok {
		return f.SerializeValue(value, options...)
	}

	result := make([]any, 0, len(list))
	for _, item := range list {
		result = append(result, f.SerializeValue(item, options...))
	}

	return result
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		result := make([]any, len(l))
		for i := range l {
			result[i] = l[i]
		}
		return result, true
	case []Document:
		result := make([]any, len(l))
		for i := range l {
			result[i] = l[i]
		}
		return result, true
	case []*Entity:
		result := make([]any, len(l))
		for i := range l {
			result[i] = l[i]
		}
		return result, true
	}

	return nil, false
}

func clone(v any) any {
	switch t := v.(type) {
	case Document:
		c := make(Document, len(t))
		for k, item := range t {
			c[k] = clone(item)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = clone(t[i])
		}
		return c
	case []string:
		c := make([]string, len(t))
		copy(c, t)
		return c
	case *Entity:
		return t.Clone()
	}

	return v
}

// SerializeAttr returns a serializer that emits one attribute of a nested entity.
func SerializeAttr(name string) SerializeFunc {
	return func(value any) any {
		e, ok := value.(*Entity)
		if !ok || e == nil {
			return value
		}

		v, _ := e.Get(name)
		return v
	}
}
