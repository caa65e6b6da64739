package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

const idField = "id"

// Equal compares two entities over their serializable fields, ignoring id.
// Entities that match on every other field but carry two different ids are
// an inconsistency and yield ErrInconsistentIdentity.
func (e *Entity) Equal(other *Entity) (bool, error) {
	if e == nil || other == nil {
		return e == other, nil
	}

	if e.schema != other.schema {
		return false, nil
	}

	for _, f := range e.schema.fields {
		if f.serializeOff || f.name == idField {
			continue
		}

		eq, err := valuesEqual(e.data[f.name], other.data[f.name])
		if err != nil || !eq {
			return false, err
		}
	}

	if _, ok := e.schema.index[idField]; ok {
		a, b := e.data[idField], other.data[idField]
		if a != nil && b != nil {
			eq, err := valuesEqual(a, b)
			if err != nil {
				return false, err
			}

			if !eq {
				return false, errors.NewInconsistentIdentityError(
					"%s entities are equal but have different ids: %v != %v", e.schema.name, a, b,
				)
			}
		}
	}

	return true, nil
}

// isNil also reports a nil *Entity stored in an interface.
func isNil(v any) bool {
	if e, ok := v.(*Entity); ok {
		return e == nil
	}
	return v == nil
}

func valuesEqual(a, b any) (bool, error) {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b), nil
	}

	if ea, ok := a.(*Entity); ok {
		eb, ok := b.(*Entity)
		if !ok {
			return false, nil
		}
		return ea.Equal(eb)
	}

	if la, ok := asList(a); ok {
		lb, ok := asList(b)
		if !ok || len(la) != len(lb) {
			return false, nil
		}

		for i := range la {
			eq, err := valuesEqual(la[i], lb[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}

	if da, ok := a.(Document); ok {
		db, ok := b.(Document)
		if !ok || len(da) != len(db) {
			return false, nil
		}

		for k, va := range da {
			vb, ok := db[k]
			if !ok {
				return false, nil
			}

			eq, err := valuesEqual(va, vb)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb, nil
	}

	return reflect.DeepEqual(a, b), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// identityFields returns the fields that make up the hash tuple.
func (s *Schema) identityFields() []Field {
	if len(s.identity) > 0 {
		fields := make([]Field, 0, len(s.identity))
		for _, name := range s.identity {
			fields = append(fields, s.fields[s.index[name]])
		}
		return fields
	}

	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if f.serializeOff || f.name == idField {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// Fingerprint is a canonical encoding of the entity type and its identity tuple.
// Equal entities have equal fingerprints.
func (e *Entity) Fingerprint() string {
	var b strings.Builder
	e.writeCanonical(&b)
	return b.String()
}

// Hash is consistent with Equal.
func (e *Entity) Hash() uint64 {
	return xxhash.Sum64String(e.Fingerprint())
}

func (e *Entity) writeCanonical(b *strings.Builder) {
	if e == nil {
		b.WriteString("null")
		return
	}

	b.WriteString(e.schema.name)
	b.WriteByte('(')

	n := 0
	for _, f := range e.schema.identityFields() {
		if f.name == idField {
			continue
		}

		if n > 0 {
			b.WriteByte(',')
		}
		n++
		b.WriteString(f.name)
		b.WriteByte('=')
		writeCanonicalValue(b, e.data[f.name])
	}

	b.WriteByte(')')
}

func writeCanonicalValue(b *strings.Builder, v any) {
	if v == nil {
		b.WriteString("null")
		return
	}

	if e, ok := v.(*Entity); ok {
		e.writeCanonical(b)
		return
	}

	if l, ok := asList(v); ok {
		b.WriteByte('[')
		for i, item := range l {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, item)
		}
		b.WriteByte(']')
		return
	}

	if d, ok := v.(Document); ok {
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonicalValue(b, d[k])
		}
		b.WriteByte('}')
		return
	}

	if f, ok := toFloat(v); ok {
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}

	switch t := v.(type) {
	case string:
		b.WriteString(strconv.Quote(t))
	case bool:
		b.WriteString(strconv.FormatBool(t))
	default:
		b.WriteString(strconv.Quote(fmt.Sprintf("%v", t)))
	}
}
