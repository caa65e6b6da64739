package schema

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// Repr returns a call style representation of the entity, such as
// Object(type="ipv4", value="127.0.0.1"). Fields holding their default value
// and fields that are never serialized are left out. Parsing the result with
// a Registry that knows the schema yields an equal entity.
func (e *Entity) Repr() string {
	var b strings.Builder
	e.writeRepr(&b)
	return b.String()
}

func (e *Entity) writeRepr(b *strings.Builder) {
	if e == nil {
		b.WriteString("null")
		return
	}

	b.WriteString(e.schema.name)
	b.WriteByte('(')

	n := 0
	for _, f := range e.schema.fields {
		if f.serializeOff {
			continue
		}

		value := e.data[f.name]
		if same, _ := valuesEqual(value, f.defaultPrototype()); same {
			continue
		}

		if f.serializer != nil {
			value = f.serializer(value)
		}

		if n > 0 {
			b.WriteString(", ")
		}
		n++

		b.WriteString(f.name)
		b.WriteByte('=')
		writeReprValue(b, value)
	}

	b.WriteByte(')')
}

func writeReprValue(b *strings.Builder, v any) {
	if v == nil {
		b.WriteString("null")
		return
	}

	if e, ok := v.(*Entity); ok {
		e.writeRepr(b)
		return
	}

	if l, ok := asList(v); ok {
		b.WriteByte('[')
		for i, item := range l {
			if i > 0 {
				b.WriteString(", ")
			}
			writeReprValue(b, item)
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
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			writeReprValue(b, d[k])
		}
		b.WriteByte('}')
		return
	}

	writeCanonicalValue(b, v)
}

// Registry resolves schema names found in representations.
type Registry map[string]*Schema

func NewRegistry(schemas ...*Schema) Registry {
	r := make(Registry, len(schemas))
	for _, s := range schemas {
		r[s.name] = s
	}
	return r
}

// Parse evaluates a representation produced by Repr back into an entity.
func (r Registry) Parse(ctx context.Context, repr string) (*Entity, error) {
	p := &reprParser{registry: r, ctx: ctx}
	p.s.Init(strings.NewReader(repr))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	p.s.Error = func(_ *scanner.Scanner, msg string) {
		p.fail("%s", msg)
	}
	p.next()

	v := p.value()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %s after value", p.s.TokenText())
	}

	if p.err != nil {
		return nil, p.err
	}

	e, ok := v.(*Entity)
	if !ok {
		return nil, errors.NewArgumentError("representation %q does not describe an entity", repr)
	}

	return e, nil
}

type reprParser struct {
	registry Registry
	ctx      context.Context
	s        scanner.Scanner
	tok      rune
	err      error
}

func (p *reprParser) next() {
	p.tok = p.s.Scan()
}

func (p *reprParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = errors.NewArgumentError("invalid representation at %s: %s", p.s.Position, fmt.Sprintf(format, args...))
	}
}

func (p *reprParser) expect(tok rune) {
	if p.tok != tok {
		p.fail("expected %s, got %s", scanner.TokenString(tok), scanner.TokenString(p.tok))
		return
	}
	p.next()
}

func (p *reprParser) value() any {
	if p.err != nil {
		return nil
	}

	switch p.tok {
	case scanner.String:
		text := p.s.TokenText()
		p.next()
		s, err := strconv.Unquote(text)
		if err != nil {
			p.fail("bad string %s", text)
		}
		return s
	case scanner.Int, scanner.Float, '-':
		return p.number()
	case '[':
		return p.list()
	case '{':
		return p.document()
	case scanner.Ident:
		ident := p.s.TokenText()
		p.next()

		switch ident {
		case "null":
			return nil
		case "true":
			return true
		case "false":
			return false
		}

		return p.call(ident)
	}

	p.fail("unexpected %s", scanner.TokenString(p.tok))
	return nil
}

func (p *reprParser) number() any {
	sign := ""
	if p.tok == '-' {
		sign = "-"
		p.next()
	}

	if p.tok != scanner.Int && p.tok != scanner.Float {
		p.fail("expected number")
		return nil
	}

	text := sign + p.s.TokenText()
	p.next()

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.fail("bad number %s", text)
		return nil
	}
	return f
}

func (p *reprParser) list() any {
	p.expect('[')
	result := []any{}

	for p.err == nil && p.tok != ']' {
		result = append(result, p.value())
		if p.tok != ',' {
			break
		}
		p.next()
	}

	p.expect(']')
	return result
}

func (p *reprParser) document() any {
	p.expect('{')
	result := Document{}

	for p.err == nil && p.tok != '}' {
		key, ok := p.value().(string)
		if !ok {
			p.fail("document keys must be strings")
			return nil
		}

		p.expect(':')
		result[key] = p.value()

		if p.tok != ',' {
			break
		}
		p.next()
	}

	p.expect('}')
	return result
}

func (p *reprParser) call(name string) any {
	s, ok := p.registry[name]
	if !ok {
		p.fail("unknown schema %s", name)
		return nil
	}

	p.expect('(')
	args := Document{}

	for p.err == nil && p.tok != ')' {
		if p.tok != scanner.Ident {
			p.fail("expected field name")
			return nil
		}

		field := p.s.TokenText()
		p.next()
		p.expect('=')
		args[field] = p.value()

		if p.tok != ',' {
			break
		}
		p.next()
	}

	p.expect(')')

	if p.err != nil {
		return nil
	}

	e, err := s.Build(p.ctx, nil, args)
	if err != nil {
		p.err = err
		return nil
	}

	return e
}
