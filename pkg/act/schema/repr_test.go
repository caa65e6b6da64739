package schema

import (
	"context"
	"errors"
	"testing"

	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

var registry = NewRegistry(kindSchema, statsSchema, thingSchema)

func TestReprListsNonDefaultFields(t *testing.T) {
	is := is.New(t)

	e := thingSchema.MustBuild(context.Background(), []any{"ipv4", "127.0.0.1"}, nil)
	is.Equal(e.Repr(), `Thing(kind="ipv4", value="127.0.0.1")`)
}

func TestReprRendersNestedEntities(t *testing.T) {
	is := is.New(t)

	e := thingSchema.MustBuild(context.Background(), nil, Document{
		"stats": Document{"count": 2, "firstSeen": 5},
		"tags":  []any{"a"},
		"flag":  true,
	})
	is.Equal(e.Repr(), `Thing(tags=["a"], stats=Stats(count=2), flag=true)`)
}

func TestReprRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	entities := []*Entity{
		thingSchema.MustBuild(ctx, nil, nil),
		thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1", "id-1"}, nil),
		thingSchema.MustBuild(ctx, nil, Document{
			"kind":   Document{"name": "fqdn"},
			"value":  "quoted \"value\"\n",
			"tags":   []any{"a", 2.5, nil, false},
			"labels": Document{"k": []any{-1}},
			"stats":  Document{"count": 12},
			"score":  -3,
			"flag":   true,
		}),
	}

	for _, e := range entities {
		back, err := registry.Parse(ctx, e.Repr())
		is.NoErr(err)

		eq, err := back.Equal(e)
		is.NoErr(err)
		is.True(eq) // evaluating the representation must reproduce the entity
	}
}

func TestParseRejectsUnknownSchemas(t *testing.T) {
	is := is.New(t)

	_, err := registry.Parse(context.Background(), `Unknown(value="x")`)
	is.True(errors.Is(err, acterrors.ErrArgument))

	_, err = registry.Parse(context.Background(), `Thing(value="x"`)
	is.True(err != nil)

	_, err = registry.Parse(context.Background(), `"just a string"`)
	is.True(errors.Is(err, acterrors.ErrArgument))
}
