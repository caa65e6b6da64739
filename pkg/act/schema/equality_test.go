package schema

import (
	"context"
	"errors"
	"testing"

	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

func TestEqualIgnoresMissingID(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1", "A"}, nil)
	y := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1"}, nil)

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(eq)
	is.Equal(x.Hash(), y.Hash())
}

func TestEqualFailsOnDifferentIDs(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1", "A"}, nil)
	y := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1", "B"}, nil)

	_, err := x.Equal(y)
	is.True(errors.Is(err, acterrors.ErrInconsistentIdentity))
}

func TestDifferentEntitiesWithDifferentIDsAreNotEqual(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1", "A"}, nil)
	y := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.2", "B"}, nil)

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(!eq)
}

func TestEqualIgnoresFieldsThatAreNeverSerialized(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := kindSchema.MustBuild(ctx, []any{"ipv4"}, Document{"namespace": "a"})
	y := kindSchema.MustBuild(ctx, []any{"ipv4"}, Document{"namespace": "b"})

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(eq)
}

func TestEqualRequiresSameSchema(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	other, err := New("OtherKind", kindSchema.Fields())
	is.NoErr(err)

	eq, err := kindSchema.MustBuild(ctx, []any{"a"}, nil).Equal(other.MustBuild(ctx, []any{"a"}, nil))
	is.NoErr(err)
	is.True(!eq)
}

func TestNumbersCompareByValue(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := thingSchema.MustBuild(ctx, nil, Document{"score": 1})
	y := thingSchema.MustBuild(ctx, nil, Document{"score": 1.0})

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(eq)
	is.Equal(x.Fingerprint(), y.Fingerprint())
}

func TestIdentityFieldsNarrowTheHash(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	named, err := kindSchema.Extend("NamedKind", []Field{NewField("description")}, IdentityFields("name"))
	is.NoErr(err)

	x := named.MustBuild(ctx, []any{"ipv4"}, Document{"description": "one"})
	y := named.MustBuild(ctx, []any{"ipv4"}, Document{"description": "two"})

	is.Equal(x.Hash(), y.Hash())

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(!eq) // equality still covers every serializable field
}

func TestNilEntityEqualsMissingValue(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	x := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1"}, nil)
	y := thingSchema.MustBuild(ctx, []any{"ipv4", "127.0.0.1"}, nil)
	x.Set("stats", (*Entity)(nil))

	eq, err := x.Equal(y)
	is.NoErr(err)
	is.True(eq)
	is.Equal(x.Fingerprint(), y.Fingerprint())

	_, ok := x.Serialize()["stats"]
	is.True(!ok)
}
