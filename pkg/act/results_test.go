package act

import (
	"context"
	"errors"
	"testing"

	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"

	"github.com/matryer/is"
)

func originPage(size, count int, names ...string) schema.Document {
	data := []any{}
	for _, name := range names {
		data = append(data, schema.Document{"name": name})
	}

	return schema.Document{
		"responseCode": 200.0,
		"size":         float64(size),
		"count":        float64(count),
		"limit":        float64(size),
		"data":         data,
	}
}

func TestResultSetCompleteness(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	rs, err := NewResultSet(ctx, originPage(1, 5, "a"), DecodeOrigin)
	is.NoErr(err)
	is.True(!rs.Complete())
	is.True(rs.NonEmpty())
	is.Equal(rs.StatusCode, 200)

	rs, err = NewResultSet(ctx, originPage(5, 5, "a", "b", "c", "d", "e"), DecodeOrigin)
	is.NoErr(err)
	is.True(rs.Complete())
	is.Equal(rs.Len(), 5)
	is.Equal(rs.At(4).Name(), "e")
	is.Equal(len(rs.Slice(1, 3)), 2)
}

func TestResultSetIteratesInResponseOrder(t *testing.T) {
	is := is.New(t)

	rs, err := NewResultSet(context.Background(), originPage(3, 3, "c", "a", "b"), DecodeOrigin)
	is.NoErr(err)

	names := []string{}
	for o := range rs.All() {
		names = append(names, o.Name())
	}
	for o := range rs.All() {
		names = append(names, o.Name())
	}

	is.Equal(names, []string{"c", "a", "b", "c", "a", "b"})
}

func TestEmptyResultSet(t *testing.T) {
	is := is.New(t)

	rs, err := NewResultSet(context.Background(), originPage(0, 0), DecodeOrigin)
	is.NoErr(err)
	is.True(!rs.NonEmpty())
	is.True(rs.Complete())
	is.Equal(rs.String(), "No result")
}

func TestResultSetRequiresList(t *testing.T) {
	is := is.New(t)

	_, err := NewResultSet(context.Background(), schema.Document{"data": schema.Document{}}, DecodeOrigin)
	is.True(errors.Is(err, acterrors.ErrResponse))

	_, err = NewResultSet(context.Background(), schema.Document{"data": []any{"origin"}}, DecodeOrigin)
	is.True(errors.Is(err, acterrors.ErrResponse))
}

func TestApplyLeavesResultSetUnchangedOnError(t *testing.T) {
	is := is.New(t)

	rs, _ := NewResultSet(context.Background(), originPage(2, 2, "a", "b"), DecodeOrigin)
	first := rs.At(0)

	renamed := func(fail string) func(o *Origin) (*Origin, error) {
		return func(o *Origin) (*Origin, error) {
			if o.Name() == fail {
				return nil, errors.New("failed")
			}
			c := &Origin{base{Entity: o.Clone()}}
			c.Set("name", o.Name()+"-renamed")
			return c, nil
		}
	}

	err := rs.Apply(renamed("b"))
	is.True(err != nil)
	is.True(rs.At(0) == first)
	is.Equal(rs.At(0).Name(), "a")

	err = rs.Apply(renamed(""))
	is.NoErr(err)
	is.Equal(rs.At(0).Name(), "a-renamed")
	is.Equal(rs.At(1).Name(), "b-renamed")
}

func TestSliceIsACopy(t *testing.T) {
	is := is.New(t)

	rs, err := NewResultSet(context.Background(), originPage(3, 3, "a", "b", "c"), DecodeOrigin)
	is.NoErr(err)

	part := rs.Slice(0, 2)
	part[0] = nil
	part = append(part, nil)

	is.Equal(len(part), 3)
	is.Equal(rs.At(0).Name(), "a")
	is.Equal(rs.At(2).Name(), "c")
}
