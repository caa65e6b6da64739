package act

import (
	"context"
	"errors"
	"net/http"
	"testing"

	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
	"github.com/mnemonic-no/act-api-go/pkg/act/search"

	"github.com/matryer/is"
)

func TestObjectReferencesFromWire(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	v, err := objectFromWire(ctx, "ipv4/127.0.0.1")
	is.NoErr(err)
	is.Equal(wrapObject(v.(*schema.Entity), nil).String(), "(ipv4/127.0.0.1)")

	v, err = objectFromWire(ctx, "uri/http://example.com/a/b")
	is.NoErr(err)
	is.Equal(v.(*schema.Entity).GetString("value"), "http://example.com/a/b")

	v, err = objectFromWire(ctx, originID)
	is.NoErr(err)
	is.Equal(objectReference(v.(*schema.Entity)), originID)

	v, err = objectFromWire(ctx, schema.Document{"id": originID, "type": schema.Document{"name": "ipv4"}, "value": "127.0.0.1"})
	is.NoErr(err)
	is.Equal(objectReference(v.(*schema.Entity)), originID)

	_, err = objectFromWire(ctx, "no-type-and-value")
	is.True(errors.Is(err, acterrors.ErrValidation))
}

func TestObjectWireForms(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, _ := New(Config{})

	obj, err := a.Object(ctx, "ipv4", "127.0.0.1")
	is.NoErr(err)
	is.True(obj.Truthy())
	is.Equal(obj.Serialize(), schema.Document{"type": "ipv4", "value": "127.0.0.1"})
	is.Equal(objectReference(obj.Entity), "ipv4/127.0.0.1")

	empty, _ := ObjectSchema.Build(ctx, nil, nil)
	is.True(!empty.Truthy())
	is.Equal(empty.WireValue(), nil)
}

func TestObjectFactsAndSearch(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	p, a := testPlatform(t)
	addSeenIn(t, a)

	obj, _ := a.Object(ctx, "ipv4", "127.0.0.1")

	facts, err := obj.Facts(ctx)
	is.NoErr(err)
	is.Equal(facts.Len(), 1)
	is.Equal(facts.At(0).Act(), a)
	is.Equal(p.Requests(http.MethodPost, "/v1/object/{type}/{value}/facts"), 1)

	objects, err := a.ObjectSearch(ctx, search.FactType("seenIn"), search.ObjectType("report"))
	is.NoErr(err)
	is.Equal(objects.Len(), 1)
	is.Equal(objects.At(0).String(), "(report/abc)")
	is.Equal(len(objects.At(0).Statistics()), 1)

	found, err := a.FactSearch(ctx, search.ObjectValue("abc"), search.Limit(5))
	is.NoErr(err)
	is.Equal(found.Len(), 1)
	is.True(found.Complete())
	is.Equal(p.LastBody(http.MethodPost, "/v1/fact/search")["limit"], 5.0)

	byID, _ := a.ObjectByID(ctx, objects.At(0).ID())
	facts, err = byID.Facts(ctx)
	is.NoErr(err)
	is.Equal(facts.Len(), 1)
}

func TestTraverseClassifiesElements(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	_, a := testPlatform(t)
	f := addSeenIn(t, a)

	meta, _ := f.Meta(ctx, "observationTime", Value("2016-09-28T21:26:22Z"))
	is.NoErr(meta.Add(ctx))

	obj, _ := a.Object(ctx, "ipv4", "127.0.0.1")

	result, err := obj.Traverse(ctx, "g.outE()")
	is.NoErr(err)
	is.Equal(len(result.Facts), 1)
	is.Equal(len(result.MetaFacts), 1)
	is.Equal(len(result.Objects), 1)
	is.Equal(result.Objects[0].String(), "(report/abc)")
}

func TestObjectWithoutIdentityCannotBeQueried(t *testing.T) {
	is := is.New(t)

	_, a := testPlatform(t)

	obj, _ := a.Object(context.Background(), "ipv4", "")
	_, err := obj.Facts(context.Background())
	is.True(errors.Is(err, acterrors.ErrMissingField))
}
