package act

import (
	"context"
	"errors"
	"net/http"
	"testing"

	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

func TestCreateFactTypeWithBindings(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	p, a := testPlatform(t)
	p.AddObjectType("fqdn")

	bindings := []ObjectBindingSpec{
		{SourceObjectTypes: []string{"ipv4", "fqdn"}, DestinationObjectTypes: []string{"report"}},
	}

	ft, err := a.CreateFactType(ctx, "mentionedIn", DefaultValidator, bindings, 0.8)
	is.NoErr(err)
	is.True(ft.ID() != "")
	is.Equal(len(ft.ObjectBindings()), 2)
	is.Equal(p.Requests(http.MethodPost, "/v1/factType"), 1)

	body := p.LastBody(http.MethodPost, "/v1/factType")
	is.Equal(body["name"], "mentionedIn")
	is.Equal(body["defaultConfidence"], 0.8)
	is.Equal(len(body["relevantObjectBindings"].([]any)), 2)

	// existing bindings are not sent again
	ft, err = a.CreateFactType(ctx, "mentionedIn", DefaultValidator, bindings, 0.8)
	is.NoErr(err)
	is.Equal(p.Requests(http.MethodPut, "/v1/factType/uuid/{id}"), 0)

	bindings = append(bindings, ObjectBindingSpec{SourceObjectTypes: []string{"report"}, DestinationObjectTypes: []string{"ipv4"}, Bidirectional: true})

	ft, err = a.CreateFactType(ctx, "mentionedIn", DefaultValidator, bindings, 0.8)
	is.NoErr(err)
	is.Equal(p.Requests(http.MethodPut, "/v1/factType/uuid/{id}"), 1)
	is.Equal(len(p.LastBody(http.MethodPut, "/v1/factType/uuid/{id}")["addObjectBindings"].([]any)), 1)
	is.Equal(len(ft.ObjectBindings()), 3)
}

func TestCreateFactTypeWithOneSidedBinding(t *testing.T) {
	is := is.New(t)

	_, a := testPlatform(t)

	ft, err := a.CreateFactType(context.Background(), "name", DefaultValidator, []ObjectBindingSpec{
		{DestinationObjectTypes: []string{"report"}},
	}, 1.0)
	is.NoErr(err)
	is.Equal(len(ft.ObjectBindings()), 1)
	is.Equal(ft.ObjectBindings()[0].GetRef("source_object_type"), nil)
}

func TestCreateFactTypeRejectsUnknownObjectTypes(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	_, a := testPlatform(t)

	_, err := a.CreateFactType(ctx, "mentionedIn", DefaultValidator, []ObjectBindingSpec{
		{SourceObjectTypes: []string{"ipv9"}, DestinationObjectTypes: []string{"report"}},
	}, 1.0)
	is.True(errors.Is(err, acterrors.ErrArgument))

	_, err = a.CreateFactType(ctx, "mentionedIn", DefaultValidator, []ObjectBindingSpec{{}}, 1.0)
	is.True(errors.Is(err, acterrors.ErrArgument))
}

func TestCreateFactTypeAllBindings(t *testing.T) {
	is := is.New(t)

	_, a := testPlatform(t)

	ft, err := a.CreateFactTypeAllBindings(context.Background(), "related", DefaultValidator, 1.0)
	is.NoErr(err)

	// two object types, both directions, with and without bidirectional binding
	is.Equal(len(ft.ObjectBindings()), 8)
}

func TestCreateMetaFactTypes(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	p, a := testPlatform(t)

	ft, err := a.CreateMetaFactType(ctx, "observationTime2", []string{"seenIn"}, DefaultValidator)
	is.NoErr(err)
	is.True(ft.IsMeta())
	is.Equal(ft.FactBindings()[0].GetString("name"), "seenIn")

	_, err = a.CreateMetaFactType(ctx, "observationTime3", []string{"noSuchType"}, DefaultValidator)
	is.True(errors.Is(err, acterrors.ErrArgument))

	all, err := a.CreateMetaFactTypeAllBindings(ctx, "tlp", DefaultValidator)
	is.NoErr(err)

	// observationTime2 binds facts and is left out
	names := []string{}
	for _, b := range all.FactBindings() {
		names = append(names, b.GetString("name"))
	}
	is.Equal(names, []string{"seenIn", "observationTime"})

	_, err = a.CreateMetaFactTypeAllBindings(ctx, "tlp", DefaultValidator)
	is.NoErr(err)
	is.Equal(p.Requests(http.MethodPut, "/v1/factType/uuid/{id}"), 0)
}

func TestRenameFactType(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	_, a := testPlatform(t)

	ft, err := a.CreateFactType(ctx, "mentionedIn", DefaultValidator, nil, 1.0)
	is.NoErr(err)

	err = ft.Rename(ctx, "mentions")
	is.NoErr(err)
	is.Equal(ft.Name(), "mentions")

	types, err := a.GetFactTypes(ctx)
	is.NoErr(err)

	found := false
	for ft := range types.All() {
		found = found || ft.Name() == "mentions"
	}
	is.True(found)
}
