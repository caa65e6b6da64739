package act

import (
	"context"
	"errors"
	"net/http"
	"testing"

	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/mnemonic-no/act-api-go/pkg/act/client"
	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

const originID string = "e6a1c7c1-1a3b-4e0c-9e4b-3a5f6b1f0a11"

// newOriginService serves a single origin and returns its URL, a request
// counter and a function that stops it.
func newOriginService(is *is.I) (string, func() int, func()) {
	s := testutils.NewMockServiceThat(
		testutils.Expects(
			is,
			expects.RequestMethod(http.MethodGet),
			expects.RequestPath("/v1/origin"),
			expects.QueryParamEquals("limit", "10000"),
		),
		testutils.Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"responseCode":200,"limit":10000,"count":1,"size":1,"data":[{"id":"`+originID+`","name":"test-origin","trust":0.8}]}`)),
		),
	)

	return s.URL(), s.RequestCount, s.Close
}

func TestOriginLookupIsCachedPerConfiguration(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	baseURL, requestCount, closeService := newOriginService(is)
	defer closeService()

	r := NewOriginResolver()
	api := client.NewAPIClient(baseURL, client.UserID("1"))

	id, err := r.Resolve(ctx, api, "test-origin", "")
	is.NoErr(err)
	is.Equal(id, originID)

	id, err = r.Resolve(ctx, client.NewAPIClient(baseURL, client.UserID("1")), "test-origin", "")
	is.NoErr(err)
	is.Equal(id, originID)
	is.Equal(requestCount(), 1)

	_, err = r.Resolve(ctx, client.NewAPIClient(baseURL, client.UserID("2")), "test-origin", "")
	is.NoErr(err)
	is.Equal(requestCount(), 2)
}

func TestOriginCacheCanBeInvalidatedOrBypassed(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	baseURL, requestCount, closeService := newOriginService(is)
	defer closeService()

	api := client.NewAPIClient(baseURL, client.UserID("1"))

	r := NewOriginResolver()
	r.Resolve(ctx, api, "test-origin", "")
	r.Invalidate()
	r.Resolve(ctx, api, "test-origin", "")
	is.Equal(requestCount(), 2)

	bypass := NewOriginResolver(BypassCache())
	bypass.Resolve(ctx, api, "test-origin", "")
	bypass.Resolve(ctx, api, "test-origin", "")
	is.Equal(requestCount(), 4)
}

func TestOriginResolution(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	baseURL, requestCount, closeService := newOriginService(is)
	defer closeService()

	api := client.NewAPIClient(baseURL, client.UserID("1"))
	r := NewOriginResolver()

	id, err := r.Resolve(ctx, api, "", originID)
	is.NoErr(err)
	is.Equal(id, originID)
	is.Equal(requestCount(), 0)

	id, err = r.Resolve(ctx, api, "test-origin", originID)
	is.NoErr(err)
	is.Equal(id, originID)

	_, err = r.Resolve(ctx, api, "test-origin", "00000000-0000-0000-0000-000000000000")
	is.True(errors.Is(err, acterrors.ErrOriginMismatch))

	_, err = r.Resolve(ctx, api, "other-origin", "")
	is.True(errors.Is(err, acterrors.ErrOriginNotFound))
}
