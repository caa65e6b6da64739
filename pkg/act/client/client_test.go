package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath
var body = expects.RequestBody
var queryParam = expects.QueryParamEquals

func TestGetDecodesDocument(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/v1/origin"),
			queryParam("limit", "10"),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"responseCode":200,"count":1,"limit":10,"size":1,"data":[{"name":"test-origin"}]}`)),
		),
	)
	defer s.Close()

	c := NewAPIClient(s.URL(), UserID("1"))

	doc, err := c.Get(context.Background(), "v1/origin", url.Values{"limit": []string{"10"}})
	is.NoErr(err)
	is.Equal(doc["size"], 1.0)
	is.Equal(s.RequestCount(), 1)
}

func TestPostEncodesBody(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			path("/v1/objectType"),
			body(`{"name":"ipv4"}`),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusCreated),
			response.Body([]byte(`{"data":{"id":"4d2a1ca9-0f10-4b55-a4ba-30c1cd1f6bcb","name":"ipv4"}}`)),
		),
	)
	defer s.Close()

	c := NewAPIClient(s.URL() + "/")

	doc, err := c.Post(context.Background(), "/v1/objectType", map[string]any{"name": "ipv4"})
	is.NoErr(err)
	is.Equal(doc["data"].(map[string]any)["name"], "ipv4")
}

func TestRequestsCarryUserIDHeadersAndAuth(t *testing.T) {
	is := is.New(t)

	var received *http.Request
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer s.Close()

	c := NewAPIClient(s.URL,
		UserID("42"),
		Headers(map[string][]string{"x-custom": {"a", "b"}}),
		BasicAuth("user", "secret"),
	)

	_, err := c.Delete(context.Background(), "v1/origin/uuid/abc")
	is.NoErr(err)

	is.Equal(received.Method, http.MethodDelete)
	is.Equal(received.Header.Get(UserIDHeader), "42")
	is.Equal(received.Header.Values("X-Custom"), []string{"a", "b"})

	username, password, ok := received.BasicAuth()
	is.True(ok)
	is.Equal(username, "user")
	is.Equal(password, "secret")
}

func TestValidationErrorFromPreconditionFailed(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusPreconditionFailed),
			response.Body([]byte(`{"responseCode":412,"messages":[{"type":"FieldError","message":"Object did not pass validation against ObjectType.","messageTemplate":"object.not.valid","field":"objectValue","parameter":"127.0.0.x"}],"data":null,"size":0}`)),
		),
	)
	defer s.Close()

	c := NewAPIClient(s.URL())

	_, err := c.Post(context.Background(), "v1/fact", map[string]any{})
	is.True(errors.Is(err, acterrors.ErrValidation))
	is.Equal(err.Error(), "Object did not pass validation against ObjectType. (objectValue=127.0.0.x)")
}

func TestServiceTimeout(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusServiceUnavailable),
			response.Body([]byte(`{"responseCode":503,"messages":[{"type":"ActionError","message":"Request timed out","messageTemplate":"service.timeout","field":null,"parameter":null}]}`)),
		),
	)
	defer s.Close()

	_, err := NewAPIClient(s.URL()).Post(context.Background(), "v1/fact/search", map[string]any{})
	is.True(errors.Is(err, acterrors.ErrServiceTimeout))
}

func TestUnexpectedStatusIsResponseError(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusForbidden),
			response.Body([]byte(`{"messages":[]}`)),
		),
	)
	defer s.Close()

	_, err := NewAPIClient(s.URL(), Debug("true")).Get(context.Background(), "v1/fact/uuid/x", nil)
	is.True(errors.Is(err, acterrors.ErrResponse))
	is.True(strings.Contains(err.Error(), "status_code=403"))
}

func TestUndecodableBodyIsResponseError(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`not json`)),
		),
	)
	defer s.Close()

	_, err := NewAPIClient(s.URL()).Get(context.Background(), "v1/objectType", nil)
	is.True(errors.Is(err, acterrors.ErrResponse))
}

func TestConnectionErrorIsResponseError(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.NotFoundHandler())
	endpoint := s.URL
	s.Close()

	_, err := NewAPIClient(endpoint).Get(context.Background(), "v1/objectType", nil)
	is.True(errors.Is(err, acterrors.ErrResponse))
}

func TestKeyIdentifiesConfiguration(t *testing.T) {
	is := is.New(t)

	a := NewAPIClient("http://act", UserID("1"), Headers(map[string][]string{"b": {"2"}, "a": {"1"}}))
	b := NewAPIClient("http://act/", UserID("1"), Headers(map[string][]string{"a": {"1"}, "b": {"2"}}))
	c := NewAPIClient("http://act", UserID("2"))

	is.Equal(a.Key(), b.Key())
	is.True(a.Key() != c.Key())
}
