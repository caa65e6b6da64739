package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// APIClient performs requests against the platform REST API and returns the
// decoded response documents.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values) (schema.Document, error)
	Post(ctx context.Context, path string, body any) (schema.Document, error)
	Put(ctx context.Context, path string, body any) (schema.Document, error)
	Delete(ctx context.Context, path string) (schema.Document, error)

	BaseURL() string
	// Key identifies the connection configuration. Clients with equal keys
	// talk to the same platform on behalf of the same user.
	Key() string
}

const UserIDHeader string = "ACT-User-ID"

const (
	TraceAttributeUserID string = "act-user-id"
	TraceAttributeURI    string = "act-uri"
)

var tracer = otel.Tracer("act-api-client")

func Debug(enabled string) func(*actClient) {
	return func(c *actClient) {
		c.debug = (enabled == "true")
	}
}

func UserID(userID string) func(*actClient) {
	return func(c *actClient) {
		c.userID = userID
	}
}

// Headers adds headers that are sent with every request.
func Headers(headers map[string][]string) func(*actClient) {
	return func(c *actClient) {
		for header, values := range headers {
			c.headers[http.CanonicalHeaderKey(header)] = append(c.headers[http.CanonicalHeaderKey(header)], values...)
		}
	}
}

func BasicAuth(username, password string) func(*actClient) {
	return func(c *actClient) {
		c.username = username
		c.password = password
	}
}

func HTTPClient(httpClient *http.Client) func(*actClient) {
	return func(c *actClient) {
		c.httpClient = httpClient
	}
}

func NewAPIClient(baseURL string, options ...func(*actClient)) APIClient {
	c := &actClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: map[string][]string{},
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

type actClient struct {
	baseURL    string
	userID     string
	headers    map[string][]string
	username   string
	password   string
	debug      bool
	httpClient *http.Client
}

func (c *actClient) BaseURL() string {
	return c.baseURL
}

func (c *actClient) Key() string {
	names := make([]string, 0, len(c.headers))
	for name := range c.headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("|")
	b.WriteString(c.userID)
	b.WriteString("|")
	b.WriteString(c.username)

	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(strings.Join(c.headers[name], ","))
	}

	return b.String()
}

func (c *actClient) Get(ctx context.Context, path string, query url.Values) (schema.Document, error) {
	endpoint := c.url(path)
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	return c.do(ctx, "get", http.MethodGet, endpoint, nil)
}

func (c *actClient) Post(ctx context.Context, path string, body any) (schema.Document, error) {
	return c.do(ctx, "post", http.MethodPost, c.url(path), body)
}

func (c *actClient) Put(ctx context.Context, path string, body any) (schema.Document, error) {
	return c.do(ctx, "put", http.MethodPut, c.url(path), body)
}

func (c *actClient) Delete(ctx context.Context, path string) (schema.Document, error) {
	return c.do(ctx, "delete", http.MethodDelete, c.url(path), nil)
}

func (c *actClient) url(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *actClient) do(ctx context.Context, operation, method, endpoint string, payload any) (schema.Document, error) {
	var err error

	ctx, span := tracer.Start(ctx, operation,
		trace.WithAttributes(attribute.String(TraceAttributeUserID, c.userID)),
		trace.WithAttributes(attribute.String(TraceAttributeURI, endpoint)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body io.Reader
	if payload != nil {
		var b []byte
		b, err = json.Marshal(payload)
		if err != nil {
			err = fmt.Errorf("failed to marshal request body: %s (%w)", err.Error(), errors.ErrInternal)
			return nil, err
		}
		body = bytes.NewBuffer(b)
	}

	response, responseBody, err := c.callPlatform(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		err = errors.NewErrorFromResponse(response.StatusCode, endpoint, responseBody)
		return nil, err
	}

	if len(bytes.TrimSpace(responseBody)) == 0 {
		return schema.Document{}, nil
	}

	doc := schema.Document{}
	err = json.Unmarshal(responseBody, &doc)
	if err != nil {
		if c.debug && len(responseBody) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s (%w)", string(responseBody), err.Error(), errors.ErrResponse)
		} else {
			err = errors.NewResponseError("error decoding response %d: %s", response.StatusCode, err.Error())
		}
		return nil, err
	}

	return doc, nil
}

func (c *actClient) callPlatform(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	for header, headerValue := range c.headers {
		for _, val := range headerValue {
			req.Header.Add(header, val)
		}
	}

	if c.userID != "" {
		req.Header.Set(UserIDHeader, c.userID)
	}

	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connection error: %s (%w, %w)", err.Error(), errors.ErrRequest, errors.ErrResponse)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", slog.String("request", string(reqbytes)), slog.String("response", string(respbytes)))
	}

	return resp, respBody, nil
}
