package act

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/client"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

// OriginResolver maps origin names to ids. The full origin list is fetched
// once for every distinct connection configuration and kept until invalidated.
type OriginResolver struct {
	mu     sync.Mutex
	cache  map[string]map[string]string
	bypass bool
}

type ResolverOption func(*OriginResolver)

// BypassCache makes every lookup fetch the origin list from the platform.
func BypassCache() ResolverOption {
	return func(r *OriginResolver) {
		r.bypass = true
	}
}

func NewOriginResolver(options ...ResolverOption) *OriginResolver {
	r := &OriginResolver{
		cache: map[string]map[string]string{},
	}

	for _, option := range options {
		option(r)
	}

	return r
}

var defaultResolver = NewOriginResolver()

// InvalidateOrigins drops every cached origin list of the shared resolver.
func InvalidateOrigins() {
	defaultResolver.Invalidate()
}

func (r *OriginResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.cache)
}

// Resolve returns the origin id to submit. An id given without a name is
// used as is. A name is looked up and must agree with the id when both are given.
func (r *OriginResolver) Resolve(ctx context.Context, api client.APIClient, name, id string) (string, error) {
	if name == "" {
		return id, nil
	}

	origins, err := r.origins(ctx, api)
	if err != nil {
		return "", err
	}

	resolved, ok := origins[name]
	if !ok {
		return "", errors.NewOriginNotFoundError("origin %s does not exist", name)
	}

	if id != "" && id != resolved {
		return "", errors.NewOriginMismatchError("origin id %s does not match id %s of origin %s", id, resolved, name)
	}

	return resolved, nil
}

func (r *OriginResolver) origins(ctx context.Context, api client.APIClient) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := api.Key()

	if !r.bypass {
		if origins, ok := r.cache[key]; ok {
			return origins, nil
		}
	}

	query := url.Values{}
	query.Set("includeDeleted", "false")
	query.Set("limit", "10000")

	response, err := api.Get(ctx, "v1/origin", query)
	if err != nil {
		return nil, err
	}

	rs, err := NewResultSet(ctx, response, DecodeOrigin)
	if err != nil {
		return nil, err
	}

	origins := make(map[string]string, rs.Len())
	for o := range rs.All() {
		origins[o.Name()] = o.ID()
	}

	logging.GetFromContext(ctx).Debug("fetched origins", slog.Int("count", len(origins)), slog.String("url", api.BaseURL()))

	if !r.bypass {
		r.cache[key] = origins
	}

	return origins, nil
}

// originReference is the origin value for a new fact: a name, an id, or both.
func originReference(ctx context.Context, name, id string) (*schema.Entity, error) {
	if name == "" && id == "" {
		return nil, nil
	}

	named := schema.Document{}
	setOrDelete(named, "name", name)
	setOrDelete(named, "id", id)

	return OriginSchema.Build(ctx, nil, named)
}
