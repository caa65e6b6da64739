package act

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/client"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
	"github.com/mnemonic-no/act-api-go/pkg/act/search"
)

// Registry knows every entity schema of the platform and evaluates their repr strings.
var Registry = schema.NewRegistry(
	NamespaceSchema, OrganizationSchema, UserReferenceSchema, OriginSchema, CommentSchema,
	ObjectTypeSchema, ObjectStatisticsSchema, ObjectSchema,
	RelevantObjectBindingsSchema, RelevantFactBindingsSchema, FactTypeSchema,
	ReferencedFactSchema, FactSchema,
)

// Act creates entities bound to one platform connection and carries the
// defaults applied to new facts.
type Act struct {
	cfg     Config
	api     client.APIClient
	origins *OriginResolver
}

type Option func(*Act)

// WithAPIClient replaces the HTTP client that would otherwise be created from the config.
func WithAPIClient(api client.APIClient) Option {
	return func(a *Act) {
		a.api = api
	}
}

func WithOriginResolver(r *OriginResolver) Option {
	return func(a *Act) {
		a.origins = r
	}
}

// New validates the config and connects to the platform at cfg.BaseURL. Without
// a base URL the instance can still build entities but not submit them.
func New(cfg Config, options ...Option) (*Act, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Act{
		cfg:     cfg,
		origins: defaultResolver,
	}

	for _, option := range options {
		option(a)
	}

	if a.api == nil && cfg.BaseURL != "" {
		a.api = client.NewAPIClient(cfg.BaseURL,
			client.UserID(cfg.UserID),
			client.Headers(cfg.Headers),
			client.BasicAuth(cfg.Username, cfg.Password),
			client.Debug(strconv.FormatBool(cfg.Debug)),
		)
	}

	return a, nil
}

func (a *Act) Config() Config {
	return a.cfg
}

// Connected reports if entities created by this instance can talk to the platform.
func (a *Act) Connected() bool {
	return a != nil && a.api != nil
}

// Fact creates an unsaved fact of the given type. Origin, access mode,
// organization and ACL default to the configured values and may be
// overridden by options.
func (a *Act) Fact(ctx context.Context, factType string, options ...FactOption) (*Fact, error) {
	defaults := []FactOption{AccessMode(a.cfg.accessMode())}

	if a.cfg.OriginName != "" || a.cfg.OriginID != "" {
		defaults = append(defaults, func(ctx context.Context, f *Fact) error {
			return setOrigin(ctx, f, a.cfg.OriginName, a.cfg.OriginID)
		})
	}

	if a.cfg.Organization != "" {
		defaults = append(defaults, Organization(a.cfg.Organization))
	}

	if len(a.cfg.ACL) > 0 {
		defaults = append(defaults, ACL(a.cfg.ACL...))
	}

	return newFact(ctx, a, factType, append(defaults, options...)...)
}

func newFact(ctx context.Context, a *Act, factType string, options ...FactOption) (*Fact, error) {
	e, err := FactSchema.Build(ctx, []any{factType}, nil)
	if err != nil {
		return nil, err
	}

	f := &Fact{base{Entity: e, act: a}}

	for _, option := range options {
		if err := option(ctx, f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (a *Act) Object(ctx context.Context, objectType, value string) (*Object, error) {
	e, err := ObjectSchema.Build(ctx, []any{objectType, value}, nil)
	if err != nil {
		return nil, err
	}
	return wrapObject(e, a), nil
}

// ObjectByID refers to an existing object by its id.
func (a *Act) ObjectByID(ctx context.Context, id string) (*Object, error) {
	e, err := objectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return wrapObject(e, a), nil
}

func (a *Act) ObjectType(ctx context.Context, name string, named schema.Document) (*ObjectType, error) {
	e, err := ObjectTypeSchema.Build(ctx, []any{name}, named)
	if err != nil {
		return nil, err
	}
	return &ObjectType{base{Entity: e, act: a}}, nil
}

func (a *Act) FactType(ctx context.Context, name string, named schema.Document) (*FactType, error) {
	e, err := FactTypeSchema.Build(ctx, []any{name}, named)
	if err != nil {
		return nil, err
	}
	return &FactType{base{Entity: e, act: a}}, nil
}

func (a *Act) Origin(ctx context.Context, name string, named schema.Document) (*Origin, error) {
	e, err := OriginSchema.Build(ctx, []any{name}, named)
	if err != nil {
		return nil, err
	}
	return &Origin{base{Entity: e, act: a}}, nil
}

func (a *Act) decodeFact(ctx context.Context, doc schema.Document) (*Fact, error) {
	f, err := DecodeFact(ctx, doc)
	if err != nil {
		return nil, err
	}
	f.act = a
	return f, nil
}

func (a *Act) decodeObject(ctx context.Context, doc schema.Document) (*Object, error) {
	o, err := DecodeObject(ctx, doc)
	if err != nil {
		return nil, err
	}
	o.act = a
	return o, nil
}

func (a *Act) decodeFactType(ctx context.Context, doc schema.Document) (*FactType, error) {
	ft, err := DecodeFactType(ctx, doc)
	if err != nil {
		return nil, err
	}
	ft.act = a
	return ft, nil
}

func (a *Act) decodeObjectType(ctx context.Context, doc schema.Document) (*ObjectType, error) {
	ot, err := DecodeObjectType(ctx, doc)
	if err != nil {
		return nil, err
	}
	ot.act = a
	return ot, nil
}

func (a *Act) decodeOrigin(ctx context.Context, doc schema.Document) (*Origin, error) {
	o, err := DecodeOrigin(ctx, doc)
	if err != nil {
		return nil, err
	}
	o.act = a
	return o, nil
}

func (a *Act) client() (client.APIClient, error) {
	if !a.Connected() {
		return nil, errors.NewArgumentError("no platform configured")
	}
	return a.api, nil
}

// FactSearch searches facts. Keywords, ObjectType, FactType, ObjectValue,
// FactValue, Organization, Origin, IncludeRetracted, Before, After and Limit apply.
func (a *Act) FactSearch(ctx context.Context, params ...search.Param) (*ResultSet[*Fact], error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}

	response, err := api.Post(ctx, "v1/fact/search", search.Body(params...))
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, a.decodeFact)
}

// ObjectSearch searches objects. Keywords, ObjectType, FactType, ObjectValue,
// FactValue, Organization, Source, Before, After and Limit apply.
func (a *Act) ObjectSearch(ctx context.Context, params ...search.Param) (*ResultSet[*Object], error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}

	response, err := api.Post(ctx, "v1/object/search", search.Body(params...))
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, a.decodeObject)
}

func (a *Act) GetFactTypes(ctx context.Context) (*ResultSet[*FactType], error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}

	response, err := api.Get(ctx, "v1/factType", nil)
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, a.decodeFactType)
}

func (a *Act) GetObjectTypes(ctx context.Context) (*ResultSet[*ObjectType], error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}

	response, err := api.Get(ctx, "v1/objectType", nil)
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, a.decodeObjectType)
}

func (a *Act) GetOrigins(ctx context.Context, includeDeleted bool, limit int) (*ResultSet[*Origin], error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("includeDeleted", strconv.FormatBool(includeDeleted))
	query.Set("limit", strconv.Itoa(limit))

	response, err := api.Get(ctx, "v1/origin", query)
	if err != nil {
		return nil, err
	}

	return NewResultSet(ctx, response, a.decodeOrigin)
}

// ObjectBindingSpec names the object types a fact type may bind. Every source
// type is combined with every destination type. One of the lists may be empty.
type ObjectBindingSpec struct {
	SourceObjectTypes      []string
	DestinationObjectTypes []string
	Bidirectional          bool
}

func (a *Act) factTypesByName(ctx context.Context) (map[string]*FactType, []*FactType, error) {
	rs, err := a.GetFactTypes(ctx)
	if err != nil {
		return nil, nil, err
	}

	byName := map[string]*FactType{}
	for ft := range rs.All() {
		byName[ft.Name()] = ft
	}

	return byName, rs.Items(), nil
}

func (a *Act) objectTypesByName(ctx context.Context) (map[string]*ObjectType, []*ObjectType, error) {
	rs, err := a.GetObjectTypes(ctx)
	if err != nil {
		return nil, nil, err
	}

	byName := map[string]*ObjectType{}
	for ot := range rs.All() {
		byName[ot.Name()] = ot
	}

	return byName, rs.Items(), nil
}

// CreateFactType creates the fact type with the given object bindings, or adds
// the bindings to the fact type if it already exists.
func (a *Act) CreateFactType(ctx context.Context, name, validator string, bindings []ObjectBindingSpec, defaultConfidence float64) (*FactType, error) {
	existing, _, err := a.factTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	objectTypes, _, err := a.objectTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	lookup := func(names []string) ([]*ObjectType, error) {
		if len(names) == 0 {
			return []*ObjectType{nil}, nil
		}

		types := make([]*ObjectType, 0, len(names))
		for _, n := range names {
			ot, ok := objectTypes[n]
			if !ok {
				return nil, errors.NewArgumentError("object type does not exist: %s", n)
			}
			types = append(types, ot)
		}

		return types, nil
	}

	relevant := []*schema.Entity{}

	for _, spec := range bindings {
		if len(spec.SourceObjectTypes) == 0 && len(spec.DestinationObjectTypes) == 0 {
			return nil, errors.NewArgumentError("must specify source object types, destination object types or both in bindings for fact type %s", name)
		}

		sources, err := lookup(spec.SourceObjectTypes)
		if err != nil {
			return nil, err
		}

		destinations, err := lookup(spec.DestinationObjectTypes)
		if err != nil {
			return nil, err
		}

		for _, src := range sources {
			for _, dst := range destinations {
				binding, err := NewObjectBinding(ctx, src, dst, spec.Bidirectional)
				if err != nil {
					return nil, err
				}
				relevant = append(relevant, binding)
			}
		}
	}

	if ft, ok := existing[name]; ok {
		logging.GetFromContext(ctx).Warn("fact type already exists", slog.String("name", name))
		return ft, ft.AddObjectBindings(ctx, relevant)
	}

	ft, err := a.FactType(ctx, name, schema.Document{
		"validator_parameter":      validator,
		"relevant_object_bindings": toAnyList(relevant),
		"default_confidence":       defaultConfidence,
	})
	if err != nil {
		return nil, err
	}

	return ft, ft.Add(ctx)
}

// CreateFactTypeAllBindings creates a fact type that binds every pair of
// existing object types in both directions.
func (a *Act) CreateFactTypeAllBindings(ctx context.Context, name, validator string, defaultConfidence float64) (*FactType, error) {
	existing, _, err := a.factTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	_, objectTypes, err := a.objectTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	relevant := []*schema.Entity{}
	for _, src := range objectTypes {
		for _, dst := range objectTypes {
			for _, bidirectional := range []bool{true, false} {
				binding, err := NewObjectBinding(ctx, src, dst, bidirectional)
				if err != nil {
					return nil, err
				}
				relevant = append(relevant, binding)
			}
		}
	}

	if ft, ok := existing[name]; ok {
		logging.GetFromContext(ctx).Warn("fact type already exists", slog.String("name", name))
		return ft, ft.AddObjectBindings(ctx, relevant)
	}

	ft, err := a.FactType(ctx, name, schema.Document{
		"validator_parameter":      validator,
		"relevant_object_bindings": toAnyList(relevant),
		"default_confidence":       defaultConfidence,
	})
	if err != nil {
		return nil, err
	}

	return ft, ft.Add(ctx)
}

// CreateMetaFactType creates a meta fact type bound to the named fact types,
// or adds the bindings if it already exists.
func (a *Act) CreateMetaFactType(ctx context.Context, name string, factBindings []string, validator string) (*FactType, error) {
	existing, _, err := a.factTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	relevant := make([]*schema.Entity, 0, len(factBindings))
	for _, n := range factBindings {
		bound, ok := existing[n]
		if !ok {
			return nil, errors.NewArgumentError("fact type does not exist: %s", n)
		}

		binding, err := NewFactBinding(ctx, bound)
		if err != nil {
			return nil, err
		}
		relevant = append(relevant, binding)
	}

	return a.createMetaFactType(ctx, name, validator, existing, relevant)
}

// CreateMetaFactTypeAllBindings binds a meta fact type to every fact type that
// is not itself a meta fact type.
func (a *Act) CreateMetaFactTypeAllBindings(ctx context.Context, name, validator string) (*FactType, error) {
	existing, factTypes, err := a.factTypesByName(ctx)
	if err != nil {
		return nil, err
	}

	relevant := []*schema.Entity{}
	for _, ft := range factTypes {
		if len(ft.FactBindings()) > 0 {
			continue
		}

		binding, err := NewFactBinding(ctx, ft)
		if err != nil {
			return nil, err
		}
		relevant = append(relevant, binding)
	}

	return a.createMetaFactType(ctx, name, validator, existing, relevant)
}

func (a *Act) createMetaFactType(ctx context.Context, name, validator string, existing map[string]*FactType, bindings []*schema.Entity) (*FactType, error) {
	if ft, ok := existing[name]; ok {
		logging.GetFromContext(ctx).Warn("meta fact type already exists", slog.String("name", name))
		return ft, ft.AddFactBindings(ctx, bindings)
	}

	ft, err := a.FactType(ctx, name, schema.Document{
		"validator_parameter":    validator,
		"relevant_fact_bindings": toAnyList(bindings),
	})
	if err != nil {
		return nil, err
	}

	return ft, ft.Add(ctx)
}

func toAnyList[T any](items []T) []any {
	l := make([]any, 0, len(items))
	for _, item := range items {
		l = append(l, item)
	}
	return l
}
