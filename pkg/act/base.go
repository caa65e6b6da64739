package act

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/pkg/act/client"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

var NamespaceSchema = schema.Must("Namespace", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
}, schema.IdentityFields("name"))

var OrganizationSchema = schema.Must("Organization", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
},
	schema.IdentityFields("name"),
	schema.SerializeAs(func(e *schema.Entity, _ schema.Document) any {
		if id := e.GetString("id"); id != "" {
			return id
		}
		if name := e.GetString("name"); name != "" {
			return name
		}
		return nil
	}),
)

// organizationFromWire reads the organization of facts and origins. The
// platform reports a document, while submitted entities carry the id or the
// name as a plain string.
func organizationFromWire(ctx context.Context, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case schema.Document:
		return OrganizationSchema.Decode(ctx, v)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		if isUUID(v) {
			return OrganizationSchema.Build(ctx, nil, schema.Document{"id": v})
		}
		return OrganizationSchema.Build(ctx, nil, schema.Document{"name": v})
	}

	return nil, errors.NewValidationError("unsupported organization reference %v", raw)
}

// UserReference is a user as reported by the platform, never created locally.
var UserReferenceSchema = schema.Must("UserReference", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
})

var OriginSchema = schema.Must("Origin", []schema.Field{
	schema.NewField("name"),
	schema.NewField("id"),
	schema.NewField("namespace", schema.Nested(NamespaceSchema), schema.NoSerialize()),
	schema.NewField("organization", schema.DeserializeWith(organizationFromWire)),
	schema.NewField("description"),
	schema.NewField("trust"),
	schema.NewField("type", schema.NoSerialize()),
	schema.NewField("flags", schema.NoSerialize()),
}, schema.IdentityFields("name", "organization"))

var CommentSchema = schema.Must("Comment", []schema.Field{
	schema.NewField("comment"),
	schema.NewField("id"),
	schema.NewField("timestamp", schema.NoSerialize()),
	schema.NewField("reply_to"),
	schema.NewField("origin", schema.Nested(OriginSchema), schema.NoSerialize()),
}, schema.IdentityFields("comment"))

// base binds an entity to the Act instance whose platform it talks to.
type base struct {
	*schema.Entity
	act *Act
}

func (b base) ID() string {
	return b.GetString("id")
}

// Act returns the instance the entity is bound to, or nil.
func (b base) Act() *Act {
	return b.act
}

func (b base) api() (client.APIClient, error) {
	if b.act == nil || b.act.api == nil {
		return nil, errors.NewArgumentError("%s is not bound to a platform", b.Schema().Name())
	}
	return b.act.api, nil
}

func (b base) get(ctx context.Context, path string, query url.Values) (schema.Document, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Get(ctx, path, query)
}

func (b base) post(ctx context.Context, path string, body any) (schema.Document, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Post(ctx, path, body)
}

func (b base) put(ctx context.Context, path string, body any) (schema.Document, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Put(ctx, path, body)
}

func (b base) delete(ctx context.Context, path string) (schema.Document, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Delete(ctx, path)
}

// reload replaces the entity content with the data section of a response.
func (b base) reload(ctx context.Context, response schema.Document) error {
	data, err := responseData(response)
	if err != nil {
		return err
	}
	return b.Load(ctx, data)
}

func responseData(response schema.Document) (schema.Document, error) {
	data, ok := response["data"].(schema.Document)
	if !ok {
		return nil, errors.NewResponseError("response data should be a document: %v", response["data"])
	}
	return data, nil
}

type Origin struct {
	base
}

func DecodeOrigin(ctx context.Context, doc schema.Document) (*Origin, error) {
	e, err := OriginSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Origin{base{Entity: e}}, nil
}

func (o *Origin) Configure(a *Act) *Origin {
	o.act = a
	return o
}

func (o *Origin) Name() string {
	return o.GetString("name")
}

func (o *Origin) Get(ctx context.Context) error {
	if o.ID() == "" {
		return errors.NewMissingFieldError("must have origin id to get origin")
	}

	response, err := o.get(ctx, "v1/origin/uuid/"+url.PathEscape(o.ID()), nil)
	if err != nil {
		return err
	}

	return o.reload(ctx, response)
}

func (o *Origin) Add(ctx context.Context) error {
	response, err := o.post(ctx, "v1/origin", o.Serialize())
	if err != nil {
		return err
	}

	if err = o.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("created origin", slog.String("name", o.Name()), slog.String("id", o.ID()))
	return nil
}

func (o *Origin) Delete(ctx context.Context) error {
	if o.ID() == "" {
		return errors.NewMissingFieldError("must have origin id to delete origin")
	}

	response, err := o.delete(ctx, "v1/origin/uuid/"+url.PathEscape(o.ID()))
	if err != nil {
		return err
	}

	if err = o.reload(ctx, response); err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("deleted origin", slog.String("name", o.Name()), slog.String("id", o.ID()))
	return nil
}

type Comment struct {
	base
}

func DecodeComment(ctx context.Context, doc schema.Document) (*Comment, error) {
	e, err := CommentSchema.Decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Comment{base{Entity: e}}, nil
}

func (c *Comment) Text() string {
	return c.GetString("comment")
}

func (c *Comment) ReplyTo() string {
	return c.GetString("reply_to")
}

func (c *Comment) Timestamp() string {
	return c.GetString("timestamp")
}
