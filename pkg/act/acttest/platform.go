// Package acttest runs an in-memory ACT platform for tests of code that talks
// to the REST API.
package acttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mnemonic-no/act-api-go/internal/pkg/infrastructure/router"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

const TimeFormat string = "2006-01-02T15:04:05.000Z"

// Platform is a fake ACT platform. All state is kept in memory and is lost on Close.
type Platform struct {
	mu sync.Mutex

	server *httptest.Server

	origins     []schema.Document
	objectTypes []schema.Document
	factTypes   []schema.Document
	objects     map[string]schema.Document
	facts       []schema.Document
	comments    map[string][]schema.Document

	requests map[string]int
	bodies   map[string]schema.Document
	userIDs  []string
	now      func() time.Time
}

func New(ctx context.Context) *Platform {
	p := &Platform{
		objects:  map[string]schema.Document{},
		comments: map[string][]schema.Document{},
		requests: map[string]int{},
		bodies:   map[string]schema.Document{},
		now:      time.Now,
	}

	r := router.New("act-platform", logging.GetFromContext(ctx))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/origin", p.listOrigins)
		r.Post("/origin", p.createOrigin)
		r.Get("/origin/uuid/{id}", p.getOrigin)
		r.Delete("/origin/uuid/{id}", p.deleteOrigin)

		r.Get("/objectType", p.listObjectTypes)
		r.Post("/objectType", p.createObjectType)

		r.Get("/factType", p.listFactTypes)
		r.Post("/factType", p.createFactType)
		r.Put("/factType/uuid/{id}", p.updateFactType)

		r.Post("/fact", p.createFact)
		r.Post("/fact/search", p.searchFacts)
		r.Get("/fact/uuid/{id}", p.getFact)
		r.Get("/fact/uuid/{id}/meta", p.listMetaFacts)
		r.Post("/fact/uuid/{id}/meta", p.createMetaFact)
		r.Post("/fact/uuid/{id}/retract", p.retractFact)
		r.Get("/fact/uuid/{id}/access", p.getAccess)
		r.Get("/fact/uuid/{id}/comments", p.listComments)
		r.Post("/fact/uuid/{id}/comments", p.createComment)

		r.Post("/object/search", p.searchObjects)
		r.Post("/object/uuid/{id}/facts", p.objectFacts)
		r.Post("/object/{type}/{value}/facts", p.objectFacts)
		r.Post("/object/uuid/{id}/traverse", p.traverse)
		r.Post("/object/{type}/{value}/traverse", p.traverse)
	})

	p.server = httptest.NewServer(r)

	return p
}

func (p *Platform) URL() string {
	return p.server.URL
}

func (p *Platform) Close() {
	p.server.Close()
}

// Requests returns how many requests matched the route, e.g.
// Requests(http.MethodGet, "/v1/origin").
func (p *Platform) Requests(method, pattern string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.requests[method+" "+pattern]
}

// LastBody returns the most recent request body sent to the route.
func (p *Platform) LastBody(method, pattern string) schema.Document {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.bodies[method+" "+pattern]
}

// UserIDs lists the ACT-User-ID header of every request in arrival order.
func (p *Platform) UserIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, len(p.userIDs))
	copy(ids, p.userIDs)
	return ids
}

// AddOrigin registers an origin and returns its id.
func (p *Platform) AddOrigin(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	origin := schema.Document{
		"id":    uuid.NewString(),
		"name":  name,
		"trust": 0.8,
		"type":  "Group",
		"flags": []any{},
	}
	p.origins = append(p.origins, origin)

	return origin["id"].(string)
}

// AddObjectType registers an object type and returns its id.
func (p *Platform) AddObjectType(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.addObjectType(name)["id"].(string)
}

// AddFactType registers a fact type without bindings and returns its id.
func (p *Platform) AddFactType(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ft := schema.Document{
		"id":                     uuid.NewString(),
		"name":                   name,
		"validator":              "RegexValidator",
		"validatorParameter":     `(.|\n)*`,
		"relevantObjectBindings": []any{},
		"relevantFactBindings":   []any{},
	}
	p.factTypes = append(p.factTypes, ft)

	return ft["id"].(string)
}

// Facts returns the stored fact documents in creation order.
func (p *Platform) Facts() []schema.Document {
	p.mu.Lock()
	defer p.mu.Unlock()

	facts := make([]schema.Document, len(p.facts))
	copy(facts, p.facts)
	return facts
}

// record counts the request and decodes the JSON body, if any.
func (p *Platform) record(r *http.Request) (schema.Document, error) {
	key := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()

	body := schema.Document{}
	if r.ContentLength != 0 && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode request body: %w", err)
		}
	}

	p.requests[key]++
	p.bodies[key] = body
	p.userIDs = append(p.userIDs, r.Header.Get("ACT-User-ID"))

	return body, nil
}

func (p *Platform) timestamp() string {
	return p.now().UTC().Format(TimeFormat)
}

func writeJSON(w http.ResponseWriter, code int, doc schema.Document) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(doc)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, schema.Document{"responseCode": code, "data": data})
}

func writeList(w http.ResponseWriter, items []schema.Document, count, limit int) {
	data := make([]any, 0, len(items))
	for _, item := range items {
		data = append(data, item)
	}

	writeJSON(w, http.StatusOK, schema.Document{
		"responseCode": http.StatusOK,
		"limit":        limit,
		"count":        count,
		"size":         len(items),
		"data":         data,
	})
}

// writeValidationError replies the way the platform does when a request fails validation.
func writeValidationError(w http.ResponseWriter, message, template, field string, parameter any) {
	writeJSON(w, http.StatusPreconditionFailed, schema.Document{
		"responseCode": http.StatusPreconditionFailed,
		"messages": []any{
			schema.Document{
				"type":            "FieldError",
				"message":         message,
				"messageTemplate": template,
				"field":           field,
				"parameter":       parameter,
			},
		},
		"data": nil,
	})
}

func writeNotFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, schema.Document{
		"responseCode": http.StatusNotFound,
		"messages": []any{
			schema.Document{"message": what + " not found", "messageTemplate": "object.not.found", "field": "id", "parameter": id},
		},
	})
}
