package acttest

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

func (p *Platform) listOrigins(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.record(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	includeDeleted := r.URL.Query().Get("includeDeleted") == "true"

	origins := []schema.Document{}
	for _, o := range p.origins {
		if !includeDeleted && slices.Contains(flags(o), "Deleted") {
			continue
		}
		origins = append(origins, o)
	}

	writeList(w, limited(origins, queryLimit(r)), len(origins), queryLimit(r))
}

func (p *Platform) createOrigin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name, _ := body["name"].(string)
	if p.originByName(name) != nil {
		writeValidationError(w, "Origin already exists", "origin.exist", "name", name)
		return
	}

	origin := schema.Document{
		"id":          uuid.NewString(),
		"name":        name,
		"description": body["description"],
		"trust":       body["trust"],
		"type":        "Group",
		"flags":       []any{},
	}
	p.origins = append(p.origins, origin)

	writeData(w, http.StatusCreated, origin)
}

func (p *Platform) getOrigin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	origin := p.originByID(id)
	if origin == nil {
		writeNotFound(w, "Origin", id)
		return
	}

	writeData(w, http.StatusOK, origin)
}

func (p *Platform) deleteOrigin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	origin := p.originByID(id)
	if origin == nil {
		writeNotFound(w, "Origin", id)
		return
	}

	origin["flags"] = []any{"Deleted"}

	writeData(w, http.StatusOK, origin)
}

func (p *Platform) listObjectTypes(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	writeList(w, p.objectTypes, len(p.objectTypes), 0)
}

func (p *Platform) createObjectType(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name, _ := body["name"].(string)
	if p.objectTypeByName(name) != nil {
		writeValidationError(w, "Object type already exists", "object.type.exist", "name", name)
		return
	}

	ot := p.addObjectType(name)
	if v, ok := body["validatorParameter"]; ok {
		ot["validatorParameter"] = v
	}

	writeData(w, http.StatusCreated, ot)
}

func (p *Platform) listFactTypes(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	writeList(w, p.factTypes, len(p.factTypes), 0)
}

func (p *Platform) createFactType(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name, _ := body["name"].(string)
	if p.factTypeByName(name) != nil {
		writeValidationError(w, "Fact type already exists", "fact.type.exist", "name", name)
		return
	}

	ft := schema.Document{
		"id":                     uuid.NewString(),
		"name":                   name,
		"validator":              body["validator"],
		"validatorParameter":     body["validatorParameter"],
		"defaultConfidence":      body["defaultConfidence"],
		"relevantObjectBindings": []any{},
		"relevantFactBindings":   []any{},
	}

	if !p.addBindings(w, ft, body) {
		return
	}

	p.factTypes = append(p.factTypes, ft)

	writeData(w, http.StatusCreated, ft)
}

func (p *Platform) updateFactType(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	ft := p.factTypeByID(id)
	if ft == nil {
		writeNotFound(w, "FactType", id)
		return
	}

	if name, ok := body["name"].(string); ok && name != "" {
		ft["name"] = name
	}

	body["relevantObjectBindings"] = body["addObjectBindings"]
	body["relevantFactBindings"] = body["addFactBindings"]

	if !p.addBindings(w, ft, body) {
		return
	}

	writeData(w, http.StatusOK, ft)
}

// addBindings resolves the object and fact type ids of the requested
// bindings and appends them to the fact type.
func (p *Platform) addBindings(w http.ResponseWriter, ft, body schema.Document) bool {
	objectBindings, _ := ft["relevantObjectBindings"].([]any)

	for _, b := range list(body["relevantObjectBindings"]) {
		binding, _ := b.(schema.Document)
		resolved := schema.Document{"bidirectionalBinding": binding["bidirectionalBinding"] == true}

		for _, direction := range []string{"sourceObjectType", "destinationObjectType"} {
			id, _ := binding[direction].(string)
			if id == "" {
				continue
			}

			ot := p.objectTypeByID(id)
			if ot == nil {
				writeValidationError(w, "Object type does not exist", "object.type.not.exist", direction, id)
				return false
			}

			resolved[direction] = schema.Document{"id": ot["id"], "name": ot["name"]}
		}

		objectBindings = append(objectBindings, resolved)
	}

	factBindings, _ := ft["relevantFactBindings"].([]any)

	for _, b := range list(body["relevantFactBindings"]) {
		binding, _ := b.(schema.Document)
		id, _ := binding["factType"].(string)

		bound := p.factTypeByID(id)
		if bound == nil {
			writeValidationError(w, "Fact type does not exist", "fact.type.not.exist", "factType", id)
			return false
		}

		factBindings = append(factBindings, schema.Document{"id": bound["id"], "name": bound["name"]})
	}

	ft["relevantObjectBindings"] = objectBindings
	ft["relevantFactBindings"] = factBindings

	return true
}

func (p *Platform) createFact(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fact, ok := p.newFact(w, body)
	if !ok {
		return
	}

	for _, direction := range []string{"sourceObject", "destinationObject"} {
		ref, _ := body[direction].(string)
		if ref == "" {
			continue
		}

		obj := p.objectByReference(ref)
		if obj == nil {
			writeValidationError(w, "Object type does not exist", "object.not.valid", direction, ref)
			return
		}

		fact[direction] = obj
	}

	fact["bidirectionalBinding"] = body["bidirectionalBinding"] == true
	p.facts = append(p.facts, fact)

	writeData(w, http.StatusCreated, fact)
}

// newFact builds the common part of a fact from a submitted body.
func (p *Platform) newFact(w http.ResponseWriter, body schema.Document) (schema.Document, bool) {
	typeName, _ := body["type"].(string)

	ft := p.factTypeByName(typeName)
	if ft == nil {
		writeValidationError(w, "Fact type does not exist", "fact.not.valid", "type", typeName)
		return nil, false
	}

	fact := schema.Document{
		"id":                uuid.NewString(),
		"type":              schema.Document{"id": ft["id"], "name": ft["name"]},
		"value":             body["value"],
		"accessMode":        body["accessMode"],
		"confidence":        body["confidence"],
		"trust":             0.8,
		"certainty":         0.8,
		"timestamp":         p.timestamp(),
		"lastSeenTimestamp": p.timestamp(),
		"flags":             []any{},
		"acl":               body["acl"],
	}

	if fact["accessMode"] == nil {
		fact["accessMode"] = "RoleBased"
	}

	if id, ok := body["origin"].(string); ok && id != "" {
		origin := p.originByID(id)
		if origin == nil {
			writeValidationError(w, "Origin does not exist", "fact.not.valid", "origin", id)
			return nil, false
		}

		fact["origin"] = schema.Document{"id": origin["id"], "name": origin["name"]}
	}

	if org, ok := body["organization"].(string); ok && org != "" {
		fact["organization"] = schema.Document{"id": org, "name": org}
	}

	return fact, true
}

func (p *Platform) getFact(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	fact := p.factByID(id)
	if fact == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	writeData(w, http.StatusOK, fact)
}

func (p *Platform) createMetaFact(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	referenced := p.factByID(id)
	if referenced == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	meta, ok := p.newFact(w, body)
	if !ok {
		return
	}

	meta["inReferenceTo"] = schema.Document{"id": referenced["id"], "type": referenced["type"], "value": referenced["value"]}
	p.facts = append(p.facts, meta)

	writeData(w, http.StatusCreated, meta)
}

func (p *Platform) listMetaFacts(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	meta := []schema.Document{}
	for _, f := range p.facts {
		if ref, ok := f["inReferenceTo"].(schema.Document); ok && ref["id"] == id {
			meta = append(meta, f)
		}
	}

	writeList(w, limited(meta, queryLimit(r)), len(meta), queryLimit(r))
}

func (p *Platform) retractFact(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	fact := p.factByID(id)
	if fact == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	fact["flags"] = []any{"RetractedHint"}

	accessMode := body["accessMode"]
	if accessMode == nil {
		accessMode = fact["accessMode"]
	}

	retraction := schema.Document{
		"id":            uuid.NewString(),
		"type":          schema.Document{"id": uuid.NewString(), "name": "Retraction"},
		"value":         "",
		"accessMode":    accessMode,
		"timestamp":     p.timestamp(),
		"flags":         []any{},
		"inReferenceTo": schema.Document{"id": fact["id"], "type": fact["type"], "value": fact["value"]},
	}

	if comment, ok := body["comment"].(string); ok && comment != "" {
		p.comments[id] = append(p.comments[id], schema.Document{
			"id": uuid.NewString(), "comment": comment, "timestamp": p.timestamp(),
		})
	}

	p.facts = append(p.facts, retraction)

	writeData(w, http.StatusCreated, retraction)
}

func (p *Platform) getAccess(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	fact := p.factByID(id)
	if fact == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	subjects := []schema.Document{}
	for _, s := range list(fact["acl"]) {
		subjects = append(subjects, schema.Document{"id": s, "name": ""})
	}

	writeList(w, subjects, len(subjects), 0)
}

func (p *Platform) listComments(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	id := chi.URLParam(r, "id")
	if p.factByID(id) == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	comments := p.comments[id]
	writeList(w, comments, len(comments), 0)
}

func (p *Platform) createComment(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if p.factByID(id) == nil {
		writeNotFound(w, "Fact", id)
		return
	}

	comment := schema.Document{
		"id":        uuid.NewString(),
		"comment":   body["comment"],
		"timestamp": p.timestamp(),
	}
	if replyTo, ok := body["replyTo"].(string); ok {
		comment["replyTo"] = replyTo
	}

	p.comments[id] = append(p.comments[id], comment)

	writeData(w, http.StatusCreated, comment)
}

func (p *Platform) searchFacts(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	matches := []schema.Document{}
	for _, f := range p.facts {
		if body["includeRetracted"] != true && slices.Contains(flags(f), "RetractedHint") {
			continue
		}
		if p.factMatches(f, body) {
			matches = append(matches, f)
		}
	}

	limit := bodyLimit(body)
	writeList(w, limited(matches, limit), len(matches), limit)
}

func (p *Platform) searchObjects(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := p.record(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	seen := map[string]bool{}
	objects := []schema.Document{}

	for _, f := range p.facts {
		if !p.factMatches(schema.Document{"type": f["type"], "value": f["value"]}, withoutObjectFilters(body)) {
			continue
		}

		for _, direction := range []string{"sourceObject", "destinationObject"} {
			obj, ok := f[direction].(schema.Document)
			if !ok || !objectMatches(obj, body) {
				continue
			}

			id, _ := obj["id"].(string)
			if seen[id] {
				continue
			}
			seen[id] = true

			objects = append(objects, p.withStatistics(obj))
		}
	}

	limit := bodyLimit(body)
	writeList(w, limited(objects, limit), len(objects), limit)
}

func (p *Platform) objectFacts(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	obj := p.objectFromPath(r)
	if obj == nil {
		writeNotFound(w, "Object", r.URL.Path)
		return
	}

	facts := p.factsBoundTo(obj["id"])
	writeList(w, facts, len(facts), 0)
}

// traverse answers every query with the facts bound to the object and the
// objects at their other end.
func (p *Platform) traverse(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(r)

	obj := p.objectFromPath(r)
	if obj == nil {
		writeNotFound(w, "Object", r.URL.Path)
		return
	}

	elements := []schema.Document{}
	for _, f := range p.factsBoundTo(obj["id"]) {
		elements = append(elements, f)

		for _, direction := range []string{"sourceObject", "destinationObject"} {
			if other, ok := f[direction].(schema.Document); ok && other["id"] != obj["id"] {
				elements = append(elements, p.withStatistics(other))
			}
		}

		for _, meta := range p.facts {
			if ref, ok := meta["inReferenceTo"].(schema.Document); ok && ref["id"] == f["id"] {
				elements = append(elements, meta)
			}
		}
	}

	writeList(w, elements, len(elements), 0)
}

func (p *Platform) objectFromPath(r *http.Request) schema.Document {
	if id := chi.URLParam(r, "id"); id != "" {
		for _, obj := range p.objects {
			if obj["id"] == id {
				return obj
			}
		}
		return nil
	}

	return p.objects[chi.URLParam(r, "type")+"/"+chi.URLParam(r, "value")]
}

func (p *Platform) factsBoundTo(objectID any) []schema.Document {
	facts := []schema.Document{}
	for _, f := range p.facts {
		for _, direction := range []string{"sourceObject", "destinationObject"} {
			if obj, ok := f[direction].(schema.Document); ok && obj["id"] == objectID {
				facts = append(facts, f)
				break
			}
		}
	}
	return facts
}

func (p *Platform) withStatistics(obj schema.Document) schema.Document {
	counts := map[string]int{}
	types := map[string]any{}

	for _, f := range p.factsBoundTo(obj["id"]) {
		t, _ := f["type"].(schema.Document)
		name, _ := t["name"].(string)
		counts[name]++
		types[name] = t
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	statistics := []any{}
	for _, name := range names {
		statistics = append(statistics, schema.Document{
			"type":               types[name],
			"count":              counts[name],
			"lastAddedTimestamp": p.timestamp(),
			"lastSeenTimestamp":  p.timestamp(),
		})
	}

	withStats := schema.Document{}
	for k, v := range obj {
		withStats[k] = v
	}
	withStats["statistics"] = statistics

	return withStats
}

func (p *Platform) factMatches(f, body schema.Document) bool {
	t, _ := f["type"].(schema.Document)

	if names := stringList(body["factType"]); len(names) > 0 && !slices.Contains(names, str(t["name"])) {
		return false
	}

	if values := stringList(body["factValue"]); len(values) > 0 && !slices.Contains(values, str(f["value"])) {
		return false
	}

	if origins := stringList(body["origin"]); len(origins) > 0 {
		origin, _ := f["origin"].(schema.Document)
		if !slices.Contains(origins, str(origin["id"])) && !slices.Contains(origins, str(origin["name"])) {
			return false
		}
	}

	if keywords, ok := body["keywords"].(string); ok && keywords != "" {
		if !strings.Contains(str(f["value"]), keywords) && !strings.Contains(str(t["name"]), keywords) {
			return false
		}
	}

	hasObjectFilter := len(stringList(body["objectType"])) > 0 || len(stringList(body["objectValue"])) > 0
	if !hasObjectFilter {
		return true
	}

	for _, direction := range []string{"sourceObject", "destinationObject"} {
		if obj, ok := f[direction].(schema.Document); ok && objectMatches(obj, body) {
			return true
		}
	}

	return false
}

func objectMatches(obj, body schema.Document) bool {
	t, _ := obj["type"].(schema.Document)

	if types := stringList(body["objectType"]); len(types) > 0 && !slices.Contains(types, str(t["name"])) {
		return false
	}

	if values := stringList(body["objectValue"]); len(values) > 0 && !slices.Contains(values, str(obj["value"])) {
		return false
	}

	return true
}

func withoutObjectFilters(body schema.Document) schema.Document {
	filtered := schema.Document{}
	for k, v := range body {
		if k != "objectType" && k != "objectValue" {
			filtered[k] = v
		}
	}
	return filtered
}

// objectByReference finds or creates the object for an id or type/value reference.
func (p *Platform) objectByReference(ref string) schema.Document {
	if _, err := uuid.Parse(ref); err == nil {
		for _, obj := range p.objects {
			if obj["id"] == ref {
				return obj
			}
		}
		return nil
	}

	typeName, value, ok := strings.Cut(ref, "/")
	if !ok {
		return nil
	}

	if obj, ok := p.objects[ref]; ok {
		return obj
	}

	ot := p.objectTypeByName(typeName)
	if ot == nil {
		return nil
	}

	obj := schema.Document{
		"id":    uuid.NewString(),
		"type":  schema.Document{"id": ot["id"], "name": ot["name"]},
		"value": value,
	}
	p.objects[ref] = obj

	return obj
}

func (p *Platform) addObjectType(name string) schema.Document {
	ot := schema.Document{
		"id":                 uuid.NewString(),
		"name":               name,
		"validator":          "RegexValidator",
		"validatorParameter": `(.|\n)*`,
	}
	p.objectTypes = append(p.objectTypes, ot)
	return ot
}

func (p *Platform) originByName(name string) schema.Document {
	return find(p.origins, "name", name)
}

func (p *Platform) originByID(id string) schema.Document {
	return find(p.origins, "id", id)
}

func (p *Platform) objectTypeByName(name string) schema.Document {
	return find(p.objectTypes, "name", name)
}

func (p *Platform) objectTypeByID(id string) schema.Document {
	return find(p.objectTypes, "id", id)
}

func (p *Platform) factTypeByName(name string) schema.Document {
	return find(p.factTypes, "name", name)
}

func (p *Platform) factTypeByID(id string) schema.Document {
	return find(p.factTypes, "id", id)
}

func (p *Platform) factByID(id string) schema.Document {
	return find(p.facts, "id", id)
}

func find(docs []schema.Document, key, value string) schema.Document {
	for _, d := range docs {
		if d[key] == value {
			return d
		}
	}
	return nil
}

func flags(doc schema.Document) []string {
	return stringList(doc["flags"])
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// stringList returns the string elements of a JSON list.
func stringList(v any) []string {
	values := []string{}
	for _, e := range list(v) {
		if s, ok := e.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

func limited(docs []schema.Document, limit int) []schema.Document {
	if limit <= 0 || limit >= len(docs) {
		return docs
	}
	return docs[:limit]
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 25
	}
	return limit
}

func bodyLimit(body schema.Document) int {
	if limit, ok := body["limit"].(float64); ok {
		return int(limit)
	}
	return 25
}
