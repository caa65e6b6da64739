// Package search builds the parameter documents used by the platform's
// search and listing endpoints. Empty values are never sent.
package search

import (
	"fmt"
	"net/url"
	"sort"
	"time"
)

// TimeFormat is the timestamp layout expected by the platform.
const TimeFormat string = "2006-01-02T15:04:05Z"

type Param func(map[string]any)

func Keywords(keywords string) Param {
	return str("keywords", keywords)
}

func ObjectType(types ...string) Param {
	return list("objectType", types)
}

func FactType(types ...string) Param {
	return list("factType", types)
}

func ObjectValue(values ...string) Param {
	return list("objectValue", values)
}

func FactValue(values ...string) Param {
	return list("factValue", values)
}

func Organization(organizations ...string) Param {
	return list("organization", organizations)
}

func Origin(origins ...string) Param {
	return list("origin", origins)
}

func Source(sources ...string) Param {
	return list("source", sources)
}

func IncludeRetracted(include bool) Param {
	return flag("includeRetracted", include)
}

func IncludeDeleted(include bool) Param {
	return flag("includeDeleted", include)
}

func Before(t time.Time) Param {
	return timestamp("before", t)
}

func After(t time.Time) Param {
	return timestamp("after", t)
}

// Limit caps the number of returned entries. Zero leaves the platform default.
func Limit(limit int) Param {
	return func(p map[string]any) {
		if limit > 0 {
			p["limit"] = limit
		}
	}
}

// Body collects the parameters into a request document.
func Body(params ...Param) map[string]any {
	body := map[string]any{}
	for _, param := range params {
		param(body)
	}
	return body
}

// Query collects the parameters into URL query values.
func Query(params ...Param) url.Values {
	body := Body(params...)

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := url.Values{}
	for _, k := range keys {
		switch v := body[k].(type) {
		case []string:
			for _, item := range v {
				query.Add(k, item)
			}
		default:
			query.Add(k, fmt.Sprint(v))
		}
	}

	return query
}

func str(key, value string) Param {
	return func(p map[string]any) {
		if value != "" {
			p[key] = value
		}
	}
}

func list(key string, values []string) Param {
	return func(p map[string]any) {
		nonEmpty := make([]string, 0, len(values))
		for _, v := range values {
			if v != "" {
				nonEmpty = append(nonEmpty, v)
			}
		}

		if len(nonEmpty) > 0 {
			existing, _ := p[key].([]string)
			p[key] = append(existing, nonEmpty...)
		}
	}
}

func flag(key string, value bool) Param {
	return func(p map[string]any) {
		if value {
			p[key] = true
		}
	}
}

func timestamp(key string, t time.Time) Param {
	return func(p map[string]any) {
		if !t.IsZero() {
			p[key] = t.UTC().Format(TimeFormat)
		}
	}
}
