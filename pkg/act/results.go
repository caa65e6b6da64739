package act

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/schema"
)

// ResultSet is one page of entities returned by the platform together with
// the counts the platform reported for the query.
type ResultSet[T any] struct {
	items []T

	// Size is the number of entries returned in this response.
	Size int
	// Count is the number of entries on the platform matching the query.
	Count      int
	Limit      int
	StatusCode int
}

type DecoderFunc[T any] func(ctx context.Context, doc schema.Document) (T, error)

// NewResultSet decodes every element of the response data list, preserving order.
func NewResultSet[T any](ctx context.Context, response schema.Document, decode DecoderFunc[T]) (*ResultSet[T], error) {
	data, ok := response["data"].([]any)
	if !ok {
		return nil, errors.NewResponseError("response should be list: %v", response["data"])
	}

	rs := &ResultSet[T]{
		items:      make([]T, 0, len(data)),
		Size:       toInt(response["size"]),
		Count:      toInt(response["count"]),
		Limit:      toInt(response["limit"]),
		StatusCode: toInt(response["responseCode"]),
	}

	for _, element := range data {
		doc, ok := element.(schema.Document)
		if !ok {
			return nil, errors.NewResponseError("response element should be a document: %v", element)
		}

		item, err := decode(ctx, doc)
		if err != nil {
			return nil, err
		}

		rs.items = append(rs.items, item)
	}

	return rs, nil
}

// Complete reports if every entry matching the query has been returned.
func (rs *ResultSet[T]) Complete() bool {
	return rs.Size >= rs.Count
}

// NonEmpty is false when the platform returned no entries.
func (rs *ResultSet[T]) NonEmpty() bool {
	return rs.Size > 0
}

func (rs *ResultSet[T]) Len() int {
	return len(rs.items)
}

func (rs *ResultSet[T]) At(i int) T {
	return rs.items[i]
}

// Slice returns a copy of the entries from index from up to, not including, to.
func (rs *ResultSet[T]) Slice(from, to int) []T {
	items := make([]T, to-from)
	copy(items, rs.items[from:to])
	return items
}

// Items returns a copy of the entries in response order.
func (rs *ResultSet[T]) Items() []T {
	items := make([]T, len(rs.items))
	copy(items, rs.items)
	return items
}

// All returns a fresh iterator over the entries on every call.
func (rs *ResultSet[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range rs.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Apply replaces every entry with the result of calling op on it. The result
// set is left unchanged if op fails for any entry.
func (rs *ResultSet[T]) Apply(op func(T) (T, error)) error {
	items := make([]T, len(rs.items))

	for i, item := range rs.items {
		result, err := op(item)
		if err != nil {
			return err
		}
		items[i] = result
	}

	rs.items = items
	return nil
}

func (rs *ResultSet[T]) String() string {
	if len(rs.items) == 0 {
		return "No result"
	}

	lines := make([]string, 0, len(rs.items))
	for _, item := range rs.items {
		lines = append(lines, fmt.Sprint(item))
	}

	return strings.Join(lines, "\n")
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
