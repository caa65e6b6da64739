// Package worker contains helpers for batch jobs that turn observations into
// facts and either submit them or print them for later upload.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mnemonic-no/act-api-go/pkg/act"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

const (
	FormatJSON string = "json"
	FormatStr  string = "str"

	// DefaultCacheSize is the number of recently handled facts remembered.
	DefaultCacheSize int = 4096
)

// FactHandler submits facts to the platform, or writes them to an output when
// the fact is not connected to a platform. Facts equal to one of the recently
// handled facts are skipped. Handle is safe for concurrent use and handles one
// fact at a time.
type FactHandler struct {
	mu     sync.Mutex
	seen   *lru.Cache[string, struct{}]
	out    io.Writer
	format string
}

func Format(format string) func(*FactHandler) {
	return func(h *FactHandler) {
		h.format = format
	}
}

func NewFactHandler(out io.Writer, options ...func(*FactHandler)) (*FactHandler, error) {
	return NewFactHandlerWithSize(out, DefaultCacheSize, options...)
}

func NewFactHandlerWithSize(out io.Writer, size int, options ...func(*FactHandler)) (*FactHandler, error) {
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, errors.NewArgumentError("invalid cache size %d: %s", size, err.Error())
	}

	h := &FactHandler{
		seen:   seen,
		out:    out,
		format: FormatJSON,
	}

	for _, option := range options {
		option(h)
	}

	return h, nil
}

// Handle adds a copy of the fact to the platform or writes it to the output.
// The fact is only remembered as handled if this succeeds.
func (h *FactHandler) Handle(ctx context.Context, f *act.Fact) error {
	if h.format != FormatJSON && h.format != FormatStr {
		return errors.NewArgumentError("illegal output format: %s", h.format)
	}

	key := h.format + "|" + f.Fingerprint()

	// check, handle and remember as one step
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.seen.Contains(key) {
		logging.GetFromContext(ctx).Debug("skipping duplicate fact", slog.String("fact", f.String()))
		return nil
	}

	c := f.Clone()

	if c.Act().Connected() {
		if err := c.Add(ctx); err != nil {
			return err
		}
	} else if err := h.write(c); err != nil {
		return err
	}

	h.seen.Add(key, struct{}{})

	return nil
}

func (h *FactHandler) write(f *act.Fact) error {
	var line string

	if h.format == FormatJSON {
		b, err := f.JSON()
		if err != nil {
			return errors.NewInternalError("failed to marshal fact: %s", err.Error())
		}
		line = string(b)
	} else {
		line = f.String()
	}

	_, err := fmt.Fprintln(h.out, line)
	return err
}

// Len returns the number of facts currently remembered.
func (h *FactHandler) Len() int {
	return h.seen.Len()
}
