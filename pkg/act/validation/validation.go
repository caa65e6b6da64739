// Package validation decides if object values are acceptable using rego policies.
package validation

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("act-api/validation")

//go:embed objects.rego
var defaultPolicy string

// RegoValidator evaluates data.act.validation.valid with the object type and
// value as input. Policies that do not know an object type should accept any
// non empty value.
type RegoValidator struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewRegoValidator compiles the policies in the package act.validation.
func NewRegoValidator(ctx context.Context, policies io.Reader) (*RegoValidator, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read validation policies: %s", err.Error())
	}

	v := &RegoValidator{}

	v.preparedQuery, err = rego.New(
		rego.Query("x = data.act.validation.valid"),
		rego.Module("objects.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return v, nil
}

// NewDefaultValidator validates ip addresses in their expanded form, domain
// names, URIs, hashes and AS numbers.
func NewDefaultValidator(ctx context.Context) (*RegoValidator, error) {
	return NewRegoValidator(ctx, strings.NewReader(defaultPolicy))
}

func (v *RegoValidator) Validate(ctx context.Context, objectType, value string) (bool, error) {
	var err error

	ctx, span := tracer.Start(ctx, "validate-object",
		trace.WithAttributes(attribute.String("object_type", objectType)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	input := map[string]any{
		"type":  objectType,
		"value": value,
	}

	results, err := v.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return false, err
	}

	if len(results) == 0 {
		err = fmt.Errorf("validation failed: opa query could not be satisfied")
		return false, err
	}

	valid, ok := results[0].Bindings["x"].(bool)
	if !ok {
		err = fmt.Errorf("opa error: unexpected result type %T", results[0].Bindings["x"])
		return false, err
	}

	if !valid {
		logging.GetFromContext(ctx).Debug("object rejected by policy", slog.String("object_type", objectType), slog.String("value", value))
	}

	return valid, nil
}
