package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mnemonic-no/act-api-go/pkg/act"
	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"

	"github.com/matryer/is"
)

func TestDefaultPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	v, err := NewDefaultValidator(ctx)
	is.NoErr(err)

	for _, tc := range []struct {
		objectType string
		value      string
		valid      bool
	}{
		{"ipv4", "127.0.0.1", true},
		{"ipv4", "127.0.0.256", false},
		{"ipv6", "2001:067c:21e0:0000:0000:0000:0000:0016", true},
		{"ipv6", "2001:67c:21e0::16", false},
		{"fqdn", "www.mnemonic.no", true},
		{"fqdn", "not a domain", false},
		{"uri", "http://www.mnemonic.no/home", true},
		{"hash", "d41d8cd98f00b204e9800998ecf8427e", true},
		{"hash", "xyz", false},
		{"threatActor", "APT 1", true},
		{"threatActor", " ", false},
		{"ipv4", "*", true},
	} {
		valid, err := v.Validate(ctx, tc.objectType, tc.value)
		is.NoErr(err)
		is.Equal(valid, tc.valid) // unexpected result for tc.objectType/tc.value
	}
}

func TestCustomPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	policy := `package act.validation

default valid = false

valid {
	input.type == "report"
	startswith(input.value, "report-")
}
`

	v, err := NewRegoValidator(ctx, strings.NewReader(policy))
	is.NoErr(err)

	valid, err := v.Validate(ctx, "report", "report-1")
	is.NoErr(err)
	is.True(valid)

	valid, err = v.Validate(ctx, "report", "1")
	is.NoErr(err)
	is.True(!valid)
}

func TestInvalidPolicy(t *testing.T) {
	is := is.New(t)

	_, err := NewRegoValidator(context.Background(), strings.NewReader("package act.validation\n\nvalid {"))
	is.True(err != nil)
}

func TestStrictValidationOfFacts(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	v, err := NewDefaultValidator(ctx)
	is.NoErr(err)

	a, err := act.New(act.Config{ObjectValidator: v, StrictValidator: true})
	is.NoErr(err)

	_, err = a.Fact(ctx, "resolvesTo", act.Source("fqdn", "www.mnemonic.no"), act.Destination("ipv4", "127.0.0.1"))
	is.NoErr(err)

	_, err = a.Fact(ctx, "resolvesTo", act.Source("fqdn", "www.mnemonic.no"), act.Destination("ipv4", "localhost"))
	is.True(errors.Is(err, acterrors.ErrValidation))
}
