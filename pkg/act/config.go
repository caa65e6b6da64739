package act

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

const (
	AccessModePublic    string = "Public"
	AccessModeRoleBased string = "RoleBased"
	AccessModeExplicit  string = "Explicit"

	DefaultAccessMode string = AccessModeRoleBased

	// DefaultValidator accepts any value.
	DefaultValidator       string = `(.|\n)*`
	DefaultObjectValidator string = DefaultValidator
	DefaultValidatorName   string = "RegexValidator"
)

var AccessModes = []string{AccessModePublic, AccessModeRoleBased, AccessModeExplicit}

// ObjectValidator decides if an object value is acceptable for an object type.
type ObjectValidator interface {
	Validate(ctx context.Context, objectType, value string) (bool, error)
}

type ObjectValidatorFunc func(ctx context.Context, objectType, value string) (bool, error)

func (fn ObjectValidatorFunc) Validate(ctx context.Context, objectType, value string) (bool, error) {
	return fn(ctx, objectType, value)
}

// ObjectFormatter normalizes an object value before it is attached to a fact,
// e.g. by lower casing domain names.
type ObjectFormatter func(objectType, value string) string

// Config carries the connection settings and the defaults applied to new facts.
type Config struct {
	BaseURL  string
	UserID   string
	Headers  map[string][]string
	Username string
	Password string
	Debug    bool

	// At most one of OriginName and OriginID is needed. When both are set
	// they must refer to the same origin.
	OriginName   string
	OriginID     string
	AccessMode   string
	Organization string
	ACL          []string

	ObjectValidator ObjectValidator
	ObjectFormatter ObjectFormatter
	StrictValidator bool
}

func (c Config) Validate() error {
	if c.OriginID != "" {
		if _, err := uuid.Parse(c.OriginID); err != nil {
			return errors.NewArgumentError("origin id is not a valid UUID: %s", c.OriginID)
		}
	}

	if c.AccessMode != "" && !slices.Contains(AccessModes, c.AccessMode) {
		return errors.NewArgumentError("unknown access mode %s, must be one of %v", c.AccessMode, AccessModes)
	}

	for _, subject := range c.ACL {
		if _, err := uuid.Parse(subject); err != nil {
			return errors.NewArgumentError("acl entry is not a valid UUID: %s", subject)
		}
	}

	return nil
}

func (c Config) accessMode() string {
	if c.AccessMode == "" {
		return DefaultAccessMode
	}
	return c.AccessMode
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
