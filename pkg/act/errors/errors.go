package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

var ErrSchemaDefinition = fmt.Errorf("schema definition error")
var ErrUnknownField = fmt.Errorf("unknown field")
var ErrAttributeNotFound = fmt.Errorf("attribute not found")
var ErrMissingField = fmt.Errorf("missing field")
var ErrInconsistentIdentity = fmt.Errorf("inconsistent identity")
var ErrOriginNotFound = fmt.Errorf("origin does not exist")
var ErrOriginMismatch = fmt.Errorf("origin mismatch")
var ErrArgument = fmt.Errorf("argument error")
var ErrValidation = fmt.Errorf("validation error")
var ErrResponse = fmt.Errorf("response error")
var ErrServiceTimeout = fmt.Errorf("service timeout")
var ErrNotImplemented = fmt.Errorf("not implemented")
var ErrIllegalFactChain = fmt.Errorf("illegal fact chain")
var ErrInternal = fmt.Errorf("internal error")
var ErrRequest = fmt.Errorf("request error")
var ErrBadResponse = fmt.Errorf("bad response")

type actError struct {
	msg    string
	target error
}

func (e actError) Error() string        { return e.msg }
func (e actError) Is(target error) bool { return target == e.target }

func newError(target error, format string, args ...any) error {
	return &actError{
		msg:    fmt.Sprintf(format, args...),
		target: target,
	}
}

func NewSchemaDefinitionError(format string, args ...any) error {
	return newError(ErrSchemaDefinition, format, args...)
}

func NewUnknownFieldError(format string, args ...any) error {
	return newError(ErrUnknownField, format, args...)
}

func NewAttributeNotFoundError(format string, args ...any) error {
	return newError(ErrAttributeNotFound, format, args...)
}

func NewMissingFieldError(format string, args ...any) error {
	return newError(ErrMissingField, format, args...)
}

func NewInconsistentIdentityError(format string, args ...any) error {
	return newError(ErrInconsistentIdentity, format, args...)
}

func NewOriginNotFoundError(format string, args ...any) error {
	return newError(ErrOriginNotFound, format, args...)
}

func NewOriginMismatchError(format string, args ...any) error {
	return newError(ErrOriginMismatch, format, args...)
}

func NewArgumentError(format string, args ...any) error {
	return newError(ErrArgument, format, args...)
}

func NewValidationError(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func NewResponseError(format string, args ...any) error {
	return newError(ErrResponse, format, args...)
}

func NewServiceTimeoutError(format string, args ...any) error {
	return newError(ErrServiceTimeout, format, args...)
}

func NewNotImplementedError(format string, args ...any) error {
	return newError(ErrNotImplemented, format, args...)
}

func NewIllegalFactChainError(format string, args ...any) error {
	return newError(ErrIllegalFactChain, format, args...)
}

func NewInternalError(format string, args ...any) error {
	return newError(ErrInternal, format, args...)
}

// Message is a single entry in the message list the platform returns
// together with 412 and 503 responses.
type Message struct {
	Message         string `json:"message"`
	MessageTemplate string `json:"messageTemplate"`
	Field           string `json:"field"`
	Parameter       any    `json:"parameter"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s (%s=%v)", m.Message, m.Field, m.Parameter)
}

// NewErrorFromResponse interprets a non successful response from the platform.
func NewErrorFromResponse(code int, url string, body []byte) error {
	if code == http.StatusPreconditionFailed || code == http.StatusServiceUnavailable {
		report := &struct {
			Messages []Message `json:"messages"`
		}{}

		err := json.Unmarshal(body, report)
		if err != nil {
			return NewResponseError("unable to parse response as json: url=%s, status_code=%d, response=%s", url, code, string(body))
		}

		for _, msg := range report.Messages {
			switch msg.MessageTemplate {
			case "fact.not.valid", "object.not.valid", "organization.not.exist":
				return NewValidationError("%s", msg.String())
			case "service.timeout":
				return NewServiceTimeoutError("%s", msg.Message)
			}
		}

		return NewResponseError("request failed: url=%s, status_code=%d, response=%s", url, code, string(body))
	}

	return NewResponseError("unknown response: url=%s, status_code=%d, response=%s", url, code, string(body))
}
