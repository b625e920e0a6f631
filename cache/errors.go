package cache

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GenericFailureMessage is shown when a failure carries no field message.
const GenericFailureMessage = "Failed to post! Please try again later."

// ErrorCode is a machine readable failure class.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeTransient    ErrorCode = "TRANSIENT"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeUnknown      ErrorCode = "UNKNOWN"
)

// FieldError is a single field scoped validation message.
type FieldError struct {
	Field   string `json:"field" msgpack:"field"`
	Message string `json:"message" msgpack:"message"`
}

// ErrorInfo is the structured, serializable form of a read or write failure.
// It is what cache entries store and what mutations return.
type ErrorInfo struct {
	Code        ErrorCode    `json:"code" msgpack:"code"`
	Message     string       `json:"message" msgpack:"message"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty" msgpack:"fieldErrors,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return "<nil>"
	}
	return string(e.Code) + ": " + e.Message
}

// Retryable reports whether re-issuing the call may succeed.
func (e *ErrorInfo) Retryable() bool {
	return e != nil && e.Code == CodeTransient
}

// FieldMessage returns the first message for field, or the first message of
// any field when field is empty.
func (e *ErrorInfo) FieldMessage(field string) string {
	if e == nil {
		return ""
	}
	for _, fe := range e.FieldErrors {
		if field == "" || fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// UserMessage is what a view shows for a failed write: the first field level
// message if there is one, else the generic retry prompt.
func (e *ErrorInfo) UserMessage() string {
	if msg := e.FieldMessage(""); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

// NotFound returns a not found failure.
func NotFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).WithTextCode(string(CodeNotFound))
}

// Unauthorized returns a failure for calls that need a signed in identity.
func Unauthorized(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).WithTextCode(string(CodeUnauthorized))
}

// Transient wraps a backend or network failure as retryable.
func Transient(source error, message string) error {
	if source == nil {
		source = errors.New(message)
	}
	return goerrors.WrapRetryable(source, goerrors.CategoryExternal, message)
}

// Invalid builds a field scoped validation failure.
func Invalid(message string, fields ...FieldError) error {
	fieldErrors := make([]goerrors.FieldError, 0, len(fields))
	for _, f := range fields {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: f.Field, Message: f.Message})
	}
	return goerrors.NewValidation(message, fieldErrors...)
}

// Classify maps any error onto the failure taxonomy. It never returns nil for
// a non nil err.
func Classify(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var info *ErrorInfo
	if errors.As(err, &info) && info != nil {
		return info
	}

	var ozzoErrs validation.Errors
	if errors.As(err, &ozzoErrs) {
		err = goerrors.FromOzzoValidation(ozzoErrs, "invalid input")
	}

	switch {
	case isRetryable(err):
		return &ErrorInfo{Code: CodeTransient, Message: messageOf(err)}
	case goerrors.IsValidation(err), goerrors.IsCategory(err, goerrors.CategoryBadInput):
		out := &ErrorInfo{Code: CodeValidation, Message: messageOf(err)}
		if fields, ok := goerrors.GetValidationErrors(err); ok {
			for _, fe := range fields {
				out.FieldErrors = append(out.FieldErrors, FieldError{Field: fe.Field, Message: fe.Message})
			}
			sort.SliceStable(out.FieldErrors, func(i, j int) bool {
				return out.FieldErrors[i].Field < out.FieldErrors[j].Field
			})
		}
		return out
	case goerrors.IsNotFound(err), errors.Is(err, sql.ErrNoRows):
		return &ErrorInfo{Code: CodeNotFound, Message: messageOf(err)}
	case goerrors.IsAuth(err):
		return &ErrorInfo{Code: CodeUnauthorized, Message: messageOf(err)}
	case isTransport(err):
		return &ErrorInfo{Code: CodeTransient, Message: err.Error()}
	default:
		return &ErrorInfo{Code: CodeUnknown, Message: messageOf(err)}
	}
}

func isRetryable(err error) bool {
	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return goerrors.IsRetryableError(err)
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func messageOf(err error) string {
	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.Message
	}
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
