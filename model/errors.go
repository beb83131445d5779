package model

import "fmt"

// Resolution error codes. These are programming errors in an interface
// declaration and are reported synchronously at invocation time.
const (
	ErrNoRecognizedTag           = "NO_RECOGNIZED_TAG"
	ErrMissingVerbTag            = "MISSING_VERB_TAG"
	ErrArityMismatch             = "ARITY_MISMATCH"
	ErrMissingParameterTag       = "MISSING_PARAMETER_TAG"
	ErrUnknownStrategy           = "UNKNOWN_STRATEGY"
	ErrIllegalConfigurationOrder = "ILLEGAL_CONFIGURATION_ORDER"
	ErrAmbiguousTags             = "AMBIGUOUS_TAGS"
	ErrBodyArity                 = "BODY_ARITY"
	ErrInvalidDescriptor         = "INVALID_DESCRIPTOR"
	ErrUnknownMethod             = "UNKNOWN_METHOD"
)

// Execution error codes, returned from Call.Execute only.
const (
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
	ErrEncodeFailed       = "ENCODE_FAILED"
	ErrDecodeFailed       = "DECODE_FAILED"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrCanceled           = "CANCELED"
)

// Error is the error type of the dispatch engine. errors.Is matches two
// Errors by Code, so the sentinel values below can be used as targets.
type Error struct {
	Code    string       `json:"code"`
	Method  string       `json:"method,omitempty"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Sentinels for errors.Is.
var (
	NoRecognizedTag           = &Error{Code: ErrNoRecognizedTag}
	MissingVerbTag            = &Error{Code: ErrMissingVerbTag}
	ArityMismatch             = &Error{Code: ErrArityMismatch}
	MissingParameterTag       = &Error{Code: ErrMissingParameterTag}
	UnknownStrategy           = &Error{Code: ErrUnknownStrategy}
	IllegalConfigurationOrder = &Error{Code: ErrIllegalConfigurationOrder}
	AmbiguousTags             = &Error{Code: ErrAmbiguousTags}
	BodyArity                 = &Error{Code: ErrBodyArity}
	InvalidDescriptor         = &Error{Code: ErrInvalidDescriptor}
	UnknownMethod             = &Error{Code: ErrUnknownMethod}
	BackendUnavailable        = &Error{Code: ErrBackendUnavailable}
	BackendTimeout            = &Error{Code: ErrBackendTimeout}
	ValidationFailed          = &Error{Code: ErrValidationError}
	Canceled                  = &Error{Code: ErrCanceled}
)

// NewError returns an Error for the given method.
func NewError(code, method, msg string) *Error {
	return &Error{Code: code, Method: method, Message: msg}
}

// Errorf returns an Error with a formatted message.
func Errorf(code, method, format string, args ...any) *Error {
	return &Error{Code: code, Method: method, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(method string, details []FieldError) *Error {
	return &Error{
		Code:    ErrValidationError,
		Method:  method,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError(method string, cause error) *Error {
	return &Error{
		Code:    ErrBackendUnavailable,
		Method:  method,
		Message: "The backend service is temporarily unavailable",
		Cause:   cause,
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError(method string, cause error) *Error {
	return &Error{
		Code:    ErrBackendTimeout,
		Method:  method,
		Message: "The backend service did not respond in time",
		Cause:   cause,
	}
}
