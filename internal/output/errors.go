package output

import "fmt"

// Error represents a domain-specific error.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors with the same code, so errors.Is(err, ErrTypeNotFound)
// works for any TYPE_NOT_FOUND error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes
const (
	ErrCodeTypeNotFound        = "TYPE_NOT_FOUND"
	ErrCodeConstructionFailure = "CONSTRUCTION_FAILURE"
	ErrCodeTypeExists          = "TYPE_EXISTS"
	ErrCodeInvalidType         = "INVALID_TYPE"
	ErrCodeInvalidFlags        = "INVALID_FLAGS"
)

// Sentinels for errors.Is.
var (
	ErrTypeNotFound        = &Error{Code: ErrCodeTypeNotFound}
	ErrConstructionFailure = &Error{Code: ErrCodeConstructionFailure}
	ErrTypeExists          = &Error{Code: ErrCodeTypeExists}
)

// NewError creates a new output error.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
