package vault

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input (dates, filter combinations,
// non-coercible numbers). It is raised before any filesystem access.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
