package backend

import (
	"errors"
	"fmt"
)

// Error codes returned by record stores.
const (
	CodeAccessDenied = "PGRST301"
	CodeNotFound     = "PGRST116"
	CodeInvalid      = "22023"
)

// Error is a backend failure carrying a machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsAccessDenied reports whether err is a row-level access denial.
func IsAccessDenied(err error) bool {
	return CodeOf(err) == CodeAccessDenied
}
