package sandbox

import (
	"context"
	"errors"
)

// Conditions reported by backends. Backends wrap them with detail.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrIncompatible  = errors.New("incompatible with existing resource")
	ErrNotReady      = errors.New("not ready")
	ErrInvalid       = errors.New("invalid request")
)

// IsPermanent reports whether retrying the failed operation cannot help.
// Anything not listed here is treated as transient.
func IsPermanent(err error) bool {
	switch {
	case errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrIncompatible),
		errors.Is(err, ErrInvalid),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
