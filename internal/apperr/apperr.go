// Package apperr defines the error taxonomy shared by the timer store,
// controller and HTTP layer. Callers classify with errors.Is; the concrete
// cause stays attached via wrapping.
package apperr

import (
	"github.com/pkg/errors"
)

var (
	// ErrForbidden: the caller does not own the referenced task.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound: no running timer, or no such notification.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an invariant violation caught at the store layer despite
	// an application-level pre-check. Always a race, not a caller bug.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput: bad rounding parameters or malformed fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient: a store or cache timeout; the whole operation is safe to
	// retry.
	ErrTransient = errors.New("transient failure")
)
