// Package apperr defines the error taxonomy shared across Nutriboard.
//
// Validation errors block an action before any request is issued. Auth
// errors mean the session carries no usable credential; redirecting the
// user to log in again is the caller's job. APIError covers every other
// non-success response from the backend.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrNoTargetSlot     = errors.New("no meal slot selected")
	ErrNotStaged        = errors.New("no selection staged")
	ErrLastItem         = errors.New("removing the last item deletes the whole meal")
	ErrSlotBusy         = errors.New("meal slot has a request in flight")
	ErrNotPersisted     = errors.New("meal has not been saved yet")
)

// APIError is a non-success HTTP response from the NutriTrack backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}
