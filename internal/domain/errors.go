package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout marks a status poll that ran out of attempts or
	// tolerated failures.
	ErrPollTimeout = errors.New("upload status polling timed out")
	// ErrNotFound is returned for unknown jobs or recipes.
	ErrNotFound = errors.New("not found")
	// ErrNoPendingRecipe is returned by modal actions with nothing to act on.
	ErrNoPendingRecipe = errors.New("no recipe pending image selection")
	// ErrBusy is returned when an action for the same recipe is in flight.
	ErrBusy = errors.New("action already in progress")
)

// BackendError is a non-2xx answer from a remote service.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}
