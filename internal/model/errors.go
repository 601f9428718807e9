package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Identity errors
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNotAuthenticated = errors.New("no user identity in this session")

	// Session errors
	ErrNotFound          = errors.New("not found")
	ErrInputGated        = errors.New("answers are not accepted yet")
	ErrSessionClosed     = errors.New("session has been closed")
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrSessionStarted    = errors.New("session has already been started")
	ErrPhaseUnavailable  = errors.New("phase is not available to play")

	// Storage errors
	ErrImageNotCached = errors.New("image not cached")
)

// ReusedIdentifierHint is shown when an existing open game could not be quit
const ReusedIdentifierHint = "You may have reused an existing User ID"

// ValidationError is bad user input, shown next to the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError signals that the user already has an open game
type ConflictError struct {
	ExistingGameID GameID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user already has open game %d", e.ExistingGameID)
}

// NetworkError is a transport failure or a non-2xx response from the remote API
type NetworkError struct {
	Op      string
	Status  int // 0 when no response was received
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// FatalSessionError is an unrecoverable session failure carrying a hint for the user
type FatalSessionError struct {
	Err  error
	Hint string
}

func (e *FatalSessionError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v. %s", e.Err, e.Hint)
}

func (e *FatalSessionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
