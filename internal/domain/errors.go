package domain

import "errors"

var (
	// ErrStorage wraps schema, connection and write failures of the store.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound is returned when a session id is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrInvocation wraps any failure reported by the model client.
	ErrInvocation = errors.New("model invocation failed")
	// ErrValidation is returned for rejected input before any write happens.
	ErrValidation = errors.New("validation failed")
	// ErrTurnInProgress is returned when a turn is submitted while another runs.
	ErrTurnInProgress = errors.New("a turn is already in progress")
)
