package broker

import "errors"

var (
	// ErrValidation is returned (wrapped) when a definition fails the
	// broker definition validation rules.
	ErrValidation = errors.New("broker: validation error")

	// ErrNotFound is returned when a broker id has no registered definition.
	ErrNotFound = errors.New("broker: not found")
)
