package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDurabilityTimeout marks a flush whose writes never cleared the
	// pending-durability registry within the configured window.
	ErrDurabilityTimeout = errors.New("durability confirmation timed out")
)
