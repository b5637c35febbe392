package manager

import "errors"

// Domain errors for the manager package. Check with errors.Is.
var (
	// ErrInvalidPulse is returned by Set when pulse is negative.
	ErrInvalidPulse = errors.New("manager: pulse must not be negative")
)
