package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrTableFull is returned by Add when the table's configured
	// capacity is exhausted. The caller should log it and drop the
	// new device.
	ErrTableFull = errors.New("device: table full")

	// ErrDuplicate is returned by Add when (deviceId, childId) already
	// exists. Callers that discover devices via sysinfo should check
	// FindByID first; Add returning ErrDuplicate indicates a race, not
	// ordinary operation.
	ErrDuplicate = errors.New("device: duplicate key")

	// ErrOutOfRange is returned by At when the index is not a valid,
	// currently-allocated slot.
	ErrOutOfRange = errors.New("device: index out of range")
)
