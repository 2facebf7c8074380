package storage

import "errors"

// Storage error constants
var (
	// ErrDetectionNotFound is returned when a detection is not found.
	ErrDetectionNotFound = errors.New("detection not found")

	// ErrDeviceNotFound is returned when a device is not found.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrRecipientNotFound is returned when a recipient is not found.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrAckNotFound is returned when an acknowledgment is not found.
	ErrAckNotFound = errors.New("acknowledgment not found")

	// ErrNotFound is a generic "not found" error.
	ErrNotFound = errors.New("not found")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")
)
