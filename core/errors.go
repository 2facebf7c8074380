package core

import "errors"

// Intake rejection taxonomy. All rejections are terminal for the request
// that caused them; none mutate shared state. Duplicate submissions are not
// errors and are reported through the result, never through these.
var (
	// ErrAuthFailed is returned when the shared-secret header is missing or
	// incorrect, the device id header is absent, or the signature does not
	// verify.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrStaleTimestamp is returned when the optional timestamp header is
	// older than the configured skew tolerance. Callers treat it like an
	// authentication failure.
	ErrStaleTimestamp = errors.New("stale request timestamp")

	// ErrValidation is returned when a structurally required field is
	// missing from the submission.
	ErrValidation = errors.New("validation failed")

	// ErrSpeciesNotAllowed is returned when the species label is not in the
	// configured allow-list. Distinct from ErrValidation: the payload is
	// well-formed but not wanted.
	ErrSpeciesNotAllowed = errors.New("species not in allow-list")

	// ErrChecksumMismatch is returned when a supplied checksum does not
	// match the recomputed content hash, signalling tampering or transport
	// corruption.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Notification channel errors, recorded per-message; they never abort a
// dispatch batch.
var (
	// ErrMissingContactField is returned by a channel sender when the
	// recipient lacks the contact field the channel requires.
	ErrMissingContactField = errors.New("recipient missing contact field for channel")

	// ErrChannelNotConfigured is returned when no sender exists for a
	// requested channel.
	ErrChannelNotConfigured = errors.New("channel not configured")
)
