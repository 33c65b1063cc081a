package errs

import "errors"

// Domain sentinel errors, mapped to HTTP status codes in the handlers.
var (
	// ErrNotFound covers unknown stations, queue entries and tracks.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTrack is returned when a pending or playing entry for
	// the same track already exists in the station's queue.
	ErrDuplicateTrack = errors.New("track already in queue")

	// ErrInvalidState rejects operations against entries whose status
	// forbids them, e.g. reordering a played entry.
	ErrInvalidState = errors.New("entry state does not allow this operation")

	// ErrEmptyQueue rejects go-live on a station with no queue entries.
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrValidation covers malformed input: missing name, unparseable URL.
	ErrValidation = errors.New("invalid input")

	// ErrUpstreamUnavailable signals a failed metadata resolve or audio
	// fetch. Recovered locally where possible, never fatal to a station.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoContent signals that a station has nothing to play right now.
	// It is an expected outcome, not a failure.
	ErrNoContent = errors.New("nothing playing")

	// ErrInvariantViolation marks a corrupted queue, e.g. two entries
	// playing at once. Serialization should make this impossible; if it
	// ever surfaces, it is an alerting condition.
	ErrInvariantViolation = errors.New("playback invariant violated")
)
