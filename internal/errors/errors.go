package errors

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the engine can produce. The set is closed:
// callers switch on kinds instead of matching error strings.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindRateLimited     Kind = "rate_limited"
	KindNotFound        Kind = "not_found"
	KindUnsupported     Kind = "unsupported"
	KindMalformed       Kind = "malformed"
	KindExpired         Kind = "expired"
	KindGeoBlocked      Kind = "geo_blocked"
	KindDRMBlocked      Kind = "drm_blocked"
	KindDuplicate       Kind = "duplicate"
	KindFairnessPending Kind = "fairness_pending"
	KindFairnessPlaying Kind = "fairness_playing"
	KindQueueFull       Kind = "queue_full"
	KindTrackTooLong    Kind = "track_too_long"
	KindOutOfRange      Kind = "out_of_range"
	KindNotPlaying      Kind = "not_playing"
	KindSchemaMismatch  Kind = "schema_mismatch"
	KindCancelled       Kind = "cancelled"
	KindTransport       Kind = "transport_error"
	KindCorruptSnapshot Kind = "corrupt_snapshot"
)

// Error carries a kind, the operation that failed, and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error.
func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRejection reports whether err is an admission rejection: a synchronous
// answer to the submitter with no queue side effects.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case KindDuplicate, KindFairnessPending, KindFairnessPlaying,
		KindQueueFull, KindTrackTooLong, KindUnsupported, KindMalformed:
		return true
	}
	return false
}
