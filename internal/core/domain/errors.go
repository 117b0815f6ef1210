package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers unreachable backends and non-2xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrDecode covers malformed responses.
	ErrDecode = errors.New("decode failure")
	// ErrSearchTimeout is returned when a search does not complete in time.
	ErrSearchTimeout = errors.New("search timed out")
	// ErrInvalidGeometry is returned for trails without a single path point.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrStaleSearch marks a search result discarded because a newer search
	// was issued or the stop changed meanwhile.
	ErrStaleSearch = errors.New("stale search result")

	ErrNoStopSelected     = errors.New("no stop selected")
	ErrUnknownStop        = errors.New("unknown stop")
	ErrUnknownTrail       = errors.New("unknown trail")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidDifficulty  = errors.New("unknown difficulty")
)

// SearchFailedError is the one failure signal recorded for a trail search,
// whatever went wrong underneath.
type SearchFailedError struct {
	Token uint64
	Err   error
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search %d failed: %v", e.Token, e.Err)
}

func (e *SearchFailedError) Unwrap() error { return e.Err }
