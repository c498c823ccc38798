package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row matches a (record_id, version) key
var ErrNotFound = errors.New("record version not found")

// ImmutableVersionError is returned on any attempt to change the content of
// a confirmed or deprecated version. The caller must create a new version
// instead; the request is never retried.
type ImmutableVersionError struct {
	RecordID string
	Version  int
	Status   string
}

func (e *ImmutableVersionError) Error() string {
	return fmt.Sprintf("version %s@%d is %s and immutable; create a new version", e.RecordID, e.Version, e.Status)
}

// ConcurrentModificationError is returned when an optimistic status check
// fails because another writer changed the row first. Retryable after
// re-fetching the latest state.
type ConcurrentModificationError struct {
	RecordID string
	Version  int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of %s@%d; re-fetch latest state and retry", e.RecordID, e.Version)
}
