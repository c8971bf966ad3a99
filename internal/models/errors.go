package models

import (
	"fmt"
	"net/http"
)

// RemoteError is returned when a calendar call fails: a non-success status,
// a malformed payload or a rejected etag precondition.
type RemoteError struct {
	Op         string // Calendar operation, e.g. "list", "create", "update"
	StatusCode int    // HTTP status if known, 0 otherwise
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("calendar %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Conflict reports whether the remote rejected a stale etag.
func (e *RemoteError) Conflict() bool {
	return e.StatusCode == http.StatusPreconditionFailed || e.StatusCode == http.StatusConflict
}
