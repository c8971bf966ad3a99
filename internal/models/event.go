package models

import (
	"strings"
	"time"
)

// Event represents an all-day calendar event tracking one loan.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID      string    // External id derived from the loan
	ETag    string    // Remote concurrency token, empty until the event exists
	Summary string    // Display text, may carry ReservedMarker
	Start   time.Time // Due date
	End     time.Time // Day after the due date
}

// MarkedReserved reports whether the summary carries the reservation marker.
func (e Event) MarkedReserved() bool {
	return strings.HasPrefix(e.Summary, ReservedMarker)
}

// UpToDateWith reports whether the event already reflects the loan's
// due date and reservation flag.
func (e Event) UpToDateWith(l Loan) bool {
	return Date(e.End).Equal(l.EndDate()) && e.MarkedReserved() == l.Reserved
}

// Precondition returns the etag without surrounding quote characters.
func (e Event) Precondition() string {
	return strings.Trim(e.ETag, `"`)
}
