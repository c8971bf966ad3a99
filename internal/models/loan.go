package models

import (
	"encoding/base32"
	"strings"
	"time"
)

// ReservedMarker prefixes the summary of an event whose loan has a pending reservation.
const ReservedMarker = "[予約有] "

// DateLayout is the ISO calendar date format used for ids and all-day events.
const DateLayout = "2006-01-02"

// maxTitleRunes bounds how much of the title takes part in the id.
const maxTitleRunes = 50

var idEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Loan represents an item currently borrowed by the user.
type Loan struct {
	Reserved bool      // Someone else is waiting for the item
	Lender   string    // Library that lent the item
	Holder   string    // Library holding the item
	DueDate  time.Time // Date the item must be returned
	LentDate time.Time // Date the loan began
	Title    string    // Title of the borrowed item
}

// ID returns the external event id for the loan.
// It depends only on the lent date and the first 50 characters of the title,
// so two loans of the same title on the same day share an id.
func (l Loan) ID() string {
	title := []rune(l.Title)
	if len(title) > maxTitleRunes {
		title = title[:maxTitleRunes]
	}
	key := l.LentDate.Format(DateLayout) + string(title)
	return strings.ToLower(idEncoding.EncodeToString([]byte(key)))
}

// Summary returns the event display text for the loan.
func (l Loan) Summary() string {
	if l.Reserved {
		return ReservedMarker + l.Title
	}
	return l.Title
}

// StartDate is the first day of the all-day event.
func (l Loan) StartDate() time.Time {
	return Date(l.DueDate)
}

// EndDate is the exclusive end of the all-day event.
func (l Loan) EndDate() time.Time {
	return Date(l.DueDate).AddDate(0, 0, 1)
}

// Event builds the calendar event that represents the loan.
func (l Loan) Event() Event {
	return Event{
		ID:      l.ID(),
		Summary: l.Summary(),
		Start:   l.StartDate(),
		End:     l.EndDate(),
	}
}

// Date truncates t to its calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
