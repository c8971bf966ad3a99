package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"loancal/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const eventKind = "calendar#event"

// CalendarClient reads and writes the events of a single Google calendar.
type CalendarClient struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
}

// NewClient creates a client for calendarID that authorizes every call with
// the given bearer token. Extra options (e.g. option.WithEndpoint) are applied
// after the authenticated HTTP client.
func NewClient(ctx context.Context, logger *slog.Logger, calendarID, accessToken string, opts ...option.ClientOption) (*CalendarClient, error) {
	if calendarID == "" {
		return nil, errors.New("calendar id is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts = append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, opts...)

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{service: service, logger: logger, calendarID: calendarID}, nil
}

// ListEvents fetches the events of the calendar in a single page.
func (c *CalendarClient) ListEvents(ctx context.Context) ([]models.Event, error) {
	c.logger.Debug("Fetching calendar events", "calendarID", c.calendarID)

	res, err := c.service.Events.List(c.calendarID).Context(ctx).Do()
	if err != nil {
		return nil, remoteError("list", err)
	}

	events := make([]models.Event, 0, len(res.Items))
	for _, item := range res.Items {
		event, err := toInternalEvent(item)
		if err != nil {
			return nil, &models.RemoteError{Op: "list", Err: err}
		}
		events = append(events, event)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", c.calendarID)
	return events, nil
}

// CreateEvent inserts the event for a loan that has none yet.
func (c *CalendarClient) CreateEvent(ctx context.Context, loan models.Loan) error {
	event := toGoogleEvent(loan.Event())

	if _, err := c.service.Events.Insert(c.calendarID, event).Context(ctx).Do(); err != nil {
		return remoteError("create", err)
	}

	c.logger.Info("Created calendar event", "id", event.Id, "summary", event.Summary)
	return nil
}

// UpdateEvent replaces the matched event with one built from the loan.
// The matched etag is sent as a precondition, so a concurrent change on the
// remote side makes the update fail instead of being overwritten.
func (c *CalendarClient) UpdateEvent(ctx context.Context, loan models.Loan, matched models.Event) error {
	updated := loan.Event()
	updated.ETag = matched.Precondition()
	event := toGoogleEvent(updated)

	call := c.service.Events.Update(c.calendarID, matched.ID, event).Context(ctx)
	if updated.ETag != "" {
		call.Header().Set("If-Match", `"`+updated.ETag+`"`)
	}
	if _, err := call.Do(); err != nil {
		return remoteError("update", err)
	}

	c.logger.Info("Updated calendar event", "id", event.Id, "summary", event.Summary)
	return nil
}

// toGoogleEvent converts the internal Event model to the API resource.
func toGoogleEvent(e models.Event) *calendar.Event {
	return &calendar.Event{
		Kind:    eventKind,
		Etag:    e.ETag,
		Id:      e.ID,
		Summary: e.Summary,
		Start:   &calendar.EventDateTime{Date: e.Start.Format(models.DateLayout)},
		End:     &calendar.EventDateTime{Date: e.End.Format(models.DateLayout)},
	}
}

// toInternalEvent converts an API resource to the internal Event model.
// Events without an all-day date keep a zero date; they never look up to date.
func toInternalEvent(item *calendar.Event) (models.Event, error) {
	event := models.Event{
		ID:      item.Id,
		ETag:    item.Etag,
		Summary: item.Summary,
	}

	var err error
	if item.Start != nil && item.Start.Date != "" {
		if event.Start, err = models.ParseDate(item.Start.Date); err != nil {
			return models.Event{}, fmt.Errorf("event %s has invalid start date: %w", item.Id, err)
		}
	}
	if item.End != nil && item.End.Date != "" {
		if event.End, err = models.ParseDate(item.End.Date); err != nil {
			return models.Event{}, fmt.Errorf("event %s has invalid end date: %w", item.Id, err)
		}
	}
	return event, nil
}

func remoteError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &models.RemoteError{Op: op, StatusCode: apiErr.Code, Err: err}
	}
	return &models.RemoteError{Op: op, Err: err}
}
