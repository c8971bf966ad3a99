package icloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"loancal/internal/models"
	"net/http"
	"path"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

const (
	// DefaultEndpoint is the iCloud CalDAV server.
	DefaultEndpoint = "https://caldav.icloud.com/"

	productID = "-//loancal//EN"
)

// CalDAVClient mirrors loans into a CalDAV calendar (iCloud by default).
// Events are stored as all-day VEVENTs whose UID is the loan id.
type CalDAVClient struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
	objectPaths  map[string]string // UID -> object path, filled by ListEvents
}

// NewClient creates and initializes a new CalDAVClient for the calendar
// with the given display name.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	httpClient := &http.Client{Transport: &customTransport{Transport: http.DefaultTransport}}
	caldavClient, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, username, password), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		logger:       logger,
		objectPaths:  make(map[string]string),
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// ListEvents returns every VEVENT of the calendar.
func (c *CalDAVClient) ListEvents(ctx context.Context) ([]models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent}},
		},
	}

	ctx, call := withCall(ctx, "", "")
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, &models.RemoteError{Op: "list", StatusCode: call.failedStatus(), Err: err}
	}

	events := make([]models.Event, 0, len(objects))
	for _, obj := range objects {
		event, err := eventFromObject(obj)
		if err != nil {
			return nil, &models.RemoteError{Op: "list", Err: err}
		}
		c.objectPaths[event.ID] = obj.Path
		events = append(events, event)
	}

	c.logger.Info("Successfully fetched events from CalDAV calendar", "count", len(events), "path", c.calendarPath)
	return events, nil
}

// CreateEvent stores a new calendar object for the loan. The object must not
// exist yet.
func (c *CalDAVClient) CreateEvent(ctx context.Context, loan models.Loan) error {
	event := loan.Event()
	objectPath := c.objectPath(event.ID)

	ctx, call := withCall(ctx, "If-None-Match", "*")
	if _, err := c.caldavClient.PutCalendarObject(ctx, objectPath, toCalendar(event)); err != nil {
		return &models.RemoteError{Op: "create", StatusCode: call.failedStatus(), Err: err}
	}

	c.logger.Info("Created calendar event", "id", event.ID, "path", objectPath)
	return nil
}

// UpdateEvent overwrites the matched calendar object, provided it still has
// the matched etag.
func (c *CalDAVClient) UpdateEvent(ctx context.Context, loan models.Loan, matched models.Event) error {
	event := loan.Event()
	objectPath := c.objectPath(matched.ID)

	var call *callInfo
	if etag := matched.Precondition(); etag != "" {
		ctx, call = withCall(ctx, "If-Match", `"`+etag+`"`)
	} else {
		ctx, call = withCall(ctx, "", "")
	}
	if _, err := c.caldavClient.PutCalendarObject(ctx, objectPath, toCalendar(event)); err != nil {
		return &models.RemoteError{Op: "update", StatusCode: call.failedStatus(), Err: err}
	}

	c.logger.Info("Updated calendar event", "id", event.ID, "path", objectPath)
	return nil
}

func (c *CalDAVClient) objectPath(id string) string {
	if p, ok := c.objectPaths[id]; ok {
		return p
	}
	return path.Join(c.calendarPath, id+".ics")
}

// toCalendar wraps an event in a VCALENDAR as a single all-day VEVENT.
func toCalendar(event models.Event) *ical.Calendar {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.ID)
	ve.Props.SetText(ical.PropSummary, event.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDate(ical.PropDateTimeStart, event.Start)
	ve.Props.SetDate(ical.PropDateTimeEnd, event.End)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal
}

// eventFromObject reads the first VEVENT of a calendar object.
func eventFromObject(obj caldav.CalendarObject) (models.Event, error) {
	if obj.Data == nil {
		return models.Event{}, fmt.Errorf("calendar object %s has no data", obj.Path)
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		uid, err := child.Props.Text(ical.PropUID)
		if err != nil {
			return models.Event{}, fmt.Errorf("calendar object %s: invalid UID: %w", obj.Path, err)
		}
		summary, err := child.Props.Text(ical.PropSummary)
		if err != nil {
			return models.Event{}, fmt.Errorf("calendar object %s: invalid SUMMARY: %w", obj.Path, err)
		}
		start, err := child.Props.DateTime(ical.PropDateTimeStart, time.UTC)
		if err != nil {
			return models.Event{}, fmt.Errorf("calendar object %s: invalid DTSTART: %w", obj.Path, err)
		}
		end, err := child.Props.DateTime(ical.PropDateTimeEnd, time.UTC)
		if err != nil {
			return models.Event{}, fmt.Errorf("calendar object %s: invalid DTEND: %w", obj.Path, err)
		}

		return models.Event{
			ID:      uid,
			ETag:    obj.ETag,
			Summary: summary,
			Start:   models.Date(start),
			End:     models.Date(end),
		}, nil
	}

	return models.Event{}, errors.New("calendar object " + obj.Path + " has no VEVENT")
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
