// Package calendar implements the calendar gateway on top of the Google
// Calendar v3 API.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mcao2/inbox-triage/internal/triage"
)

// DefaultCalendarID is the user's primary calendar.
const DefaultCalendarID = "primary"

// Client inserts events into one calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	logger     *zap.Logger
}

// NewClient creates a Calendar client for calendarID.
func NewClient(ctx context.Context, calendarID string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{svc: svc, calendarID: calendarID, logger: logger}, nil
}

// CalendarID returns the target calendar.
func (c *Client) CalendarID() string {
	return c.calendarID
}

// InsertEvent creates a timed event.
func (c *Client) InsertEvent(ctx context.Context, e triage.Event) error {
	tz := e.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	event := &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Start: &calendar.EventDateTime{
			DateTime: e.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: e.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			return &triage.AuthError{Err: err}
		}
		var authErr *triage.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		return &triage.GatewayError{Op: "calendar insert", Err: err}
	}

	c.logger.Debug("event created",
		zap.String("event_id", created.Id),
		zap.String("calendar_id", c.calendarID),
		zap.String("start", event.Start.DateTime))
	return nil
}
