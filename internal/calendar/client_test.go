package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/mcao2/inbox-triage/internal/triage"
)

func newTestClient(t *testing.T, calendarID string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), calendarID, nil,
		option.WithEndpoint(srv.URL+"/calendar/v3/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestInsertEvent(t *testing.T) {
	var got calendar.Event
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		got.Id = "ev1"
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(got))
	})
	assert.Equal(t, DefaultCalendarID, c.CalendarID())

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	err := c.InsertEvent(context.Background(), triage.Event{
		Summary:     "Planning sync",
		Description: "Can we meet?",
		Start:       start,
		End:         start.Add(time.Hour),
		TimeZone:    "UTC",
	})
	require.NoError(t, err)

	assert.Equal(t, "Planning sync", got.Summary)
	assert.Equal(t, "Can we meet?", got.Description)
	assert.Equal(t, "2024-03-15T10:00:00Z", got.Start.DateTime)
	assert.Equal(t, "2024-03-15T11:00:00Z", got.End.DateTime)
	assert.Equal(t, "UTC", got.Start.TimeZone)
}

func TestInsertEventCustomCalendar(t *testing.T) {
	c := newTestClient(t, "team@group.calendar.google.com", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "team@group.calendar.google.com")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ev2","start":{"dateTime":"2024-03-15T10:00:00Z"}}`))
	})

	err := c.InsertEvent(context.Background(), triage.Event{Start: time.Now(), End: time.Now().Add(time.Hour)})
	require.NoError(t, err)
}

func TestInsertEventErrors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		err := c.InsertEvent(context.Background(), triage.Event{Start: time.Now(), End: time.Now()})
		var authErr *triage.AuthError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		err := c.InsertEvent(context.Background(), triage.Event{Start: time.Now(), End: time.Now()})
		var gwErr *triage.GatewayError
		assert.ErrorAs(t, err, &gwErr)
	})
}
