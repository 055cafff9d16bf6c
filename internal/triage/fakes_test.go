package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type fakeMail struct {
	mu       sync.Mutex
	messages []Message
	listErr  error
	getErr   map[string]error
	sendErr  error
	sent     []Reply
	listed   int
}

func (f *fakeMail) ListUnread(_ context.Context, limit int) ([]MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	refs := make([]MessageRef, 0, len(f.messages))
	for _, m := range f.messages {
		refs = append(refs, MessageRef{ID: m.ID, ThreadID: m.ThreadID})
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, m := range f.messages {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeMail) SendReply(_ context.Context, r Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, r)
	return nil
}

func (f *fakeMail) Sent() []Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reply(nil), f.sent...)
}

type fakeCalendar struct {
	mu     sync.Mutex
	err    error
	events []Event
	delay  time.Duration
}

func (f *fakeCalendar) InsertEvent(_ context.Context, e Event) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeCalendar) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

// fakeEngine answers by matching a substring of the prompt.
type fakeEngine struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	def       string
	calls     int
}

func (f *fakeEngine) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for key, err := range f.errs {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, resp := range f.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return f.def, nil
}

var fixedNow = time.Date(2024, 3, 14, 16, 30, 0, 0, time.UTC)

func newTestPipeline(mail MailGateway, cal CalendarGateway, engine Engine, opts ...Option) *Pipeline {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRunID(func() string { return "run-test" }),
	}
	return New(mail, cal, engine, append(base, opts...)...)
}

const (
	workMeeting = `{"category": "Work", "priority": "High", "meeting": "Yes", "reply": "Sure, I'll be there."}`
	promoNoMeet = `{"category": "Promotion", "priority": "Low", "meeting": "No", "reply": "No thanks."}`
)
