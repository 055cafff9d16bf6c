package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcao2/inbox-triage/internal/logging"
	"github.com/mcao2/inbox-triage/internal/metrics"
)

// ReplyPrefix marks a subject as a reply.
const ReplyPrefix = "Re: "

// Schedule places detected meetings on the calendar. No time is extracted
// from the message; every event goes to the next day at Hour.
type Schedule struct {
	Hour     int
	Duration time.Duration
	Location *time.Location
}

// DefaultSchedule is tomorrow 10:00 UTC for one hour.
func DefaultSchedule() Schedule {
	return Schedule{Hour: 10, Duration: time.Hour, Location: time.UTC}
}

// Next returns the start and end of the slot following now.
func (s Schedule) Next(now time.Time) (time.Time, time.Time) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day()+1, s.Hour, 0, 0, 0, loc)
	return start, start.Add(s.Duration)
}

// ReplySubject prefixes subject with "Re: " unless it already has it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), strings.ToLower(ReplyPrefix)) {
		return subject
	}
	return ReplyPrefix + subject
}

// ReplyReferences appends messageID to the original References chain.
func ReplyReferences(references, messageID string) string {
	switch {
	case messageID == "":
		return references
	case references == "":
		return messageID
	}
	return references + " " + messageID
}

// Outcome is the result of one dispatch request.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeAlreadyDone Outcome = "already_done"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// DispatchResult reports one dispatch request back to the front end.
type DispatchResult struct {
	ItemID  string
	Action  Action
	Outcome Outcome
	Err     error
}

// Dispatcher issues side effects for the items of one batch. It never fires
// the same action twice for an item.
type Dispatcher struct {
	mail     MailGateway
	calendar CalendarGateway
	schedule Schedule
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]bool
}

func (d *Dispatcher) key(id string, action Action) string {
	return id + "/" + string(action)
}

// acquire atomically checks the item state and marks the action in flight.
func (d *Dispatcher) acquire(item *EmailItem, action Action) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if item.ActionState.Has(action) || d.inflight[d.key(item.ID, action)] {
		return false, nil
	}
	if action == ActionEvent && !item.MeetingFlag {
		return false, ErrNoMeeting
	}
	d.inflight[d.key(item.ID, action)] = true
	return true, nil
}

func (d *Dispatcher) release(item *EmailItem, action Action, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, d.key(item.ID, action))
	if ok {
		item.ActionState = item.ActionState.With(action)
	}
}

// Dispatch performs action for item unless it already happened.
func (d *Dispatcher) Dispatch(ctx context.Context, item *EmailItem, action Action) DispatchResult {
	res := DispatchResult{ItemID: item.ID, Action: action}
	logger := d.logger.With(logging.ItemID(item.ID), logging.Action(string(action)))

	proceed, err := d.acquire(item, action)
	if err != nil {
		res.Outcome = OutcomeSkipped
		res.Err = &DispatchError{ItemID: item.ID, Action: action, Err: err}
		d.metrics.RecordDispatch(string(action), metrics.ResultSkipped)
		return res
	}
	if !proceed {
		logger.Info("action already done, not dispatching")
		res.Outcome = OutcomeAlreadyDone
		d.metrics.RecordDispatch(string(action), metrics.ResultSkipped)
		return res
	}

	switch action {
	case ActionReply:
		err = d.sendReply(ctx, item)
	case ActionEvent:
		err = d.addEvent(ctx, item)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	d.release(item, action, err == nil)

	if err != nil {
		logger.Error("dispatch failed", logging.Status(logging.StatusError), zap.Error(err))
		res.Outcome = OutcomeFailed
		res.Err = &DispatchError{ItemID: item.ID, Action: action, Err: err}
		d.metrics.RecordDispatch(string(action), metrics.ResultFailed)
		return res
	}

	logger.Info("dispatched", logging.Status(logging.StatusSuccess), logging.Sender(item.Sender))
	res.Outcome = OutcomeDone
	d.metrics.RecordDispatch(string(action), metrics.ResultSuccess)
	return res
}

func (d *Dispatcher) sendReply(ctx context.Context, item *EmailItem) error {
	d.mu.Lock()
	reply := Reply{
		To:         item.Sender,
		Subject:    ReplySubject(item.Subject),
		Body:       item.DraftReply,
		ThreadID:   item.ThreadID,
		InReplyTo:  item.MessageID,
		References: ReplyReferences(item.References, item.MessageID),
	}
	d.mu.Unlock()

	if err := d.mail.SendReply(ctx, reply); err != nil {
		return gatewayErr("send reply", err)
	}
	return nil
}

func (d *Dispatcher) addEvent(ctx context.Context, item *EmailItem) error {
	start, end := d.schedule.Next(d.now())
	event := Event{
		Summary:     item.Subject,
		Description: item.Snippet,
		Start:       start,
		End:         end,
		TimeZone:    start.Location().String(),
	}
	if err := d.calendar.InsertEvent(ctx, event); err != nil {
		return gatewayErr("insert event", err)
	}
	return nil
}

// setDraft edits a draft unless the reply already went out or is in flight.
func (d *Dispatcher) setDraft(item *EmailItem, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if item.ActionState.Has(ActionReply) || d.inflight[d.key(item.ID, ActionReply)] {
		return ErrReplySent
	}
	item.DraftReply = text
	return nil
}

// restore merges the actions of state into the item. States only move
// forward.
func (d *Dispatcher) restore(item *EmailItem, state ActionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item.ActionState = item.ActionState.Merge(state)
}

// snapshot returns a copy of item taken under the dispatcher lock.
func (d *Dispatcher) snapshot(item *EmailItem) EmailItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *item
}
