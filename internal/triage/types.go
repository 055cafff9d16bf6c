package triage

import (
	"strings"
	"time"
)

// Category is the closed set of email categories.
type Category string

const (
	CategoryWork      Category = "Work"
	CategorySocial    Category = "Social"
	CategoryPromotion Category = "Promotion"
	CategoryFinance   Category = "Finance"
	CategoryPersonal  Category = "Personal"
	CategoryOther     Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryWork, CategorySocial, CategoryPromotion, CategoryFinance, CategoryPersonal, CategoryOther,
}

// ParseCategory matches s case-insensitively against the closed set.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return CategoryOther, false
}

// Priority is the closed set of priorities.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists every valid priority from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority matches s case-insensitively against the closed set.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range Priorities {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return PriorityMedium, false
}

// ActionState records which side effects already fired for an item.
type ActionState int

const (
	StateAnalyzed ActionState = iota
	StateReplySent
	StateEventAdded
	StateReplyAndEventDone
)

func (s ActionState) String() string {
	switch s {
	case StateAnalyzed:
		return "Analyzed"
	case StateReplySent:
		return "ReplySent"
	case StateEventAdded:
		return "EventAdded"
	case StateReplyAndEventDone:
		return "ReplyAndEventDone"
	default:
		return "Unknown"
	}
}

// ParseActionState is the inverse of ActionState.String.
func ParseActionState(s string) (ActionState, bool) {
	for _, st := range []ActionState{StateAnalyzed, StateReplySent, StateEventAdded, StateReplyAndEventDone} {
		if st.String() == s {
			return st, true
		}
	}
	return StateAnalyzed, false
}

// Has reports whether the side effect of action already happened.
func (s ActionState) Has(action Action) bool {
	switch action {
	case ActionReply:
		return s == StateReplySent || s == StateReplyAndEventDone
	case ActionEvent:
		return s == StateEventAdded || s == StateReplyAndEventDone
	}
	return false
}

// With returns the state after action completed. States only move forward.
func (s ActionState) With(action Action) ActionState {
	switch {
	case action == ActionReply && s == StateAnalyzed:
		return StateReplySent
	case action == ActionReply && s == StateEventAdded:
		return StateReplyAndEventDone
	case action == ActionEvent && s == StateAnalyzed:
		return StateEventAdded
	case action == ActionEvent && s == StateReplySent:
		return StateReplyAndEventDone
	}
	return s
}

// Merge returns the state in which the actions of both s and other happened.
func (s ActionState) Merge(other ActionState) ActionState {
	for _, action := range []Action{ActionReply, ActionEvent} {
		if other.Has(action) {
			s = s.With(action)
		}
	}
	return s
}

// Action is a side-effecting call the pipeline can dispatch for an item.
type Action string

const (
	ActionReply Action = "reply"
	ActionEvent Action = "event"
)

// Analysis records how an item's judgment was obtained.
type Analysis string

const (
	AnalysisParsed   Analysis = "parsed"
	AnalysisCoerced  Analysis = "coerced"
	AnalysisFallback Analysis = "fallback"
)

// Judgment is the structured output of the analysis engine for one email.
type Judgment struct {
	Category    Category
	Priority    Priority
	MeetingFlag bool
	DraftReply  string
	Analysis    Analysis
}

// EmailItem is one triaged message. MessageID and References are the RFC
// 2822 headers a reply threads on.
type EmailItem struct {
	ID         string
	ThreadID   string
	MessageID  string
	References string
	Subject    string
	Sender     string
	Snippet    string

	Category    Category
	Priority    Priority
	MeetingFlag bool
	DraftReply  string
	ActionState ActionState
	Analysis    Analysis
}

func (it *EmailItem) apply(j Judgment) {
	it.Category = j.Category
	it.Priority = j.Priority
	it.MeetingFlag = j.MeetingFlag
	it.DraftReply = j.DraftReply
	it.Analysis = j.Analysis
	it.ActionState = StateAnalyzed
}

// Batch is the ordered result of one fetch-and-analyze cycle.
type Batch struct {
	RunID     string
	FetchedAt time.Time
	Items     []*EmailItem
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}

// Item looks up an item by provider id.
func (b *Batch) Item(id string) (*EmailItem, bool) {
	if b == nil {
		return nil, false
	}
	for _, it := range b.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// MessageRef identifies a message returned by a list call.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Message is the header/snippet view of a provider message.
type Message struct {
	ID         string
	ThreadID   string
	MessageID  string
	References string
	Subject    string
	From       string
	Snippet    string
}

// Reply is an outgoing reply threaded to an existing conversation.
type Reply struct {
	To         string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string
	References string
}

// Event is a calendar event to insert.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}
