// Package report exports a triaged batch as JSON and as a plain text
// summary. It only reads item data; it never talks to a gateway.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/mcao2/inbox-triage/internal/triage"
)

const (
	JSONFile = "email_report.json"
	TextFile = "email_report.txt"

	meetingYes = "Yes"
	meetingNo  = "No"
)

// Report is the exported form of one run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Items       []Entry   `json:"items"`
}

// Entry is one exported email. Keys follow the layout of the reports the
// tool has always written, so older consumers keep working.
type Entry struct {
	ID          string `json:"ID"`
	ThreadID    string `json:"ThreadID"`
	MessageID   string `json:"MessageID,omitempty"`
	References  string `json:"References,omitempty"`
	Subject     string `json:"Subject"`
	From        string `json:"From"`
	Snippet     string `json:"Snippet"`
	Category    string `json:"Category"`
	Priority    string `json:"Priority"`
	Meeting     string `json:"Meeting"`
	Reply       string `json:"Reply"`
	ActionState string `json:"ActionState"`
	Analysis    string `json:"Analysis"`
}

// Build captures items as a report. Pass a snapshot (triage.Run.Snapshot)
// when dispatches may still be running.
func Build(runID string, items []triage.EmailItem, at time.Time) *Report {
	r := &Report{RunID: runID, GeneratedAt: at.UTC(), Items: make([]Entry, 0, len(items))}
	for _, it := range items {
		meeting := meetingNo
		if it.MeetingFlag {
			meeting = meetingYes
		}
		r.Items = append(r.Items, Entry{
			ID:          it.ID,
			ThreadID:    it.ThreadID,
			MessageID:   it.MessageID,
			References:  it.References,
			Subject:     it.Subject,
			From:        it.Sender,
			Snippet:     it.Snippet,
			Category:    string(it.Category),
			Priority:    string(it.Priority),
			Meeting:     meeting,
			Reply:       it.DraftReply,
			ActionState: it.ActionState.String(),
			Analysis:    string(it.Analysis),
		})
	}
	return r
}

// FromRun builds a report from a consistent snapshot of run.
func FromRun(run *triage.Run, at time.Time) *Report {
	return Build(run.Batch().RunID, run.Snapshot(), at)
}

// MarshalJSON renders the report indented, one field per line.
func (r *Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.MarshalIndent((*plain)(r), "", "    ")
}

// Load parses a report written by MarshalJSON.
func Load(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// LoadFile parses the report at path.
func LoadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// EmailItems converts the entries back into items.
func (r *Report) EmailItems() ([]triage.EmailItem, error) {
	items := make([]triage.EmailItem, 0, len(r.Items))
	for _, e := range r.Items {
		state, ok := triage.ParseActionState(e.ActionState)
		if !ok {
			return nil, fmt.Errorf("item %s: unknown action state %q", e.ID, e.ActionState)
		}
		items = append(items, triage.EmailItem{
			ID:          e.ID,
			ThreadID:    e.ThreadID,
			MessageID:   e.MessageID,
			References:  e.References,
			Subject:     e.Subject,
			Sender:      e.From,
			Snippet:     e.Snippet,
			Category:    triage.Category(e.Category),
			Priority:    triage.Priority(e.Priority),
			MeetingFlag: e.Meeting == meetingYes,
			DraftReply:  e.Reply,
			ActionState: state,
			Analysis:    triage.Analysis(e.Analysis),
		})
	}
	return items, nil
}

// Text renders the line oriented summary.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("EMAIL TRIAGE REPORT\n")
	b.WriteString(strings.Repeat("=", 20))
	b.WriteString("\n")
	for _, e := range r.Items {
		fmt.Fprintf(&b, "Subject: %s\nPriority: %s\nCategory: %s\n---\n", e.Subject, e.Priority, e.Category)
	}
	return b.String()
}

// WriteFiles writes the JSON and text reports into dir and returns their
// paths.
func WriteFiles(dir string, r *Report) (jsonPath, textPath string, err error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create export dir: %w", err)
	}

	data, err := r.MarshalJSON()
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal report: %w", err)
	}

	jsonPath = filepath.Join(dir, JSONFile)
	if err := os.WriteFile(jsonPath, data, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", JSONFile, err)
	}

	textPath = filepath.Join(dir, TextFile)
	if err := os.WriteFile(textPath, []byte(r.Text()), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", TextFile, err)
	}

	return jsonPath, textPath, nil
}

// CopyText puts the text summary on the system clipboard.
func CopyText(r *Report) error {
	if err := clipboard.WriteAll(r.Text()); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}
