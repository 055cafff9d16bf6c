package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcao2/inbox-triage/internal/triage"
)

const processedStoreVersion = "1.0"

// ProcessedStore remembers which messages were triaged and what was done
// with them. It is written after approval (batch) or after each action
// (interactive).
type ProcessedStore struct {
	Version   string                    `json:"version"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Items     map[string]ProcessedEntry `json:"items"`

	path string
}

type ProcessedEntry struct {
	Subject     string `json:"subject"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	MeetingFlag bool   `json:"meeting_flag"`
	ActionState string `json:"action_state"`
	ProcessedAt string `json:"processed_at"`
	Source      string `json:"source"` // "interactive", "batch"
}

func GetProcessedStorePath() string {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "processed_emails.json")
}

// LoadProcessedStore reads the store from the config directory.
func LoadProcessedStore() (*ProcessedStore, error) {
	return LoadProcessedStoreFrom(GetProcessedStorePath())
}

// LoadProcessedStoreFrom reads the store at path. A missing file yields an
// empty store.
func LoadProcessedStoreFrom(path string) (*ProcessedStore, error) {
	if path == "" {
		return &ProcessedStore{Version: processedStoreVersion, Items: make(map[string]ProcessedEntry)}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ProcessedStore{Version: processedStoreVersion, Items: make(map[string]ProcessedEntry), path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read processed store: %w", err)
	}

	var store ProcessedStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("failed to parse processed store: %w", err)
	}

	if store.Items == nil {
		store.Items = make(map[string]ProcessedEntry)
	}
	store.path = path

	return &store, nil
}

func (s *ProcessedStore) Save() error {
	if s.path == "" {
		return fmt.Errorf("cannot determine processed store path")
	}

	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal processed store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create processed store directory: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}

// Record stores the current view of item. Actions recorded earlier are kept.
func (s *ProcessedStore) Record(item triage.EmailItem, source string) {
	if s.Items == nil {
		s.Items = make(map[string]ProcessedEntry)
	}
	state := item.ActionState
	if prev, ok := s.Items[item.ID]; ok {
		if prevState, ok := triage.ParseActionState(prev.ActionState); ok {
			state = state.Merge(prevState)
		}
	}
	s.Items[item.ID] = ProcessedEntry{
		Subject:     item.Subject,
		Category:    string(item.Category),
		Priority:    string(item.Priority),
		MeetingFlag: item.MeetingFlag,
		ActionState: state.String(),
		ProcessedAt: time.Now().Format(time.RFC3339),
		Source:      source,
	}
}

// RecordAll stores every item of a batch snapshot.
func (s *ProcessedStore) RecordAll(items []triage.EmailItem, source string) {
	for _, it := range items {
		s.Record(it, source)
	}
}

func (s *ProcessedStore) GetItem(id string) (ProcessedEntry, bool) {
	if s.Items == nil {
		return ProcessedEntry{}, false
	}
	entry, ok := s.Items[id]
	return entry, ok
}

func (s *ProcessedStore) HasProcessed(id string) bool {
	_, ok := s.Items[id]
	return ok
}

// GetUnprocessedIDs filters allIDs down to messages never recorded.
func (s *ProcessedStore) GetUnprocessedIDs(allIDs []string) []string {
	var result []string
	for _, id := range allIDs {
		if !s.HasProcessed(id) {
			result = append(result, id)
		}
	}
	return result
}

// Seed restores on run the actions recorded for its items, so a message that
// is still unread after a reply is not answered twice. It returns the number
// of items restored.
func (s *ProcessedStore) Seed(run *triage.Run) int {
	n := 0
	for _, item := range run.Snapshot() {
		entry, ok := s.GetItem(item.ID)
		if !ok {
			continue
		}
		state, ok := triage.ParseActionState(entry.ActionState)
		if !ok || state == triage.StateAnalyzed {
			continue
		}
		if err := run.Restore(item.ID, state); err == nil {
			n++
		}
	}
	return n
}
