package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcao2/inbox-triage/internal/config"
	"github.com/mcao2/inbox-triage/internal/report"
	"github.com/mcao2/inbox-triage/internal/triage"
	"github.com/mcao2/inbox-triage/internal/ui"
)

type fakeMail struct{}

func (fakeMail) ListUnread(context.Context, int) ([]triage.MessageRef, error) { return nil, nil }
func (fakeMail) GetMessage(context.Context, string) (*triage.Message, error) {
	return nil, errors.New("not used")
}
func (fakeMail) SendReply(context.Context, triage.Reply) error { return nil }

type fakeCalendar struct {
	mu     sync.Mutex
	events []triage.Event
}

func (f *fakeCalendar) InsertEvent(_ context.Context, e triage.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeCalendar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type starterFunc func(ctx context.Context, limit int) (*triage.Run, error)

func (f starterFunc) Start(ctx context.Context, limit int) (*triage.Run, error) { return f(ctx, limit) }

func batchStarter(cal *fakeCalendar, items []*triage.EmailItem) ui.Starter {
	p := triage.New(fakeMail{}, cal, nil, triage.WithPolicy(triage.PolicyBatch))
	return starterFunc(func(context.Context, int) (*triage.Run, error) {
		return p.NewRun(&triage.Batch{RunID: "run-cli", FetchedAt: time.Now(), Items: items}), nil
	})
}

func meetingItems() []*triage.EmailItem {
	return []*triage.EmailItem{
		{
			ID: "m1", ThreadID: "T1", Subject: "Planning sync", Sender: "Alice <alice@example.com>",
			Category: triage.CategoryWork, Priority: triage.PriorityHigh, MeetingFlag: true,
			DraftReply: "Sure.", Analysis: triage.AnalysisParsed,
		},
		{
			ID: "m2", ThreadID: "T2", Subject: "Newsletter", Sender: "news@example.com",
			Category: triage.CategoryPromotion, Priority: triage.PriorityLow,
			DraftReply: "Thanks.", Analysis: triage.AnalysisParsed,
		},
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"run", "auth", "init", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
	for _, flag := range []string{"config", "limit", "approval", "export-dir", "debug"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag --%s", flag)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if got := out.String(); got != "inbox-triage version dev\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("INBOX_TRIAGE_CONFIG", path)

	run := func() string {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"init", "--config", path})
		if err := root.Execute(); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		return out.String()
	}

	if got := run(); !strings.Contains(got, "Wrote example config") {
		t.Errorf("unexpected first output %q", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if got := run(); !strings.Contains(got, "already exists") {
		t.Errorf("unexpected second output %q", got)
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv("INBOX_TRIAGE_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("INBOX_TRIAGE_LIMIT", "")
	t.Setenv("INBOX_TRIAGE_APPROVAL", "")

	cmd := &cobra.Command{Use: "test"}
	opts := &rootOptions{}
	bindFlags(cmd, opts)
	if err := cmd.ParseFlags([]string{"--limit", "99", "--approval", "batch", "--export-dir", "/tmp/out"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Limit != config.MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", config.MaxLimit, cfg.Limit)
	}
	if cfg.Approval != "batch" {
		t.Errorf("expected batch approval, got %q", cfg.Approval)
	}
	if cfg.ExportDir != "/tmp/out" {
		t.Errorf("expected export dir /tmp/out, got %q", cfg.ExportDir)
	}
}

func TestLoadConfigKeepsFileValuesWithoutFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("INBOX_TRIAGE_CONFIG", path)
	t.Setenv("INBOX_TRIAGE_LIMIT", "")
	t.Setenv("INBOX_TRIAGE_APPROVAL", "")
	if err := os.WriteFile(path, []byte("limit: 12\napproval: batch\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{Use: "test"}
	opts := &rootOptions{}
	bindFlags(cmd, opts)
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Limit != 12 || cfg.Approval != "batch" {
		t.Errorf("file values lost: limit=%d approval=%q", cfg.Limit, cfg.Approval)
	}
}

func TestRunRejectsUnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("INBOX_TRIAGE_CONFIG", path)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", path, "--approval", "sometimes"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown approval policy") {
		t.Errorf("expected policy error, got %v", err)
	}
}

func TestRunWithoutCredentialsIsAuthError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("INBOX_TRIAGE_CONFIG", path)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path})

	err := root.Execute()
	var authErr *triage.AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthError, got %v", err)
	}
}

func TestNewEngine(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("GROQ_API_KEY", "")

	cfg := &config.Config{LLM: config.LLMConfig{Provider: "openai", APIKey: "sk-test"}}
	engine, err := newEngine(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newEngine failed: %v", err)
	}
	if engine == nil {
		t.Fatal("expected an engine")
	}

	cfg.LLM.APIKey = ""
	if _, err := newEngine(cfg, zap.NewNop()); err == nil {
		t.Error("expected error without api key")
	}
}

func TestRunBatchApproved(t *testing.T) {
	dir := t.TempDir()
	cal := &fakeCalendar{}
	store, err := config.LoadProcessedStoreFrom(filepath.Join(dir, "processed_emails.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Limit: 5, ExportDir: dir}

	var out bytes.Buffer
	err = runBatch(context.Background(), batchStarter(cal, meetingItems()), cfg, store, &out,
		func(*triage.Batch) (bool, error) { return true, nil }, zap.NewNop())
	if err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}

	if cal.count() != 1 {
		t.Errorf("expected one calendar event, got %d", cal.count())
	}
	if !store.HasProcessed("m1") || !store.HasProcessed("m2") {
		t.Error("expected both items recorded")
	}

	rep, err := report.LoadFile(filepath.Join(dir, report.JSONFile))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if len(rep.Items) != 2 {
		t.Errorf("expected 2 report entries, got %d", len(rep.Items))
	}
	if !strings.Contains(out.String(), "--- ANALYSIS REPORT ---") {
		t.Errorf("missing analysis report in output:\n%s", out.String())
	}
}

func TestRunBatchRejected(t *testing.T) {
	dir := t.TempDir()
	cal := &fakeCalendar{}
	store, err := config.LoadProcessedStoreFrom(filepath.Join(dir, "processed_emails.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Limit: 5, ExportDir: dir}

	var out bytes.Buffer
	err = runBatch(context.Background(), batchStarter(cal, meetingItems()), cfg, store, &out,
		func(*triage.Batch) (bool, error) { return false, nil }, zap.NewNop())
	if err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}

	if cal.count() != 0 {
		t.Errorf("expected no events, got %d", cal.count())
	}
	if store.HasProcessed("m1") {
		t.Error("rejected items must not be recorded")
	}
	if _, err := os.Stat(filepath.Join(dir, report.JSONFile)); !os.IsNotExist(err) {
		t.Errorf("expected no report, stat err = %v", err)
	}
	if !strings.Contains(out.String(), "--- ACTIONS REJECTED BY USER ---") {
		t.Errorf("missing rejection line in output:\n%s", out.String())
	}
}

func TestRunBatchEmptyInbox(t *testing.T) {
	cfg := &config.Config{Limit: 5, ExportDir: t.TempDir()}
	asked := false

	var out bytes.Buffer
	err := runBatch(context.Background(), batchStarter(&fakeCalendar{}, nil), cfg, nil, &out,
		func(*triage.Batch) (bool, error) { asked = true; return true, nil }, zap.NewNop())
	if err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}
	if asked {
		t.Error("empty batch must not ask for approval")
	}
	if !strings.Contains(out.String(), "No unread emails.") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunBatchStartError(t *testing.T) {
	cfg := &config.Config{Limit: 5}
	wantErr := &triage.GatewayError{Op: "list", Err: errors.New("boom")}
	starter := starterFunc(func(context.Context, int) (*triage.Run, error) { return nil, wantErr })

	err := runBatch(context.Background(), starter, cfg, nil, &bytes.Buffer{},
		func(*triage.Batch) (bool, error) { return true, nil }, zap.NewNop())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected fetch error, got %v", err)
	}
}
