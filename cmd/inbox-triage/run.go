package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mcao2/inbox-triage/internal/auth"
	"github.com/mcao2/inbox-triage/internal/calendar"
	"github.com/mcao2/inbox-triage/internal/config"
	"github.com/mcao2/inbox-triage/internal/gmail"
	"github.com/mcao2/inbox-triage/internal/llm"
	"github.com/mcao2/inbox-triage/internal/logging"
	"github.com/mcao2/inbox-triage/internal/metrics"
	"github.com/mcao2/inbox-triage/internal/report"
	"github.com/mcao2/inbox-triage/internal/triage"
	"github.com/mcao2/inbox-triage/internal/ui"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch, analyze and review unread emails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriage(cmd, opts)
		},
	}
}

// useConfigPath points the config package at --config.
func useConfigPath(opts *rootOptions) {
	if opts.configPath != "" {
		os.Setenv("INBOX_TRIAGE_CONFIG", opts.configPath)
	}
}

// loadConfig loads the config and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	useConfigPath(opts)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.Limit = config.ClampLimit(opts.limit)
	}
	if flags.Changed("approval") {
		cfg.Approval = opts.approval
	}
	if flags.Changed("export-dir") {
		cfg.ExportDir = opts.exportDir
	}
	return cfg, nil
}

func runTriage(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	policy, err := triage.ParsePolicy(cfg.Approval)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogFile, opts.debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("version", version))

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pipeline, err := newPipeline(ctx, cfg, policy, logger, m)
	if err != nil {
		return err
	}

	store, err := config.LoadProcessedStore()
	if err != nil {
		logger.Warn("failed to load processed store", zap.Error(err))
	}

	if policy == triage.PolicyBatch {
		return runBatch(ctx, pipeline, cfg, store, cmd.OutOrStdout(), ui.FormAsker(cfg.BatchDispatch), logger)
	}
	return runInteractive(ctx, pipeline, cfg, store, logger)
}

// newPipeline wires the Google clients and the LLM engine into a pipeline.
func newPipeline(ctx context.Context, cfg *config.Config, policy triage.Policy, logger *zap.Logger, m *metrics.Metrics) (*triage.Pipeline, error) {
	provider, err := auth.NewFileProvider(cfg.CredentialsFile, cfg.TokenFile, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if !provider.HasToken() {
		return nil, &triage.AuthError{Err: auth.ErrNoToken}
	}
	httpClient := option.WithHTTPClient(provider.HTTPClient(ctx))

	mail, err := gmail.NewClient(ctx, logger, httpClient)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.NewClient(ctx, cfg.CalendarID, logger, httpClient)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Event.Location()
	if err != nil {
		return nil, err
	}
	schedule := triage.Schedule{
		Hour:     cfg.Event.Hour,
		Duration: cfg.Event.Duration(),
		Location: loc,
	}

	return triage.New(mail, cal, engine,
		triage.WithLogger(logger),
		triage.WithMetrics(m),
		triage.WithPolicy(policy),
		triage.WithConcurrency(cfg.Concurrency),
		triage.WithSchedule(schedule),
		triage.WithBatchReplies(cfg.BatchDispatch),
	), nil
}

// newEngine builds the LLM client behind a circuit breaker.
func newEngine(cfg *config.Config, logger *zap.Logger) (triage.Engine, error) {
	llmCfg := cfg.GetLLMConfig()
	client, err := llm.New(llmCfg.Provider, llmCfg.APIKey,
		llm.WithBaseURL(llmCfg.BaseURL),
		llm.WithModel(llmCfg.Model),
		llm.WithAPIFormat(llmCfg.APIFormat),
		llm.WithSystemPrompt(triage.SystemPrompt),
		llm.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return llm.NewBreaker(client, llm.DefaultBreakerSettings(), logger), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func runInteractive(ctx context.Context, starter ui.Starter, cfg *config.Config, store *config.ProcessedStore, logger *zap.Logger) error {
	model := ui.NewModel(ctx, starter, ui.Options{
		Limit:     cfg.Limit,
		ExportDir: cfg.ExportDir,
		Config:    cfg,
		Store:     store,
		Logger:    logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return model.Err()
}

// runBatch analyzes one batch and asks once whether to act on all of it.
// An approved batch is recorded in the processed store and exported.
func runBatch(ctx context.Context, starter ui.Starter, cfg *config.Config, store *config.ProcessedStore, out io.Writer, ask ui.Asker, logger *zap.Logger) error {
	fmt.Fprintf(out, "Fetching up to %d unread emails...\n", cfg.Limit)
	run, err := starter.Start(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	if run.Batch().Len() == 0 {
		fmt.Fprintln(out, "No unread emails.")
		return nil
	}

	if store != nil {
		store.Seed(run)
	}

	outcome, err := ui.ReviewBatch(ctx, run, out, ask)
	if err != nil {
		return err
	}
	if !outcome.Approved {
		return nil
	}

	if store != nil {
		store.RecordAll(run.Snapshot(), "batch")
		if err := store.Save(); err != nil {
			logger.Warn("failed to save processed store", zap.Error(err))
		}
	}

	jsonPath, textPath, err := report.WriteFiles(cfg.ExportDir, report.FromRun(run, time.Now()))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Report written to %s and %s\n", jsonPath, textPath)

	if outcome.Failed > 0 {
		return fmt.Errorf("%d action(s) failed", outcome.Failed)
	}
	return nil
}
