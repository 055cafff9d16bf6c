package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcao2/inbox-triage/internal/logging"
	"github.com/mcao2/inbox-triage/internal/metrics"
)

// DefaultConcurrency bounds parallel engine calls during analysis.
const DefaultConcurrency = 4

// Pipeline wires the gateways and the analysis engine into triage runs.
type Pipeline struct {
	mail     MailGateway
	calendar CalendarGateway
	engine   Engine

	logger       *zap.Logger
	metrics      *metrics.Metrics
	concurrency  int
	policy       Policy
	schedule     Schedule
	batchReplies bool
	now          func() time.Time
	newRunID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. A nil sink records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithConcurrency bounds the number of concurrent engine calls.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPolicy selects the approval policy for runs started by the pipeline.
func WithPolicy(policy Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithSchedule sets where meeting events are placed.
func WithSchedule(s Schedule) Option {
	return func(p *Pipeline) { p.schedule = s }
}

// WithBatchReplies makes an approved batch send every draft reply in
// addition to adding events.
func WithBatchReplies(enabled bool) Option {
	return func(p *Pipeline) { p.batchReplies = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID replaces the run id generator.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.newRunID = gen }
}

// New creates a pipeline over the given gateways and engine.
func New(mail MailGateway, calendar CalendarGateway, engine Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		mail:        mail,
		calendar:    calendar,
		engine:      engine,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
		policy:      PolicyInteractive,
		schedule:    DefaultSchedule(),
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the approval policy new runs use.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Start fetches and analyzes a batch and returns the run that owns it. No
// side effect happens before the run's gate allows it.
func (p *Pipeline) Start(ctx context.Context, limit int) (*Run, error) {
	batch, err := p.Fetch(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := p.Analyze(ctx, batch); err != nil {
		return nil, err
	}
	return p.NewRun(batch), nil
}

// NewRun wraps an already analyzed batch in a run with a fresh gate.
func (p *Pipeline) NewRun(batch *Batch) *Run {
	return &Run{
		batch:        batch,
		gate:         NewGate(p.policy),
		batchReplies: p.batchReplies,
		logger:       p.logger.With(logging.RunID(batch.RunID)),
		metrics:      p.metrics,
		dispatcher: &Dispatcher{
			mail:     p.mail,
			calendar: p.calendar,
			schedule: p.schedule,
			now:      p.now,
			logger:   p.logger.With(logging.RunID(batch.RunID), logging.Operation("dispatch")),
			metrics:  p.metrics,
			inflight: make(map[string]bool),
		},
	}
}

// Run is one analyzed batch and its approval state. It is the unit a front
// end works with after analysis.
type Run struct {
	batch        *Batch
	gate         *Gate
	dispatcher   *Dispatcher
	batchReplies bool
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Batch returns the run's batch. Read item fields through Snapshot while
// dispatches may be in flight.
func (r *Run) Batch() *Batch {
	return r.batch
}

// Gate returns the run's approval gate.
func (r *Run) Gate() *Gate {
	return r.gate
}

// Snapshot returns a copy of every item, in fetch order.
func (r *Run) Snapshot() []EmailItem {
	items := make([]EmailItem, 0, r.batch.Len())
	for _, item := range r.batch.Items {
		items = append(items, r.dispatcher.snapshot(item))
	}
	return items
}

func (r *Run) item(id string) (*EmailItem, error) {
	item, ok := r.batch.Item(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item, nil
}

// SetDraft replaces the draft reply of an item. The edit is only allowed
// while the reply has not been sent.
func (r *Run) SetDraft(id, text string) error {
	item, err := r.item(id)
	if err != nil {
		return err
	}
	return r.dispatcher.setDraft(item, text)
}

// Restore marks the actions in state as already done for id, typically
// because an earlier run performed them. They will not be dispatched again.
func (r *Run) Restore(id string, state ActionState) error {
	item, err := r.item(id)
	if err != nil {
		return err
	}
	r.dispatcher.restore(item, state)
	return nil
}

// SendReply sends the item's draft reply in its thread. Interactive policy
// only; a second call for the same item is a no-op.
func (r *Run) SendReply(ctx context.Context, id string) (DispatchResult, error) {
	return r.dispatchItem(ctx, id, ActionReply)
}

// AddEvent adds a calendar event for a meeting item. Interactive policy
// only; a second call for the same item is a no-op.
func (r *Run) AddEvent(ctx context.Context, id string) (DispatchResult, error) {
	return r.dispatchItem(ctx, id, ActionEvent)
}

func (r *Run) dispatchItem(ctx context.Context, id string, action Action) (DispatchResult, error) {
	if err := r.gate.Permit(ScopeItem); err != nil {
		return DispatchResult{ItemID: id, Action: action, Outcome: OutcomeSkipped}, err
	}
	item, err := r.item(id)
	if err != nil {
		return DispatchResult{ItemID: id, Action: action, Outcome: OutcomeSkipped}, err
	}
	res := r.dispatcher.Dispatch(ctx, item, action)
	return res, res.Err
}

// Await suspends the run at the batch gate. onAwait receives the analyzed
// batch and must arrange for Gate().Resolve to be called, either before it
// returns or later from another goroutine. Batch policy only.
func (r *Run) Await(ctx context.Context, onAwait func(*Batch)) (bool, error) {
	approved, err := r.gate.Suspend(ctx, func() {
		r.logger.Info("awaiting batch approval", zap.Int("count", r.batch.Len()))
		if onAwait != nil {
			onAwait(r.batch)
		}
	})
	switch {
	case err != nil:
		r.metrics.RecordDecision("abandoned")
		r.logger.Warn("batch approval abandoned", zap.Error(err))
	case approved:
		r.metrics.RecordDecision("approved")
		r.logger.Info("batch approved")
	default:
		r.metrics.RecordDecision("rejected")
		r.logger.Info("batch rejected")
	}
	return approved, err
}

// Commit performs the side effects of an approved batch: an event for every
// meeting item and, if batch replies are enabled, every draft reply. Items
// are processed in fetch order and a failure does not stop later items.
func (r *Run) Commit(ctx context.Context) ([]DispatchResult, error) {
	if err := r.gate.Permit(ScopeBatch); err != nil {
		return nil, err
	}

	var results []DispatchResult
	for _, item := range r.batch.Items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if item.MeetingFlag {
			results = append(results, r.dispatcher.Dispatch(ctx, item, ActionEvent))
		}
		if r.batchReplies {
			results = append(results, r.dispatcher.Dispatch(ctx, item, ActionReply))
		}
	}
	return results, nil
}
