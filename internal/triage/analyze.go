package triage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcao2/inbox-triage/internal/logging"
)

// Analyze fills every item's judgment with one engine call per item. Engine
// and parse failures are absorbed into FallbackJudgment; only cancellation of
// ctx is returned. The batch is complete when Analyze returns.
func (p *Pipeline) Analyze(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	logger := p.logger.With(logging.RunID(batch.RunID), logging.Operation("analyze"))

	judgments := make([]Judgment, len(batch.Items))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, item := range batch.Items {
		g.Go(func() error {
			judgments[i] = p.judge(ctx, logger, item)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, item := range batch.Items {
		item.apply(judgments[i])
	}
	return nil
}

// judge never fails: any problem yields the fallback judgment.
func (p *Pipeline) judge(ctx context.Context, logger *zap.Logger, item *EmailItem) Judgment {
	logger = logger.With(logging.ItemID(item.ID))

	start := time.Now()
	raw, err := p.engine.Complete(ctx, BuildPrompt(item))
	elapsed := time.Since(start)
	if err != nil {
		logger.Warn("analysis engine failed, using fallback", zap.Error(err))
		p.metrics.RecordAnalysis(string(AnalysisFallback), elapsed)
		return FallbackJudgment()
	}

	j, err := TryParseJudgment(raw)
	if err != nil {
		logger.Warn("unparseable analysis, using fallback", zap.Error(err), zap.Int("response_len", len(raw)))
		p.metrics.RecordAnalysis(string(AnalysisFallback), elapsed)
		return FallbackJudgment()
	}

	logger.Debug("analyzed",
		zap.String("category", string(j.Category)),
		zap.String("priority", string(j.Priority)),
		zap.Bool("meeting", j.MeetingFlag),
		zap.String("analysis", string(j.Analysis)))
	p.metrics.RecordAnalysis(string(j.Analysis), elapsed)
	return j
}
