package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/mcao2/inbox-triage/internal/report"
	"github.com/mcao2/inbox-triage/internal/triage"
)

// BatchForm asks once whether the whole analyzed batch may be acted on.
type BatchForm struct {
	form   *huh.Form
	result *BatchResult
}

type BatchResult struct {
	Approved bool
}

func NewBatchForm(batch *triage.Batch, sendReplies bool) *BatchForm {
	result := &BatchResult{}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Do you approve these actions?").
				Description(batchSummary(batch, sendReplies)).
				Affirmative("Yes").
				Negative("No").
				Value(&result.Approved),
		),
	)

	return &BatchForm{
		form:   form,
		result: result,
	}
}

// Run shows the form on the terminal. Aborting counts as a rejection.
func (bf *BatchForm) Run() (*BatchResult, error) {
	err := bf.form.Run()
	if errors.Is(err, huh.ErrUserAborted) {
		bf.result.Approved = false
		return bf.result, nil
	}
	if err != nil {
		return nil, err
	}
	return bf.result, nil
}

// batchSummary says which side effects an approval triggers.
func batchSummary(batch *triage.Batch, sendReplies bool) string {
	meetings := 0
	for _, it := range batch.Items {
		if it.MeetingFlag {
			meetings++
		}
	}
	if sendReplies {
		return fmt.Sprintf("%d calendar event(s) will be added and %d reply(ies) sent.", meetings, batch.Len())
	}
	return fmt.Sprintf("%d calendar event(s) will be added.", meetings)
}

// Asker obtains the approval decision for a batch.
type Asker func(batch *triage.Batch) (bool, error)

// FormAsker asks through a BatchForm on the terminal.
func FormAsker(sendReplies bool) Asker {
	return func(batch *triage.Batch) (bool, error) {
		res, err := NewBatchForm(batch, sendReplies).Run()
		if err != nil {
			return false, err
		}
		return res.Approved, nil
	}
}

// BatchOutcome is what a batch review did.
type BatchOutcome struct {
	Approved bool
	Results  []triage.DispatchResult
	Failed   int
}

// ReviewBatch prints the batch summary, suspends the run at its gate until
// ask answers, and commits the batch when approved.
func ReviewBatch(ctx context.Context, run *triage.Run, out io.Writer, ask Asker) (BatchOutcome, error) {
	var askErr error
	approved, err := run.Await(ctx, func(batch *triage.Batch) {
		fmt.Fprintln(out, "--- ANALYSIS REPORT ---")
		fmt.Fprint(out, report.Build(batch.RunID, run.Snapshot(), batch.FetchedAt).Text())

		decision, err := ask(batch)
		if err != nil {
			askErr = err
			decision = false
		}
		if err := run.Gate().Resolve(decision); err != nil && askErr == nil {
			askErr = err
		}
	})
	if err != nil {
		return BatchOutcome{}, err
	}
	if askErr != nil {
		return BatchOutcome{}, askErr
	}

	if !approved {
		fmt.Fprintln(out, "--- ACTIONS REJECTED BY USER ---")
		return BatchOutcome{}, nil
	}

	results, err := run.Commit(ctx)
	outcome := BatchOutcome{Approved: true, Results: results}
	for _, r := range results {
		switch r.Outcome {
		case triage.OutcomeDone:
			fmt.Fprintf(out, "✓ %s %s\n", r.Action, r.ItemID)
		case triage.OutcomeFailed, triage.OutcomeSkipped:
			outcome.Failed++
			fmt.Fprintf(out, "✗ %s %s: %v\n", r.Action, r.ItemID, r.Err)
		}
	}
	return outcome, err
}
