package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/mcao2/inbox-triage/internal/triage"
)

// EditForm edits the draft reply of one item using Huh
type EditForm struct {
	form   *huh.Form
	itemID string
	result *EditResult
}

// EditResult contains the edited values
type EditResult struct {
	Draft string
}

// NewEditForm creates a draft editor prefilled with item's current draft.
func NewEditForm(item *triage.EmailItem) *EditForm {
	result := &EditResult{Draft: item.DraftReply}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Reply to " + senderName(item.Sender)).
				Description(triage.ReplySubject(item.Subject)).
				CharLimit(4000).
				Lines(8).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("reply cannot be empty")
					}
					return nil
				}).
				Value(&result.Draft),
		),
	).WithShowHelp(true)

	return &EditForm{
		form:   form,
		itemID: item.ID,
		result: result,
	}
}

// GetForm returns the underlying Huh form for Bubble Tea integration
func (ef *EditForm) GetForm() *huh.Form {
	return ef.form
}

// ItemID is the item being edited.
func (ef *EditForm) ItemID() string {
	return ef.itemID
}

// Result returns the edited draft.
func (ef *EditForm) Result() EditResult {
	return *ef.result
}

// ApplyResult stores the edited draft on the run. It fails once the reply
// has been sent.
func (ef *EditForm) ApplyResult(run *triage.Run) error {
	return run.SetDraft(ef.itemID, ef.result.Draft)
}
