package triage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mcao2/inbox-triage/internal/logging"
)

// Header defaults for messages missing Subject or From.
const (
	DefaultSubject = "No Subject"
	DefaultSender  = "Unknown"
)

// Fetch lists up to limit unread messages and retrieves headers and snippet
// for each, preserving provider order. Any gateway failure aborts the fetch.
func (p *Pipeline) Fetch(ctx context.Context, limit int) (*Batch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	batch := &Batch{
		RunID:     p.newRunID(),
		FetchedAt: p.now(),
	}
	logger := p.logger.With(logging.RunID(batch.RunID), logging.Operation("fetch"))

	refs, err := p.mail.ListUnread(ctx, limit)
	if err != nil {
		logger.Error("list unread failed", zap.Error(err))
		return nil, gatewayErr("list unread", err)
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}

	batch.Items = make([]*EmailItem, 0, len(refs))
	for _, ref := range refs {
		msg, err := p.mail.GetMessage(ctx, ref.ID)
		if err != nil {
			logger.Error("get message failed", logging.ItemID(ref.ID), zap.Error(err))
			return nil, gatewayErr("get message "+ref.ID, err)
		}
		batch.Items = append(batch.Items, newItem(ref, msg))
	}

	p.metrics.AddFetched(len(batch.Items))
	logger.Info("fetched unread messages", zap.Int("count", len(batch.Items)))
	return batch, nil
}

func newItem(ref MessageRef, msg *Message) *EmailItem {
	item := &EmailItem{
		ID:       ref.ID,
		ThreadID: ref.ThreadID,
		Subject:  DefaultSubject,
		Sender:   DefaultSender,
	}
	if msg == nil {
		return item
	}
	if msg.ThreadID != "" {
		item.ThreadID = msg.ThreadID
	}
	if s := strings.TrimSpace(msg.Subject); s != "" {
		item.Subject = s
	}
	if f := strings.TrimSpace(msg.From); f != "" {
		item.Sender = f
	}
	item.MessageID = strings.TrimSpace(msg.MessageID)
	item.References = strings.TrimSpace(msg.References)
	item.Snippet = msg.Snippet
	return item
}
