package triage

import "context"

// MailGateway is the mail provider as seen by the pipeline.
type MailGateway interface {
	ListUnread(ctx context.Context, limit int) ([]MessageRef, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	SendReply(ctx context.Context, reply Reply) error
}

// CalendarGateway inserts events into the user's calendar.
type CalendarGateway interface {
	InsertEvent(ctx context.Context, event Event) error
}

// Engine turns a prompt into raw model text. The output has no guaranteed
// schema.
type Engine interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
