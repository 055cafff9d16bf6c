// Package gmail implements the mail gateway on top of the Gmail v1 API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mcao2/inbox-triage/internal/logging"
	"github.com/mcao2/inbox-triage/internal/triage"
)

// UnreadQuery selects the messages offered for triage.
const UnreadQuery = "is:unread"

const me = "me"

// Client wraps the Gmail Users service.
type Client struct {
	svc    *gmail.UsersService
	logger *zap.Logger
	cb     *gobreaker.CircuitBreaker
}

// NewClient creates a Gmail client. Pass option.WithHTTPClient with an
// authorized client, or option.WithTokenSource.
func NewClient(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		svc:    svc.Users,
		logger: logger,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}, nil
}

// ListUnread returns up to limit unread message refs, newest first as the
// API orders them.
func (c *Client) ListUnread(ctx context.Context, limit int) ([]triage.MessageRef, error) {
	var refs []triage.MessageRef
	pageToken := ""
	for len(refs) < limit {
		call := c.svc.Messages.List(me).Q(UnreadQuery).MaxResults(int64(limit - len(refs)))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		err := c.execute("list", func() error {
			var err error
			resp, err = call.Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			refs = append(refs, triage.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// GetMessage fetches headers and snippet of one message.
func (c *Client) GetMessage(ctx context.Context, id string) (*triage.Message, error) {
	var msg *gmail.Message
	err := c.execute("get", func() error {
		var err error
		msg, err = c.svc.Messages.Get(me, id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Message-ID", "References").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	return &triage.Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		MessageID:  HeaderValue(msg, "Message-ID"),
		References: HeaderValue(msg, "References"),
		Subject:    HeaderValue(msg, "Subject"),
		From:       HeaderValue(msg, "From"),
		Snippet:    msg.Snippet,
	}, nil
}

// SendReply sends a plain text reply in the reply's thread.
func (c *Client) SendReply(ctx context.Context, r triage.Reply) error {
	if r.To == "" || r.To == triage.DefaultSender {
		return errors.New("reply has no recipient")
	}

	out := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(BuildRawReply(r))),
		ThreadId: r.ThreadID,
	}
	return c.execute("send", func() error {
		sent, err := c.svc.Messages.Send(me, out).Context(ctx).Do()
		if err == nil {
			c.logger.Debug("reply sent", logging.ItemID(sent.Id), zap.String("thread_id", sent.ThreadId))
		}
		return err
	})
}

// BuildRawReply renders r as an RFC 2822 message. In-Reply-To and
// References are set when the original Message-ID is known.
func BuildRawReply(r triage.Reply) string {
	var b strings.Builder
	b.WriteString("To: ")
	b.WriteString(r.To)
	b.WriteString("\r\n")
	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(r.Subject))
	b.WriteString("\r\n")
	if r.InReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(r.InReplyTo)
		b.WriteString("\r\n")
	}
	if r.References != "" {
		b.WriteString("References: ")
		b.WriteString(r.References)
		b.WriteString("\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	return b.String()
}

// HeaderValue returns the first header with the given name, or "".
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

// encodeRFC2047 encodes non-ASCII header text.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}

// execute runs fn behind the circuit breaker. Client errors do not count
// against the breaker; 401 becomes an AuthError.
func (c *Client) execute(op string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := fn()
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return nil, &nonCircuitError{err: err}
		}
		return nil, err
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}
	if err == nil {
		return nil
	}

	var authErr *triage.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &triage.AuthError{Err: err}
	}
	c.logger.Warn("gmail call failed",
		logging.Operation(op),
		zap.String("breaker", c.cb.State().String()),
		zap.Error(err))
	return &triage.GatewayError{Op: "gmail " + op, Err: err}
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
