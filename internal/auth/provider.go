// Package auth provides the Google OAuth credential used by the mail and
// calendar gateways. The token is cached in memory, refreshed when it
// expires and written back to disk after every refresh.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/mcao2/inbox-triage/internal/logging"
	"github.com/mcao2/inbox-triage/internal/triage"
)

// Scopes requested from the user: read and reply to mail, write events.
var Scopes = []string{
	gmail.GmailModifyScope,
	calendar.CalendarEventsScope,
}

// ErrNoToken means no token file exists yet. Run the auth command first.
var ErrNoToken = errors.New("no stored token, run `inbox-triage auth` first")

// Provider hands out a valid access token. Concurrent callers share one
// cached token and at most one refresh runs at a time.
type Provider struct {
	conf      *oauth2.Config
	tokenPath string
	logger    *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewFileProvider reads the OAuth client from credentialsPath (the JSON file
// downloaded from the Google Cloud console) and keeps the user token at
// tokenPath.
func NewFileProvider(credentialsPath, tokenPath string, opts ...Option) (*Provider, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, &triage.AuthError{Err: fmt.Errorf("failed to read client credentials: %w", err)}
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, &triage.AuthError{Err: fmt.Errorf("invalid client credentials: %w", err)}
	}
	return NewProvider(conf, tokenPath, opts...), nil
}

// NewProvider uses an explicit OAuth config.
func NewProvider(conf *oauth2.Config, tokenPath string, opts ...Option) *Provider {
	p := &Provider{
		conf:      conf,
		tokenPath: tokenPath,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasToken reports whether a token file exists.
func (p *Provider) HasToken() bool {
	_, err := os.Stat(p.tokenPath)
	return err == nil
}

// Token returns a valid access token, refreshing it if needed. Failures are
// returned as *triage.AuthError.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		tok, err := loadToken(p.tokenPath)
		if err != nil {
			return nil, &triage.AuthError{Err: err}
		}
		p.token = tok
	}
	if p.token.Valid() {
		return p.token, nil
	}
	if p.token.RefreshToken == "" {
		return nil, &triage.AuthError{Err: errors.New("token expired and has no refresh token")}
	}

	p.logger.Debug("refreshing access token", logging.Operation("token_refresh"))
	expired := *p.token
	expired.Expiry = time.Unix(1, 0) // force a refresh even if clock skew says otherwise
	fresh, err := p.conf.TokenSource(ctx, &expired).Token()
	if err != nil {
		p.logger.Warn("token refresh failed", logging.Status(logging.StatusError), zap.Error(err))
		return nil, &triage.AuthError{Err: fmt.Errorf("failed to refresh token: %w", err)}
	}
	p.token = fresh

	if err := saveToken(p.tokenPath, fresh); err != nil {
		// The refreshed token is still usable for this run.
		p.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	p.logger.Info("access token refreshed",
		logging.Status(logging.StatusSuccess),
		zap.String("token", logging.SanitizeToken(fresh.AccessToken)),
		zap.Time("expiry", fresh.Expiry))
	return fresh, nil
}

// TokenSource adapts the provider to oauth2.TokenSource for ctx.
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, p: p}
}

// HTTPClient returns a client that authorizes every request.
func (p *Provider) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, p.TokenSource(ctx))
}

type tokenSource struct {
	ctx context.Context
	p   *Provider
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	return s.p.Token(s.ctx)
}

// AuthCodeURL returns the consent page URL.
func (p *Provider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (p *Provider) Exchange(ctx context.Context, code string) error {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return &triage.AuthError{Err: fmt.Errorf("failed to exchange auth code: %w", err)}
	}
	if err := saveToken(p.tokenPath, tok); err != nil {
		return err
	}

	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()
	return nil
}

// legacyToken is the token.json layout written by Google's Python client
// libraries.
type legacyToken struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Expiry       string `json:"expiry"`
}

func (l legacyToken) toToken() oauth2.Token {
	tok := oauth2.Token{AccessToken: l.Token, RefreshToken: l.RefreshToken}
	// Naive timestamps are UTC.
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, l.Expiry); err == nil {
			tok.Expiry = t
			break
		}
	}
	return tok
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if jsonErr := json.Unmarshal(data, &tok); jsonErr != nil || tok.AccessToken == "" {
		var legacy legacyToken
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("invalid token file %s: %w", path, err)
		}
		if legacy.Token != "" || jsonErr != nil {
			tok = legacy.toToken()
		}
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", path)
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
