package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Authorize runs the one-time consent flow in a terminal. It prints the
// consent URL to out and reads either the code or the full redirect URL
// from in.
func (p *Provider) Authorize(ctx context.Context, in io.Reader, out io.Writer) error {
	state, err := newState()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Open this URL in your browser and grant access:\n\n  %s\n\n", p.AuthCodeURL(state))
	fmt.Fprint(out, "Paste the code (or the full URL you were redirected to): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read auth code: %w", err)
	}
	code, err := parseCode(strings.TrimSpace(line), state)
	if err != nil {
		return err
	}

	if err := p.Exchange(ctx, code); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", p.tokenPath)
	return nil
}

// parseCode accepts a bare code or a redirect URL carrying code and state.
func parseCode(input, state string) (string, error) {
	if input == "" {
		return "", errors.New("no auth code entered")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
