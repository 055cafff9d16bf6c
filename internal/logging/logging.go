// Package logging builds the application's zap logger and keeps log field
// names consistent across packages.
//
// The TUI owns the terminal, so logs go to a file. Sender addresses are
// hashed and tokens are never logged in clear.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Common log field keys.
const (
	KeyRunID     = "run_id"
	KeyItemID    = "item_id"
	KeyOperation = "operation"
	KeyAction    = "action"
	KeyStatus    = "status"
	KeySender    = "sender_hash"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a JSON logger appending to path. An empty path yields a no-op
// logger.
func New(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// RunID returns a field for the triage run id.
func RunID(id string) zap.Field {
	return zap.String(KeyRunID, id)
}

// ItemID returns a field for a message id.
func ItemID(id string) zap.Field {
	return zap.String(KeyItemID, id)
}

// Operation returns a field for the operation name.
func Operation(op string) zap.Field {
	return zap.String(KeyOperation, op)
}

// Action returns a field for a dispatch action.
func Action(action string) zap.Field {
	return zap.String(KeyAction, action)
}

// Status returns a field for the status.
func Status(status string) zap.Field {
	return zap.String(KeyStatus, status)
}

// Sender returns a field with the anonymized sender address.
func Sender(from string) zap.Field {
	return zap.String(KeySender, AnonymizeEmail(from))
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

// SanitizeToken returns a length indicator without exposing token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
