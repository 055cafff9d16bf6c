package triage

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLimit   = errors.New("limit must be positive")
	ErrItemNotFound   = errors.New("item not found in batch")
	ErrNoMeeting      = errors.New("item has no meeting to schedule")
	ErrReplySent      = errors.New("reply already sent")
	ErrPolicyMismatch = errors.New("operation not allowed by approval policy")
	ErrNotAwaiting    = errors.New("gate is not awaiting approval")
	ErrGateClosed     = errors.New("gate already used for this run")
	ErrNotApproved    = errors.New("batch has not been approved")
)

// AuthError means no valid credential could be obtained. It is fatal to a run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authorization failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError is a single failed provider call.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// ParseError is returned by TryParseJudgment. The analysis stage never
// surfaces it; it always falls back.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse judgment: %s: %v", e.Reason, e.Err)
	}
	return "parse judgment: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// DispatchError reports a failed side effect for one item.
type DispatchError struct {
	ItemID string
	Action Action
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Action, e.ItemID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// gatewayErr wraps err as a GatewayError unless it already carries an
// AuthError or GatewayError.
func gatewayErr(op string, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}
