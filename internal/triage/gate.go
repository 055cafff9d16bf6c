package triage

import (
	"context"
	"fmt"
	"sync"
)

// Policy selects how side effects are approved. One policy is active per run.
type Policy string

const (
	// PolicyInteractive approves each action on each item as the human
	// triggers it. There is no batch-wide commit.
	PolicyInteractive Policy = "interactive"
	// PolicyBatch asks one yes/no question for the whole batch.
	PolicyBatch Policy = "batch"
)

// ParsePolicy validates a policy name. An empty name selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyInteractive:
		return PolicyInteractive, nil
	case PolicyBatch:
		return PolicyBatch, nil
	}
	return "", fmt.Errorf("unknown approval policy %q (want %q or %q)", s, PolicyInteractive, PolicyBatch)
}

// Scope is the granularity of an operation checked against the policy.
type Scope int

const (
	ScopeItem Scope = iota
	ScopeBatch
)

// GateState is the state of a batch approval gate.
type GateState int

const (
	GateIdle GateState = iota
	GateAwaitingApproval
	GateApproved
	GateRejected
	GateAbandoned
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "Idle"
	case GateAwaitingApproval:
		return "AwaitingApproval"
	case GateApproved:
		return "Approved"
	case GateRejected:
		return "Rejected"
	case GateAbandoned:
		return "Abandoned"
	default:
		return "Unknown"
	}
}

// Gate is the suspend point between analysis and side effects. Under the
// batch policy it blocks in AwaitingApproval until exactly one decision
// arrives through Resolve. Front ends (TUI, terminal prompt, scripts) all
// supply the decision through Resolve.
type Gate struct {
	policy Policy

	mu        sync.Mutex
	state     GateState
	decisions chan bool
}

// NewGate returns an idle gate for policy.
func NewGate(policy Policy) *Gate {
	return &Gate{
		policy:    policy,
		decisions: make(chan bool, 1),
	}
}

// Policy returns the gate's policy.
func (g *Gate) Policy() Policy {
	return g.policy
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Permit reports whether an operation of the given scope is allowed now.
func (g *Gate) Permit(scope Scope) error {
	switch {
	case g.policy == PolicyInteractive && scope == ScopeItem:
		return nil
	case g.policy == PolicyBatch && scope == ScopeBatch:
		if g.State() != GateApproved {
			return ErrNotApproved
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPolicyMismatch, g.policy)
}

// Suspend enters AwaitingApproval, calls onAwait (if set) and blocks until a
// decision is delivered or ctx is done. There is no timeout. It returns
// whether the batch was approved.
func (g *Gate) Suspend(ctx context.Context, onAwait func()) (bool, error) {
	if g.policy != PolicyBatch {
		return false, fmt.Errorf("%w: %s", ErrPolicyMismatch, g.policy)
	}

	g.mu.Lock()
	if g.state != GateIdle {
		g.mu.Unlock()
		return false, ErrGateClosed
	}
	g.state = GateAwaitingApproval
	g.mu.Unlock()

	if onAwait != nil {
		onAwait()
	}

	select {
	case approved := <-g.decisions:
		return approved, nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.state == GateAwaitingApproval {
			g.state = GateAbandoned
			return false, ctx.Err()
		}
		// Resolve won the race; its decision stands.
		return <-g.decisions, nil
	}
}

// Resolve delivers the human decision to a suspended gate. It is the only
// valid transition out of AwaitingApproval.
func (g *Gate) Resolve(approve bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GateAwaitingApproval {
		return fmt.Errorf("%w (state %s)", ErrNotAwaiting, g.state)
	}
	if approve {
		g.state = GateApproved
	} else {
		g.state = GateRejected
	}
	g.decisions <- approve
	return nil
}
