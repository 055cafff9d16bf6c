package triage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyInteractive, false},
		{"interactive", PolicyInteractive, false},
		{"batch", PolicyBatch, false},
		{"auto", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGatePermit(t *testing.T) {
	interactive := NewGate(PolicyInteractive)
	if err := interactive.Permit(ScopeItem); err != nil {
		t.Errorf("interactive item: %v", err)
	}
	if err := interactive.Permit(ScopeBatch); !errors.Is(err, ErrPolicyMismatch) {
		t.Errorf("interactive batch: expected ErrPolicyMismatch, got %v", err)
	}

	batch := NewGate(PolicyBatch)
	if err := batch.Permit(ScopeItem); !errors.Is(err, ErrPolicyMismatch) {
		t.Errorf("batch item: expected ErrPolicyMismatch, got %v", err)
	}
	if err := batch.Permit(ScopeBatch); !errors.Is(err, ErrNotApproved) {
		t.Errorf("batch before approval: expected ErrNotApproved, got %v", err)
	}
}

func TestGateResolveFromAnotherGoroutine(t *testing.T) {
	g := NewGate(PolicyBatch)
	if g.State() != GateIdle {
		t.Fatalf("expected Idle, got %s", g.State())
	}

	ready := make(chan struct{})
	go func() {
		<-ready
		time.Sleep(10 * time.Millisecond)
		if err := g.Resolve(true); err != nil {
			t.Errorf("resolve: %v", err)
		}
	}()

	approved, err := g.Suspend(context.Background(), func() { close(ready) })
	if err != nil || !approved {
		t.Fatalf("expected approval, got %v %v", approved, err)
	}
	if g.State() != GateApproved {
		t.Errorf("expected Approved, got %s", g.State())
	}
	if err := g.Permit(ScopeBatch); err != nil {
		t.Errorf("expected batch permitted after approval: %v", err)
	}
}

func TestGateSingleUse(t *testing.T) {
	g := NewGate(PolicyBatch)

	if err := g.Resolve(true); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("resolve while idle: expected ErrNotAwaiting, got %v", err)
	}

	approved, err := g.Suspend(context.Background(), func() { _ = g.Resolve(false) })
	if err != nil || approved {
		t.Fatalf("expected rejection, got %v %v", approved, err)
	}
	if g.State() != GateRejected {
		t.Errorf("expected Rejected, got %s", g.State())
	}
	if err := g.Resolve(true); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("second resolve: expected ErrNotAwaiting, got %v", err)
	}
	if _, err := g.Suspend(context.Background(), nil); !errors.Is(err, ErrGateClosed) {
		t.Errorf("second suspend: expected ErrGateClosed, got %v", err)
	}
}

func TestGateInteractiveCannotSuspend(t *testing.T) {
	g := NewGate(PolicyInteractive)
	if _, err := g.Suspend(context.Background(), nil); !errors.Is(err, ErrPolicyMismatch) {
		t.Errorf("expected ErrPolicyMismatch, got %v", err)
	}
	if g.State() != GateIdle {
		t.Errorf("expected Idle, got %s", g.State())
	}
}

func TestGateDecisionWinsOverLateCancel(t *testing.T) {
	for _, approve := range []bool{true, false} {
		for i := 0; i < 500; i++ {
			g := NewGate(PolicyBatch)
			ctx, cancel := context.WithCancel(context.Background())

			approved, err := g.Suspend(ctx, func() {
				if err := g.Resolve(approve); err != nil {
					t.Errorf("resolve: %v", err)
				}
				cancel()
			})
			if err != nil {
				t.Fatalf("iteration %d: resolved gate returned %v (state %s)", i, err, g.State())
			}
			if approved != approve {
				t.Fatalf("iteration %d: expected approved=%v, got %v", i, approve, approved)
			}
			want := GateRejected
			if approve {
				want = GateApproved
			}
			if g.State() != want {
				t.Fatalf("iteration %d: expected %s, got %s", i, want, g.State())
			}
		}
	}
}

func TestGateCancelBeforeDecisionAbandons(t *testing.T) {
	g := NewGate(PolicyBatch)
	ctx, cancel := context.WithCancel(context.Background())

	approved, err := g.Suspend(ctx, cancel)
	if !errors.Is(err, context.Canceled) || approved {
		t.Fatalf("expected cancellation, got %v %v", approved, err)
	}
	if g.State() != GateAbandoned {
		t.Errorf("expected Abandoned, got %s", g.State())
	}
	if err := g.Resolve(true); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("resolve after abandon: expected ErrNotAwaiting, got %v", err)
	}
	if err := g.Permit(ScopeBatch); !errors.Is(err, ErrNotApproved) {
		t.Errorf("abandoned batch must not be committed, got %v", err)
	}
}
