package confirm

import (
	"context"
	"testing"
)

type fakeSuspend struct {
	paused, resumed int
}

func (f *fakeSuspend) Pause()  { f.paused++ }
func (f *fakeSuspend) Resume() { f.resumed++ }

func withFakeKey(t *testing.T, keys ...byte) {
	t.Helper()
	i := 0
	orig := promptKeyFunc
	promptKeyFunc = func(ctx context.Context, toolName, preview string) (byte, error) {
		if i >= len(keys) {
			t.Fatalf("ran out of fake keys")
		}
		k := keys[i]
		i++
		return k, nil
	}
	t.Cleanup(func() { promptKeyFunc = orig })
}

func TestModeCycle(t *testing.T) {
	g := NewGate()
	if g.Mode() != ModeAsk {
		t.Fatalf("expected initial mode ASK, got %v", g.Mode())
	}
	if g.CycleMode() != ModeAuto {
		t.Fatalf("expected AUTO after first cycle")
	}
	if g.CycleMode() != ModeForce {
		t.Fatalf("expected FORCE after second cycle")
	}
	if g.CycleMode() != ModeAsk {
		t.Fatalf("expected ASK after third cycle")
	}
}

func TestConfirmForceSkipsPrompt(t *testing.T) {
	g := NewGate()
	g.CycleMode()
	g.CycleMode() // now FORCE
	s := &fakeSuspend{}
	if err := g.Confirm(context.Background(), "delete_file", "rm foo", s); err != nil {
		t.Fatalf("expected FORCE to authorize without prompting, got %v", err)
	}
	if s.paused != 0 {
		t.Fatalf("expected no suspend in FORCE mode")
	}
}

func TestConfirmAskAcceptsY(t *testing.T) {
	withFakeKey(t, 'y')
	g := NewGate()
	s := &fakeSuspend{}
	if err := g.Confirm(context.Background(), "delete_file", "rm foo", s); err != nil {
		t.Fatalf("expected y to authorize, got %v", err)
	}
	if s.paused != 1 || s.resumed != 1 {
		t.Fatalf("expected suspend paused and resumed exactly once, got %+v", s)
	}
}

func TestConfirmAskRejectsN(t *testing.T) {
	withFakeKey(t, 'n')
	g := NewGate()
	err := g.Confirm(context.Background(), "delete_file", "rm foo", nil)
	if err != ErrRejected {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestConfirmAAcceptsAndSwitchesToAuto(t *testing.T) {
	withFakeKey(t, 'a')
	g := NewGate()
	if err := g.Confirm(context.Background(), "delete_file", "rm foo", nil); err != nil {
		t.Fatalf("expected a to authorize, got %v", err)
	}
	if g.Mode() != ModeAuto {
		t.Fatalf("expected mode AUTO after answering a, got %v", g.Mode())
	}
	// subsequent calls in AUTO must not block on further input
	if err := g.Confirm(context.Background(), "delete_file", "rm bar", nil); err != nil {
		t.Fatalf("expected AUTO mode to authorize silently, got %v", err)
	}
}

func TestConfirmHelpThenAccept(t *testing.T) {
	withFakeKey(t, '?', 'y')
	g := NewGate()
	if err := g.Confirm(context.Background(), "delete_file", "rm foo", nil); err != nil {
		t.Fatalf("expected help then y to authorize, got %v", err)
	}
}

func TestReset(t *testing.T) {
	g := NewGate()
	g.CycleMode()
	g.Reset()
	if g.Mode() != ModeAsk {
		t.Fatalf("expected reset to return to ASK, got %v", g.Mode())
	}
}
