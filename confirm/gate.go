// Package confirm implements the Confirmation Gate: the three-mode
// (ask/auto/force) synchronous prompt that stands between a destructive
// tool call and its execution.
package confirm

import (
	"context"
	"errors"
	"sync"
)

// Mode is one of the gate's three user-visible states.
type Mode int

const (
	ModeAsk Mode = iota
	ModeAuto
	ModeForce
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeForce:
		return "force"
	default:
		return "ask"
	}
}

// Cycle advances the mode ASK -> AUTO -> FORCE -> ASK, bound to a single
// dedicated key.
func (m Mode) Cycle() Mode {
	switch m {
	case ModeAsk:
		return ModeAuto
	case ModeAuto:
		return ModeForce
	default:
		return ModeAsk
	}
}

// ErrRejected is returned by Confirm when the user declines a call. The loop
// must turn this into a ToolResult{success:false, error:"USER_REJECTED"} and
// feed it back to the model rather than treating it as a fatal error.
var ErrRejected = errors.New("USER_REJECTED")

// Suspendable is paused before a prompt is drawn and resumed after, so that
// a spinner's repaint loop or an escape-key listener's raw-mode ownership
// doesn't corrupt the prompt. A nil Suspendable is a no-op.
type Suspendable interface {
	Pause()
	Resume()
}

// multiSuspend composes several Suspendables so a single Confirm call can
// pause a spinner's repaint loop and an escape-key listener's raw-mode
// ownership together.
type multiSuspend []Suspendable

// Multi returns a Suspendable that pauses/resumes every non-nil entry in
// order. It returns nil (itself a no-op Suspendable value) if every entry is
// nil, so callers can build it unconditionally and still pass it straight
// into Confirm.
func Multi(suspendables ...Suspendable) Suspendable {
	filtered := make(multiSuspend, 0, len(suspendables))
	for _, s := range suspendables {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func (m multiSuspend) Pause() {
	for _, s := range m {
		s.Pause()
	}
}

func (m multiSuspend) Resume() {
	for _, s := range m {
		s.Resume()
	}
}

// Gate mediates confirmation for tools whose descriptor sets
// RequiresConfirmation.
type Gate struct {
	mu   sync.Mutex
	mode Mode
}

// NewGate returns a Gate starting in ASK mode.
func NewGate() *Gate {
	return &Gate{mode: ModeAsk}
}

// Mode returns the gate's current mode.
func (g *Gate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// CycleMode advances the mode and returns the new value.
func (g *Gate) CycleMode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = g.mode.Cycle()
	return g.mode
}

// Reset returns the gate to ASK, e.g. on conversation wipe.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = ModeAsk
}

// Confirm authorizes a single destructive tool call. toolName and preview
// are shown verbatim in the prompt. suspend is paused around the prompt if
// non-nil. Returns nil if authorized, ErrRejected if the user answers N, or
// a context error if ctx is cancelled while waiting on input.
func (g *Gate) Confirm(ctx context.Context, toolName, preview string, suspend Suspendable) error {
	g.mu.Lock()
	mode := g.mode
	g.mu.Unlock()

	if mode == ModeAuto || mode == ModeForce {
		return nil
	}

	if suspend != nil {
		suspend.Pause()
		defer suspend.Resume()
	}

	for {
		key, err := promptKeyFunc(ctx, toolName, preview)
		if err != nil {
			return err
		}
		switch key {
		case 'y', 'Y', '\n', '\r':
			return nil
		case 'n', 'N':
			return ErrRejected
		case 'a', 'A':
			g.mu.Lock()
			g.mode = ModeAuto
			g.mu.Unlock()
			return nil
		case '?':
			printHelp()
			continue
		default:
			continue
		}
	}
}
