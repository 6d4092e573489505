package ui

import (
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Spinner is a live "thinking" indicator that repaints itself on a ticker.
// It implements confirm.Suspendable so the Confirmation Gate can stop it
// before drawing a prompt and restart it afterward without corrupting the
// terminal.
type Spinner struct {
	t       *Terminal
	label   string
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSpinner returns a spinner that is not yet running.
func NewSpinner(t *Terminal, label string) *Spinner {
	return &Spinner{t: t, label: label}
}

// Start begins repainting the spinner until Stop or Pause is called.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(s.stopCh, s.doneCh)
}

func (s *Spinner) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(120 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-stopCh:
			s.t.ClearSpinner()
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			i++
			s.t.ClearSpinner()
			fmt.Print(s.t.c(Gray, fmt.Sprintf("  %s %s", frame, s.label)))
		}
	}
}

// Pause stops repainting without forgetting the label, so Resume can
// restart cleanly. Safe to call on an already-paused spinner.
func (s *Spinner) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.running = false
}

// Resume restarts the spinner after a Pause.
func (s *Spinner) Resume() {
	s.Start()
}

// Stop halts the spinner for good.
func (s *Spinner) Stop() {
	s.Pause()
}
