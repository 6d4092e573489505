package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentichat/agentichat-go/confirm"
	"github.com/agentichat/agentichat-go/guidelines"
	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/ui"
)

// runTurn drives one user message through the Agentic Loop,
// showing a spinner for the duration and an Esc-to-cancel listener that the
// Confirmation Gate pauses around its own prompts.
func runTurn(ctx context.Context, sess *session, input string) error {
	opCtx, listener, escErr := sess.term.StartEscapeListener(ctx)
	if escErr != nil {
		opCtx = ctx
	}
	if listener != nil {
		defer listener.Stop()
	}

	spinner := ui.NewSpinner(sess.term, "thinking")
	sess.ag.Suspend = confirm.Multi(spinner, listener)
	spinner.Start()

	reply, err := sess.ag.Run(opCtx, input)

	spinner.Stop()
	sess.ag.Suspend = nil

	if err != nil {
		if errors.Is(err, context.Canceled) || opCtx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	fmt.Println(reply)
	fmt.Println()
	return nil
}

// offerGuidelinesConfirm applies the guidelines load_mode policy that needs a user prompt: "confirm" asks once at startup, "auto" and
// "off" are handled entirely inside agent.PrepareGuidelines.
func offerGuidelinesConfirm(ctx context.Context, sess *session) error {
	mode := guidelines.LoadMode(sess.cfg.Guidelines.LoadMode)
	if err := sess.ag.PrepareGuidelines(ctx, mode); err != nil {
		return err
	}
	if mode != guidelines.LoadConfirm || sess.ag.Guidelines == nil || !sess.ag.Guidelines.HasSource() {
		return nil
	}

	answer, err := sess.term.ReadLine(fmt.Sprintf("Found %s. Compile it into the system prompt? [y/N] ", guidelines.SourceFileName))
	if err != nil {
		return nil
	}
	if !isYes(answer) {
		return nil
	}
	return sess.ag.CompileAndInjectGuidelines(ctx)
}

// maybeOfferResumeFile offers to reload the last cross-run transcript from
// conversation.json into the freshly-started session.
func maybeOfferResumeFile(sess *session) {
	probe := sess.ag
	if err := probe.LoadResumeFile(sess.dataDir); err != nil {
		return
	}
	n := len(probe.Messages)
	if n == 0 {
		return
	}
	answer, err := sess.term.ReadLine(fmt.Sprintf("Found a saved conversation (%d messages). Resume it? [y/N] ", n))
	if err != nil || !isYes(answer) {
		// LoadResumeFile already overwrote sess.ag's transcript; undo by
		// starting a fresh session if the user declines.
		_ = sess.ag.StartSession(context.Background(), sess.backendCfg.Model)
		return
	}
	sess.term.PrintSessionResumed(n, firstUserPreview(probe.Messages))
}

func firstUserPreview(messages []llm.Message) string {
	for _, m := range messages {
		if m.Role == "user" && m.ContentString() != "" {
			return m.ContentString()
		}
	}
	return ""
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}
