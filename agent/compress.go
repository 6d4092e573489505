package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/store"
)

const (
	summaryBeginDelim = "[Summary of prior conversation]"
	summaryEndDelim   = "[End of summary]"
)

// Compress implements the Compression Routine: summarize
// everything except the last Compression.AutoKeep messages, splice the
// summary back in as a system message, and record a compression event.
// Refuses to run on a transcript shorter than 4 messages.
func (a *Agent) Compress(ctx context.Context) error {
	if len(a.Messages) < 4 {
		return fmt.Errorf("compress: need at least 4 messages, have %d", len(a.Messages))
	}

	keep := a.Compression.AutoKeep
	if keep < 0 {
		keep = 0
	}
	if keep > len(a.Messages) {
		keep = len(a.Messages)
	}
	prefix := a.Messages[:len(a.Messages)-keep]
	tail := a.Messages[len(a.Messages)-keep:]
	if len(prefix) == 0 {
		return fmt.Errorf("compress: nothing to summarize after keeping %d messages", keep)
	}

	prompt := "Summarize the conversation below concisely but completely, preserving " +
		"the points, decisions, and context a continuation would need.\n\n" + renderPrefix(prefix)

	resp, err := a.Backend.Chat(ctx, []llm.Message{llm.TextMessage("user", prompt)}, nil)
	if err != nil {
		return fmt.Errorf("compress: summarize: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return fmt.Errorf("compress: model returned an empty summary")
	}

	summaryMsg := llm.TextMessage("system", summaryBeginDelim+"\n"+summary+"\n"+summaryEndDelim)
	if err := a.Store.AppendMessages(ctx, a.SessionID, []llm.Message{summaryMsg}, []int{estimateMessageTokens(summaryMsg)}); err != nil {
		return fmt.Errorf("compress: persist summary: %w", err)
	}

	originalCount := len(a.Messages)
	a.Messages = append([]llm.Message{summaryMsg}, tail...)
	a.persistedCount = len(a.Messages)

	a.injectGuidelinesIfCompiled()

	if err := a.Store.RecordCompression(ctx, store.CompressionRecord{
		SessionID:       a.SessionID,
		OriginalCount:   originalCount,
		CompressedCount: len(a.Messages),
		Summary:         summary,
		CreatedAt:       time.Now(),
	}); err != nil {
		a.log.Warn().Err(err).Msg("record compression event")
	}

	a.log.Info().Int("original", originalCount).Int("compressed", len(a.Messages)).Msg("compressed conversation")
	return nil
}

// renderPrefix renders messages as literal "Role: content" lines for the
// summarization prompt.
func renderPrefix(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", roleLabel(m.Role), m.ContentString())
	}
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	default:
		return capitalize(role)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
