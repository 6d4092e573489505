package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/agentichat/agentichat-go/llm"
)

func TestCompressRefusesShortTranscript(t *testing.T) {
	backend := &fakeBackend{model: "test-model"}
	a := newTestAgent(t, backend)
	a.Messages = []llm.Message{
		llm.TextMessage("user", "hi"),
		llm.TextMessage("assistant", "hello"),
	}

	if err := a.Compress(context.Background()); err == nil {
		t.Fatalf("expected Compress to refuse a transcript shorter than 4 messages")
	}
}

func TestCompressSplicesSummaryAndKeepsTail(t *testing.T) {
	backend := &fakeBackend{
		model:     "test-model",
		responses: []*llm.ChatResponse{textResponse("the user asked about X, assistant explained Y")},
	}
	a := newTestAgent(t, backend)
	a.Compression.AutoKeep = 2
	a.Messages = []llm.Message{
		llm.TextMessage("user", "first question"),
		llm.TextMessage("assistant", "first answer"),
		llm.TextMessage("user", "second question"),
		llm.TextMessage("assistant", "second answer"),
		llm.TextMessage("user", "third question"),
		llm.TextMessage("assistant", "third answer"),
	}
	a.persistedCount = len(a.Messages)

	if err := a.Compress(context.Background()); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	if len(a.Messages) != 3 {
		t.Fatalf("expected summary + 2 kept messages = 3, got %d: %+v", len(a.Messages), a.Messages)
	}
	if a.Messages[0].Role != "system" {
		t.Fatalf("expected first message to be the summary system message, got role %q", a.Messages[0].Role)
	}
	if !strings.Contains(a.Messages[0].ContentString(), summaryBeginDelim) ||
		!strings.Contains(a.Messages[0].ContentString(), summaryEndDelim) {
		t.Errorf("summary message missing delimiters: %q", a.Messages[0].ContentString())
	}
	if a.Messages[1].ContentString() != "third question" || a.Messages[2].ContentString() != "third answer" {
		t.Errorf("expected the last 2 messages to survive verbatim, got %+v", a.Messages[1:])
	}
}

func TestCompressRejectsEmptySummary(t *testing.T) {
	backend := &fakeBackend{model: "test-model", responses: []*llm.ChatResponse{textResponse("   ")}}
	a := newTestAgent(t, backend)
	a.Compression.AutoKeep = 1
	a.Messages = []llm.Message{
		llm.TextMessage("user", "a"), llm.TextMessage("assistant", "b"),
		llm.TextMessage("user", "c"), llm.TextMessage("assistant", "d"),
	}
	a.persistedCount = len(a.Messages)

	if err := a.Compress(context.Background()); err == nil {
		t.Fatalf("expected Compress to reject an empty summary")
	}
}

func TestRenderPrefixRoleLabels(t *testing.T) {
	rendered := renderPrefix([]llm.Message{
		llm.TextMessage("user", "hi"),
		llm.TextMessage("assistant", "hello"),
		llm.TextMessage("tool", "result"),
	})
	if !strings.Contains(rendered, "User: hi\n") {
		t.Errorf("expected a 'User: hi' line, got %q", rendered)
	}
	if !strings.Contains(rendered, "Assistant: hello\n") {
		t.Errorf("expected an 'Assistant: hello' line, got %q", rendered)
	}
	if !strings.Contains(rendered, "Tool: result\n") {
		t.Errorf("expected other roles capitalized, got %q", rendered)
	}
}
