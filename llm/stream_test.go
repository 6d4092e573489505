package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestAccumulateStream_TextOnly(t *testing.T) {
	ch := make(chan StreamEvent, 10)
	go func() {
		ch <- StreamEvent{TextDelta: "Hello "}
		ch <- StreamEvent{TextDelta: "world!"}
		ch <- StreamEvent{FinishReason: FinishStop}
		ch <- StreamEvent{Done: true}
		close(ch)
	}()

	var collected strings.Builder
	resp, err := AccumulateStream(ch, func(text string) { collected.WriteString(text) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello world!" {
		t.Errorf("expected 'Hello world!', got %q", resp.Content)
	}
	if collected.String() != "Hello world!" {
		t.Errorf("onText collected %q", collected.String())
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("expected finish reason stop, got %q", resp.FinishReason)
	}
}

func TestAccumulateStream_Usage(t *testing.T) {
	ch := make(chan StreamEvent, 4)
	ch <- StreamEvent{TextDelta: "hi"}
	ch <- StreamEvent{Usage: &TokenUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}}
	ch <- StreamEvent{Done: true}
	close(ch)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("expected total tokens 4, got %d", resp.Usage.TotalTokens)
	}
}

func TestAccumulateStream_PropagatesError(t *testing.T) {
	ch := make(chan StreamEvent, 2)
	boom := errors.New("boom")
	ch <- StreamEvent{Err: boom}
	close(ch)

	_, err := AccumulateStream(ch, nil)
	if err != boom {
		t.Fatalf("expected boom error, got %v", err)
	}
}
