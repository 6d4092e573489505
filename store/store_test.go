package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentichat/agentichat-go/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestCreateAndListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-1", Backend: "openai-compat", Model: "gpt-test", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	list, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 || list[0].ID != "sess-1" {
		t.Fatalf("expected one session 'sess-1', got %+v", list)
	}
}

func TestAppendAndLoadMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-2", Backend: "local-runtime", Model: "llama-test", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msgs := []llm.Message{
		llm.TextMessage("system", "you are a coding assistant"),
		llm.TextMessage("user", "list the files here"),
		llm.AssistantMessage(nil, []llm.ToolCall{
			{ID: "call-1", Name: "list_files", Arguments: map[string]any{"path": "."}},
		}),
		llm.ToolResultMessage("call-1", "main.go\ngo.mod"),
	}
	tokenCounts := []int{12, 5, 8, 4}

	if err := s.AppendMessages(ctx, sess.ID, msgs, tokenCounts); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	loaded, err := s.LoadSessionMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadSessionMessages: %v", err)
	}
	if len(loaded) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(loaded))
	}
	for i, m := range msgs {
		got := loaded[i]
		if got.Role != m.Role {
			t.Errorf("message %d: role mismatch: want %q got %q", i, m.Role, got.Role)
		}
		if got.ContentString() != m.ContentString() {
			t.Errorf("message %d: content mismatch: want %q got %q", i, m.ContentString(), got.ContentString())
		}
		if got.ToolCallID != m.ToolCallID {
			t.Errorf("message %d: tool_call_id mismatch: want %q got %q", i, m.ToolCallID, got.ToolCallID)
		}
		if len(got.ToolCalls) != len(m.ToolCalls) {
			t.Errorf("message %d: tool_calls length mismatch: want %d got %d", i, len(m.ToolCalls), len(got.ToolCalls))
			continue
		}
		for j, tc := range m.ToolCalls {
			if got.ToolCalls[j].Name != tc.Name || got.ToolCalls[j].ID != tc.ID {
				t.Errorf("message %d tool_call %d: mismatch: want %+v got %+v", i, j, tc, got.ToolCalls[j])
			}
		}
	}

	count, err := s.MessageCount(ctx, sess.ID)
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != len(msgs) {
		t.Errorf("expected MessageCount=%d, got %d", len(msgs), count)
	}
}

func TestRecordCompression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-3", Backend: "openai-compat", Model: "gpt-test", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := CompressionRecord{
		SessionID:       sess.ID,
		OriginalCount:   40,
		CompressedCount: 5,
		Summary:         "the user refactored the sandbox package and added glob tests",
	}
	if err := s.RecordCompression(ctx, rec); err != nil {
		t.Fatalf("RecordCompression: %v", err)
	}
}

func TestTouchSessionUpdatesModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-4", Backend: "openai-compat", Model: "gpt-old", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.TouchSession(ctx, sess.ID, "gpt-new", now.Add(time.Minute)); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	list, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 || list[0].Model != "gpt-new" {
		t.Fatalf("expected model updated to gpt-new, got %+v", list)
	}
}

func TestSessionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-5", Backend: "openai-compat", Model: "gpt-test", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msgs := []llm.Message{
		llm.TextMessage("user", "hi"),
		llm.TextMessage("assistant", "hello"),
		llm.ToolResultMessage("call-1", "ok"),
	}
	if err := s.AppendMessages(ctx, sess.ID, msgs, []int{2, 3, 1}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	if err := s.RecordCompression(ctx, CompressionRecord{SessionID: sess.ID, OriginalCount: 10, CompressedCount: 3, Summary: "s"}); err != nil {
		t.Fatalf("RecordCompression: %v", err)
	}

	stats, err := s.SessionStats(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.UserMessages != 1 || stats.AssistantMessages != 1 || stats.ToolMessages != 1 {
		t.Fatalf("unexpected message breakdown: %+v", stats)
	}
	if stats.TotalTokens != 6 {
		t.Fatalf("expected TotalTokens=6, got %d", stats.TotalTokens)
	}
	if stats.CompressionCount != 1 {
		t.Fatalf("expected CompressionCount=1, got %d", stats.CompressionCount)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := Session{ID: "sess-6", Backend: "openai-compat", Model: "gpt-test", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.AppendMessages(ctx, sess.ID, []llm.Message{llm.TextMessage("user", "hi")}, []int{1}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	list, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions after delete, got %+v", list)
	}
	count, err := s.MessageCount(ctx, sess.ID)
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 messages after delete, got %d", count)
	}
}
