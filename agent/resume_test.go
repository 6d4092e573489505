package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentichat/agentichat-go/llm"
)

func TestSaveAndLoadResumeFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := &Agent{
		SessionID:   "sess-resume",
		BackendName: "openai-compat",
		Messages: []llm.Message{
			llm.TextMessage("system", "preamble"),
			llm.TextMessage("user", "hello"),
		},
	}

	if err := a.SaveResumeFile(dir); err != nil {
		t.Fatalf("SaveResumeFile: %v", err)
	}

	loaded := &Agent{}
	if err := loaded.LoadResumeFile(dir); err != nil {
		t.Fatalf("LoadResumeFile: %v", err)
	}
	if loaded.SessionID != a.SessionID {
		t.Errorf("session id mismatch: want %q got %q", a.SessionID, loaded.SessionID)
	}
	if len(loaded.Messages) != len(a.Messages) {
		t.Fatalf("expected %d messages, got %d", len(a.Messages), len(loaded.Messages))
	}
	for i, m := range a.Messages {
		if loaded.Messages[i].ContentString() != m.ContentString() {
			t.Errorf("message %d content mismatch: want %q got %q", i, m.ContentString(), loaded.Messages[i].ContentString())
		}
	}
}

func TestLoadResumeFileRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	future := resumeFile{SchemaVersion: resumeSchemaVersion + 1, SessionID: "future"}
	payload, err := json.Marshal(future)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conversation.json"), payload, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	a := &Agent{}
	if err := a.LoadResumeFile(dir); err != ErrIncompatibleResume {
		t.Fatalf("expected ErrIncompatibleResume, got %v", err)
	}
}

func TestLoadResumeFileMissingIsNotExist(t *testing.T) {
	dir := t.TempDir()
	a := &Agent{}
	err := a.LoadResumeFile(dir)
	if !os.IsNotExist(err) {
		t.Fatalf("expected IsNotExist error, got %v", err)
	}
}
