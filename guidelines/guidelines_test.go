package guidelines

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentichat/agentichat-go/llm"
)

type fakeBackend struct {
	replyContent string
	lastPrompt   string
}

func (f *fakeBackend) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.ChatResponse, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].ContentString()
	}
	return &llm.ChatResponse{Content: f.replyContent, FinishReason: llm.FinishStop}, nil
}
func (f *fakeBackend) ChatStream(ctx context.Context, messages []llm.Message) (<-chan llm.StreamEvent, error) {
	return nil, nil
}
func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeBackend) HealthCheck(ctx context.Context) bool             { return true }
func (f *fakeBackend) SetModel(model string)                           {}
func (f *fakeBackend) Model() string                                    { return "fake-model" }
func (f *fakeBackend) MaxParallelTools() int                            { return 0 }
func (f *fakeBackend) SetMaxParallelTools(n int)                        {}
func (f *fakeBackend) CumulativeUsage() (llm.TokenUsage, int)           { return llm.TokenUsage{}, 0 }
func (f *fakeBackend) ResetUsage()                                      {}

func newTestPipeline(t *testing.T) (*Pipeline, string, string) {
	t.Helper()
	workspace := t.TempDir()
	dataDir := filepath.Join(workspace, ".agentichat")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	return New(workspace, dataDir, nil), workspace, dataDir
}

func TestHasSourceFalseWhenMissing(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if p.HasSource() {
		t.Error("expected HasSource=false with no file")
	}
}

func TestHasSourceFalseWhenEmpty(t *testing.T) {
	p, workspace, _ := newTestPipeline(t)
	os.WriteFile(filepath.Join(workspace, SourceFileName), []byte("   \n\n  "), 0o644)
	if p.HasSource() {
		t.Error("expected HasSource=false for whitespace-only file")
	}
}

func TestHasSourceTrueForMarkdown(t *testing.T) {
	p, workspace, _ := newTestPipeline(t)
	os.WriteFile(filepath.Join(workspace, SourceFileName), []byte("# Project Rules\n\nUse tabs.\n"), 0o644)
	if !p.HasSource() {
		t.Error("expected HasSource=true for well-formed markdown")
	}
}

func TestNeedsCompileLifecycle(t *testing.T) {
	p, workspace, _ := newTestPipeline(t)
	srcPath := filepath.Join(workspace, SourceFileName)

	if p.NeedsCompile() {
		t.Fatal("expected NeedsCompile=false with no source")
	}

	os.WriteFile(srcPath, []byte("# Rules\n\nDo the thing.\n"), 0o644)
	if !p.NeedsCompile() {
		t.Fatal("expected NeedsCompile=true: source exists, no compiled form")
	}

	backend := &fakeBackend{replyContent: "Compiled: do the thing."}
	if err := p.Compile(context.Background(), backend); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.NeedsCompile() {
		t.Fatal("expected NeedsCompile=false right after compiling")
	}

	// Touch the source so its mtime is strictly newer than the compiled form.
	time.Sleep(10 * time.Millisecond)
	newer := time.Now().Add(time.Hour)
	os.Chtimes(srcPath, newer, newer)
	if !p.NeedsCompile() {
		t.Fatal("expected NeedsCompile=true after source mtime advances past compiled form")
	}
}

func TestCompileUsesHeadingOutline(t *testing.T) {
	p, workspace, _ := newTestPipeline(t)
	os.WriteFile(filepath.Join(workspace, SourceFileName), []byte("# Build\n\n## Testing\n\nUse table-driven tests.\n"), 0o644)

	backend := &fakeBackend{replyContent: "Use table-driven tests."}
	if err := p.Compile(context.Background(), backend); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(backend.lastPrompt, "Build > Testing") {
		t.Errorf("expected prompt to include heading outline, got %q", backend.lastPrompt)
	}
}

func TestSystemMessageDelimiters(t *testing.T) {
	p, _, dataDir := newTestPipeline(t)
	os.WriteFile(filepath.Join(dataDir, CompiledFileName), []byte("Keep functions small."), 0o644)

	msg, err := p.SystemMessage()
	if err != nil {
		t.Fatalf("SystemMessage: %v", err)
	}
	if msg.Role != "system" {
		t.Errorf("expected role=system, got %q", msg.Role)
	}
	if !strings.Contains(msg.ContentString(), beginDelim) || !strings.Contains(msg.ContentString(), endDelim) {
		t.Errorf("expected delimiters in message, got %q", msg.ContentString())
	}
}

func TestInjectIsIdempotent(t *testing.T) {
	p, _, dataDir := newTestPipeline(t)
	os.WriteFile(filepath.Join(dataDir, CompiledFileName), []byte("Keep functions small."), 0o644)

	transcript := []llm.Message{llm.TextMessage("user", "hello")}

	once, err := p.Inject(transcript)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	twice, err := p.Inject(once)
	if err != nil {
		t.Fatalf("Inject (second): %v", err)
	}

	if len(twice) != len(once) {
		t.Fatalf("expected idempotent length, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Role != twice[i].Role || once[i].ContentString() != twice[i].ContentString() {
			t.Errorf("message %d diverged between single and double inject", i)
		}
	}
}

