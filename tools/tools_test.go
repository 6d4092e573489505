package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "hello.go"), []byte("package main\n\nfunc main() {}\n"), 0o644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "nested.go"), []byte("package sub\n\nvar x = 42\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# Hello\nWorld\n"), 0o644)

	env, err := NewEnv(dir, filepath.Join(dir, ".agentichat"))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	return NewRegistry(env), dir
}

func asMap(t *testing.T, r Result) map[string]any {
	t.Helper()
	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return m
}

func TestRegistryListsAllFourteenTools(t *testing.T) {
	r, _ := newTestRegistry(t)
	want := []string{
		"list_files", "read_file", "write_file", "delete_file", "search_text",
		"glob_search", "create_directory", "delete_directory", "move_file",
		"copy_file", "shell_exec", "web_fetch", "web_search", "todo_write",
	}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
}

func TestExecuteUnknownToolNeverCrashes(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Execute(context.Background(), "nonexistent", nil)
	m := asMap(t, result)
	if m["success"] != false {
		t.Fatalf("expected success=false, got %+v", m)
	}
	if m["error"] != "Tool 'nonexistent' not found" {
		t.Fatalf("unexpected error message: %+v", m)
	}
}

func TestGlobSearch(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Execute(context.Background(), "glob_search", map[string]any{"pattern": "**/*.go"})
	m := asMap(t, result)
	if m["success"] != true {
		t.Fatalf("expected success, got %+v", m)
	}
	if int(m["count"].(float64)) != 2 {
		t.Fatalf("expected 2 matches, got %+v", m["files"])
	}
}

func TestReadFileLineRange(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.WriteFile(filepath.Join(dir, "lines.txt"), []byte("one\ntwo\nthree\n"), 0o644)

	result := r.Execute(context.Background(), "read_file", map[string]any{
		"path": "lines.txt", "start_line": float64(1), "end_line": float64(1),
	})
	m := asMap(t, result)
	if m["content"] != "one" {
		t.Fatalf("expected 'one', got %+v", m["content"])
	}

	// end_line past EOF returns what exists
	result = r.Execute(context.Background(), "read_file", map[string]any{
		"path": "lines.txt", "start_line": float64(2), "end_line": float64(100),
	})
	m = asMap(t, result)
	if m["content"] != "two\nthree" {
		t.Fatalf("expected 'two\\nthree', got %+v", m["content"])
	}
}

func TestWriteFileCreateRefusesExisting(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.WriteFile(filepath.Join(dir, "exists.txt"), []byte("x"), 0o644)

	result := r.Execute(context.Background(), "write_file", map[string]any{
		"path": "exists.txt", "content": "y", "mode": "create",
	})
	m := asMap(t, result)
	if m["success"] != false {
		t.Fatalf("expected create on existing file to fail, got %+v", m)
	}
}

func TestWriteFileAppend(t *testing.T) {
	r, dir := newTestRegistry(t)
	path := filepath.Join(dir, "log.txt")
	os.WriteFile(path, []byte("a"), 0o644)

	result := r.Execute(context.Background(), "write_file", map[string]any{
		"path": "log.txt", "content": "b", "mode": "append",
	})
	m := asMap(t, result)
	if m["success"] != true {
		t.Fatalf("expected success, got %+v", m)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "ab" {
		t.Fatalf("expected 'ab', got %q", got)
	}
}

func TestDeleteFileRequiresConfirmation(t *testing.T) {
	r, _ := newTestRegistry(t)
	tool, ok := r.Get("delete_file")
	if !ok || !tool.RequiresConfirmation {
		t.Fatal("expected delete_file to require confirmation")
	}
	tool, ok = r.Get("list_files")
	if !ok || tool.RequiresConfirmation {
		t.Fatal("expected list_files to not require confirmation")
	}
}

func TestSandboxEscapeRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Execute(context.Background(), "read_file", map[string]any{"path": "../../etc/passwd"})
	m := asMap(t, result)
	if m["success"] != false {
		t.Fatalf("expected escape to fail, got %+v", m)
	}
}

func TestFileAtExactlyMaxSizeAccepted(t *testing.T) {
	r, dir := newTestRegistry(t)
	env, _ := NewEnv(dir, dir)
	_ = env
	path := filepath.Join(dir, "cap.txt")
	data := make([]byte, 1_000_000)
	os.WriteFile(path, data, 0o644)

	result := r.Execute(context.Background(), "read_file", map[string]any{"path": "cap.txt"})
	m := asMap(t, result)
	if m["success"] != true {
		t.Fatalf("expected file at exactly the cap to be accepted, got %+v", m)
	}

	os.WriteFile(path, append(data, 'x'), 0o644)
	result = r.Execute(context.Background(), "read_file", map[string]any{"path": "cap.txt"})
	m = asMap(t, result)
	if m["success"] != false {
		t.Fatalf("expected file one byte over the cap to be rejected, got %+v", m)
	}
}

func TestShellExecCapturesOutput(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Execute(context.Background(), "shell_exec", map[string]any{"command": "echo hi"})
	m := asMap(t, result)
	if m["success"] != true {
		t.Fatalf("expected success, got %+v", m)
	}
	if m["stdout"] != "hi\n" {
		t.Fatalf("expected 'hi\\n', got %+v", m["stdout"])
	}
}

func TestTodoWriteRoundTrip(t *testing.T) {
	r, dir := newTestRegistry(t)
	dataDir := filepath.Join(dir, ".agentichat")
	result := r.Execute(context.Background(), "todo_write", map[string]any{
		"todos": []map[string]any{
			{"content": "write tests", "status": "in_progress", "active_form": "Writing tests"},
		},
	})
	m := asMap(t, result)
	if m["success"] != true {
		t.Fatalf("expected success, got %+v", m)
	}
	raw, err := os.ReadFile(filepath.Join(dataDir, "current_todos.json"))
	if err != nil {
		t.Fatalf("read todos file: %v", err)
	}
	var tf todoFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		t.Fatalf("unmarshal todos: %v", err)
	}
	if len(tf.Todos) != 1 || tf.Todos[0].Content != "write tests" {
		t.Fatalf("unexpected todos: %+v", tf.Todos)
	}
}
