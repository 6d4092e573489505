package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSandbox(t *testing.T) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	sb, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sb, root
}

func TestValidateJailInvariant(t *testing.T) {
	sb, root := newTestSandbox(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	canonical, err := sb.Validate("a.txt")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !strings.HasPrefix(canonical, sb.Root) {
		t.Fatalf("canonical path %q escapes root %q", canonical, sb.Root)
	}
}

func TestValidateEscape(t *testing.T) {
	sb, _ := newTestSandbox(t)
	if _, err := sb.Validate("../outside.txt"); err == nil {
		t.Fatal("expected escape error")
	} else {
		var sErr *Error
		if !as(err, &sErr) || sErr.Kind != KindEscape {
			t.Fatalf("expected KindEscape, got %v", err)
		}
	}
}

func TestValidateBlocked(t *testing.T) {
	sb, root := newTestSandbox(t)
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := sb.Validate(".env")
	var sErr *Error
	if !as(err, &sErr) || sErr.Kind != KindBlocked {
		t.Fatalf("expected KindBlocked, got %v", err)
	}
}

func TestCheckSizeBoundary(t *testing.T) {
	sb, root := newTestSandbox(t)
	sb.MaxFileSize = 10

	exact := filepath.Join(root, "exact.txt")
	if err := os.WriteFile(exact, []byte(strings.Repeat("a", 10)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sb.CheckSize(exact); err != nil {
		t.Fatalf("exact-size file should be accepted: %v", err)
	}

	over := filepath.Join(root, "over.txt")
	if err := os.WriteFile(over, []byte(strings.Repeat("a", 11)), 0o644); err != nil {
		t.Fatal(err)
	}
	var sErr *Error
	if err := sb.CheckSize(over); !as(err, &sErr) || sErr.Kind != KindTooLarge {
		t.Fatalf("expected KindTooLarge, got %v", err)
	}
}

func TestShouldIgnore(t *testing.T) {
	sb, root := newTestSandbox(t)
	p := filepath.Join(root, "node_modules", "x", "y.js")

	if !sb.ShouldIgnore(p, false) {
		t.Fatal("expected node_modules path to be ignored")
	}
	if sb.ShouldIgnore(p, true) {
		t.Fatal("include_ignored=true should bypass the ignore policy")
	}
}

func TestValidateForWriteAcceptsMissingFile(t *testing.T) {
	sb, _ := newTestSandbox(t)
	canonical, err := sb.ValidateForWrite("new-file.txt")
	if err != nil {
		t.Fatalf("ValidateForWrite on nonexistent file with existing parent: %v", err)
	}
	if !strings.HasPrefix(canonical, sb.Root) {
		t.Fatalf("canonical path escapes root: %q", canonical)
	}
}

// as is a tiny errors.As wrapper kept local to avoid importing errors twice
// with a different alias in each test file.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
