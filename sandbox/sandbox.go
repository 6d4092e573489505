// Package sandbox implements the path-jail validation, size cap, and
// block/ignore glob policies every filesystem-touching tool goes through.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrorKind tags a Sandbox error.
type ErrorKind string

const (
	KindEscape   ErrorKind = "Escape"
	KindBlocked  ErrorKind = "Blocked"
	KindTooLarge ErrorKind = "TooLarge"
	KindBadPath  ErrorKind = "BadPath"
)

// Error is a structured Sandbox fault. Tools never see a bare error string —
// callers can errors.As into this to recover the kind.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox/%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("sandbox/%s: %s", e.Kind, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultBlockedGlobs are enforced unconditionally: no call can bypass them.
// A Sandbox starts with this list; cmd/root.go replaces it with config's
// sandbox.blocked_paths when that list is non-empty.
var DefaultBlockedGlobs = []string{
	"**/.env",
	"**/*.key",
	"**/*.pem",
	"**/id_rsa",
	"**/credentials.json",
	"**/.ssh/*",
}

// DefaultIgnoredGlobs are advisory — suppressible per call via include_ignored.
var DefaultIgnoredGlobs = []string{
	"**/.venv/**", "**/venv/**", "**/env/**", "**/.virtualenv/**",
	"**/node_modules/**",
	"**/.git/**",
	"**/__pycache__/**", "**/.pytest_cache/**", "**/.mypy_cache/**", "**/.ruff_cache/**",
	"**/build/**", "**/dist/**", "**/*.egg-info/**",
	"**/.vscode/**", "**/.idea/**",
	"**/.DS_Store",
}

// DefaultMaxFileSize is the default file-size cap (1 MB).
const DefaultMaxFileSize = 1_000_000

// Sandbox validates paths against a workspace jail and enforces block/ignore
// glob policy plus a maximum file size.
type Sandbox struct {
	Root         string
	MaxFileSize  int64
	BlockedGlobs []string
	IgnoredGlobs []string
}

// New builds a Sandbox rooted at root (which must already exist) using the
// default blocked/ignored glob lists and size cap.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	return &Sandbox{
		Root:         resolved,
		MaxFileSize:  DefaultMaxFileSize,
		BlockedGlobs: DefaultBlockedGlobs,
		IgnoredGlobs: DefaultIgnoredGlobs,
	}, nil
}

// relSlash returns the sandbox-root-relative, forward-slash form of abs,
// used only for glob matching.
func (s *Sandbox) relSlash(abs string) string {
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Validate resolves path (relative or absolute) against the sandbox root and
// returns the canonical absolute path. It fails with KindEscape if the
// canonical path would lie outside root, and KindBlocked if it matches a
// blocked glob.
func (s *Sandbox) Validate(path string) (string, error) {
	if path == "" {
		return "", &Error{Kind: KindBadPath, Path: path, Err: errors.New("empty path")}
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(s.Root, path))
	}

	canonical, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// Tie-break: accept for write tools if the parent exists and is
		// within the jail; the write tool itself performs that check via
		// ValidateForWrite. Plain Validate rejects.
		if !s.within(candidate) {
			return "", &Error{Kind: KindEscape, Path: path, Err: err}
		}
		return "", &Error{Kind: KindBadPath, Path: path, Err: err}
	}

	if !s.within(canonical) {
		return "", &Error{Kind: KindEscape, Path: path}
	}

	if matchAny(s.BlockedGlobs, s.relSlash(canonical)) {
		return "", &Error{Kind: KindBlocked, Path: path}
	}

	return canonical, nil
}

// ValidateForWrite is like Validate but additionally accepts a path whose
// canonicalization fails (e.g. the file does not exist yet) provided its
// parent directory exists and is within the jail, so a tool may create a
// file that does not exist yet.
func (s *Sandbox) ValidateForWrite(path string) (string, error) {
	if path == "" {
		return "", &Error{Kind: KindBadPath, Path: path, Err: errors.New("empty path")}
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(s.Root, path))
	}

	canonical, err := filepath.EvalSymlinks(candidate)
	if err == nil {
		if !s.within(canonical) {
			return "", &Error{Kind: KindEscape, Path: path}
		}
		if matchAny(s.BlockedGlobs, s.relSlash(canonical)) {
			return "", &Error{Kind: KindBlocked, Path: path}
		}
		return canonical, nil
	}

	// Canonicalization failed: accept if the parent exists and is in-jail.
	parent := filepath.Dir(candidate)
	parentCanon, perr := filepath.EvalSymlinks(parent)
	if perr != nil || !s.within(parentCanon) {
		return "", &Error{Kind: KindEscape, Path: path, Err: err}
	}
	if matchAny(s.BlockedGlobs, s.relSlash(candidate)) {
		return "", &Error{Kind: KindBlocked, Path: path}
	}
	return candidate, nil
}

func (s *Sandbox) within(canonical string) bool {
	rel, err := filepath.Rel(s.Root, canonical)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// CheckSize fails with KindTooLarge if the file at absPath exceeds the
// configured maximum.
func (s *Sandbox) CheckSize(absPath string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return &Error{Kind: KindBadPath, Path: absPath, Err: err}
	}
	if info.Size() > s.MaxFileSize {
		return &Error{Kind: KindTooLarge, Path: absPath, Err: fmt.Errorf("%d bytes exceeds cap of %d", info.Size(), s.MaxFileSize)}
	}
	return nil
}

// ShouldIgnore reports whether absPath matches an ignored glob. Advisory —
// callers pass includeIgnored=true to bypass.
func (s *Sandbox) ShouldIgnore(absPath string, includeIgnored bool) bool {
	if includeIgnored {
		return false
	}
	return matchAny(s.IgnoredGlobs, s.relSlash(absPath))
}

// MatchesGlob exposes the glob matcher for the glob_search tool, which
// matches user-supplied patterns rather than the fixed block/ignore lists.
func MatchesGlob(pattern, relSlashPath string) bool {
	return matchGlob(pattern, relSlashPath)
}
