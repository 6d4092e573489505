package sandbox

import (
	"path/filepath"
	"strings"
)

// matchGlob reports whether name (forward-slash separated, relative to the
// sandbox root) matches pattern. "**" as a whole pattern segment matches zero
// or more directory levels; filepath.Match handles everything within a
// segment. The block/ignore lists need nothing a full gitignore engine would
// add, so this stays a small hand-rolled matcher rather than a library
// dependency.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, _ := filepath.Match(pat[0], segs[0]); !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// matchAny reports whether name matches any of patterns.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchGlob(p, name) {
			return true
		}
	}
	return false
}
