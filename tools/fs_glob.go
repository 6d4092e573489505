package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentichat/agentichat-go/sandbox"
)

type globSearchParams struct {
	Pattern        string `json:"pattern" jsonschema:"required,description=Glob pattern where a ** segment matches any number of directory levels."`
	Base           string `json:"base" jsonschema:"description=Directory the pattern is relative to. Empty means the workspace root."`
	Exclude        string `json:"exclude" jsonschema:"description=Optional glob; matches are excluded."`
	IncludeIgnored bool   `json:"include_ignored"`
}

func globSearchTool() *Tool {
	return &Tool{
		Name:        "glob_search",
		Description: "Find files under a base directory matching a glob pattern.",
		Params:      &globSearchParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[globSearchParams](args)
			if err != nil {
				return nil, err
			}
			if p.Pattern == "" {
				return nil, fmt.Errorf("pattern is required")
			}

			base := env.WorkDir
			if p.Base != "" {
				abs, err := env.Sandbox.Validate(p.Base)
				if err != nil {
					return nil, err
				}
				base = abs
			}

			var matches []string
			err = filepath.WalkDir(base, func(path string, d os.DirEntry, walkErr error) error {
				if walkErr != nil {
					return nil
				}
				if d.IsDir() {
					if path != base && env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
						return filepath.SkipDir
					}
					return nil
				}
				if env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
					return nil
				}

				relBase, err := filepath.Rel(base, path)
				if err != nil {
					return nil
				}
				relBase = filepath.ToSlash(relBase)
				relWork, _ := filepath.Rel(env.WorkDir, path)
				relWork = filepath.ToSlash(relWork)

				if !sandbox.MatchesGlob(p.Pattern, relBase) {
					return nil
				}
				if p.Exclude != "" && sandbox.MatchesGlob(p.Exclude, relBase) {
					return nil
				}
				matches = append(matches, relWork)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("glob %s: %w", p.Pattern, err)
			}

			sort.Strings(matches)
			return map[string]any{"files": matches, "count": len(matches)}, nil
		},
	}
}
