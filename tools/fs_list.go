package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentichat/agentichat-go/sandbox"
)

type listFilesParams struct {
	Path           string `json:"path" jsonschema:"description=Directory to list relative to the workspace root. Empty means the root itself."`
	Recursive      bool   `json:"recursive" jsonschema:"description=Walk subdirectories."`
	Pattern        string `json:"pattern" jsonschema:"description=Optional glob pattern (e.g. *.go) to filter entries."`
	IncludeIgnored bool   `json:"include_ignored" jsonschema:"description=Include paths that match the sandbox's ignored globs."`
}

func listFilesTool() *Tool {
	return &Tool{
		Name:        "list_files",
		Description: "List files under a directory within the workspace, optionally recursively and filtered by a glob pattern.",
		Params:      &listFilesParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[listFilesParams](args)
			if err != nil {
				return nil, err
			}

			dir := env.WorkDir
			if p.Path != "" {
				abs, err := env.Sandbox.Validate(p.Path)
				if err != nil {
					return nil, err
				}
				dir = abs
			}

			var files []string
			ignored := 0

			walkOne := func(root string) error {
				return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
					if err != nil {
						if errors.Is(err, os.ErrNotExist) {
							return nil
						}
						return err
					}
					if path == root {
						return nil
					}
					rel, relErr := filepath.Rel(env.WorkDir, path)
					if relErr != nil {
						return nil
					}
					rel = filepath.ToSlash(rel)

					if d.IsDir() {
						if env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
							ignored++
							return filepath.SkipDir
						}
						files = append(files, rel+"/")
						if !p.Recursive {
							return filepath.SkipDir
						}
						return nil
					}

					if env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
						ignored++
						return nil
					}
					if p.Pattern != "" && !sandbox.MatchesGlob(p.Pattern, filepath.Base(rel)) && !sandbox.MatchesGlob(p.Pattern, rel) {
						return nil
					}
					files = append(files, rel)
					return nil
				})
			}

			if err := walkOne(dir); err != nil {
				return nil, fmt.Errorf("list %s: %w", p.Path, err)
			}

			sort.Strings(files)
			return map[string]any{
				"files":        files,
				"count":        len(files),
				"ignoredCount": ignored,
			}, nil
		},
	}
}
