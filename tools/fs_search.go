package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type searchTextParams struct {
	Query          string `json:"query" jsonschema:"required,description=Text or regex to search for."`
	Path           string `json:"path" jsonschema:"description=Directory to search relative to the workspace root. Empty means the whole workspace."`
	Regex          bool   `json:"regex" jsonschema:"description=Treat query as a regular expression instead of a literal substring."`
	CaseSensitive  bool   `json:"case_sensitive" jsonschema:"description=Match case-sensitively."`
	IncludeIgnored bool   `json:"include_ignored"`
}

type searchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func searchTextTool() *Tool {
	return &Tool{
		Name:        "search_text",
		Description: "Search file contents under a directory for a literal substring or regular expression, returning file/line/content matches.",
		Params:      &searchTextParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[searchTextParams](args)
			if err != nil {
				return nil, err
			}
			if p.Query == "" {
				return nil, fmt.Errorf("query is required")
			}

			root := env.WorkDir
			if p.Path != "" {
				abs, err := env.Sandbox.Validate(p.Path)
				if err != nil {
					return nil, err
				}
				root = abs
			}

			var matcher func(string) bool
			if p.Regex {
				pattern := p.Query
				if !p.CaseSensitive {
					pattern = "(?i)" + pattern
				}
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("invalid regex: %w", err)
				}
				matcher = re.MatchString
			} else {
				needle := p.Query
				if !p.CaseSensitive {
					needle = strings.ToLower(needle)
				}
				matcher = func(line string) bool {
					if !p.CaseSensitive {
						line = strings.ToLower(line)
					}
					return strings.Contains(line, needle)
				}
			}

			var matches []searchMatch
			err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
				if walkErr != nil {
					return nil
				}
				if d.IsDir() {
					if path != root && env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
						return filepath.SkipDir
					}
					return nil
				}
				if env.Sandbox.ShouldIgnore(path, p.IncludeIgnored) {
					return nil
				}

				f, err := os.Open(path)
				if err != nil {
					return nil // unreadable files are skipped silently
				}
				defer f.Close()

				rel, _ := filepath.Rel(env.WorkDir, path)
				rel = filepath.ToSlash(rel)

				scanner := bufio.NewScanner(f)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				lineNo := 0
				for scanner.Scan() {
					lineNo++
					line := scanner.Text()
					if !isProbablyText(line) {
						return nil // treat as binary, skip the rest of this file
					}
					if matcher(line) {
						matches = append(matches, searchMatch{
							File:    rel,
							Line:    lineNo,
							Content: strings.TrimSpace(line),
						})
					}
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("search %s: %w", p.Path, err)
			}

			return map[string]any{"matches": matches, "count": len(matches)}, nil
		},
	}
}

func isProbablyText(s string) bool {
	return !strings.ContainsRune(s, '\x00')
}
