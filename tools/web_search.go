package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type webSearchParams struct {
	Query      string `json:"query" jsonschema:"required,description=Search query."`
	MaxResults int    `json:"max_results" jsonschema:"description=Maximum number of results. 0 uses the default of 5."`
}

type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

const defaultMaxResults = 5

func webSearchTool() *Tool {
	return &Tool{
		Name:        "web_search",
		Description: "Search the public web and return title/snippet/url triples.",
		Params:      &webSearchParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[webSearchParams](args)
			if err != nil {
				return nil, err
			}
			if p.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			maxResults := p.MaxResults
			if maxResults <= 0 {
				maxResults = defaultMaxResults
			}

			endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(p.Query)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("User-Agent", "agentichat-go/1.0")

			resp, err := env.HTTP.Do(req)
			if err != nil {
				return nil, fmt.Errorf("search %q: %w", p.Query, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("search %q: HTTP %d", p.Query, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}

			results := parseDuckDuckGoResults(string(body), maxResults)
			return map[string]any{"results": results, "count": len(results)}, nil
		},
	}
}

// parseDuckDuckGoResults extracts result anchors (class "result__a") and the
// immediately-following snippet text from the HTML results endpoint, using
// the same streaming tokenizer as web_fetch rather than a second dependency.
func parseDuckDuckGoResults(doc string, max int) []searchResult {
	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	var results []searchResult
	var current *searchResult
	inResultLink := false
	inSnippet := false

	for len(results) < max {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			tag := string(name)
			attrs := map[string]string{}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				attrs[string(key)] = string(val)
			}
			class := attrs["class"]
			if tag == "a" && strings.Contains(class, "result__a") {
				inResultLink = true
				current = &searchResult{URL: attrs["href"]}
			}
			if tag == "a" && strings.Contains(class, "result__snippet") {
				inSnippet = true
				if current == nil {
					current = &searchResult{}
				}
			}
		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				break
			}
			if inResultLink && current != nil {
				current.Title += text
			} else if inSnippet && current != nil {
				current.Snippet += text
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "a" && inResultLink {
				inResultLink = false
			}
			if tag == "a" && inSnippet {
				inSnippet = false
				if current != nil && current.Title != "" {
					results = append(results, *current)
				}
				current = nil
			}
		}
	}
	return results
}
