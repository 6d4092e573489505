package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ExtractToolCalls recovers tool calls from free-form assistant text when
// the provider did not emit a native tool_calls field. It
// tries, in order: the two "[TOOL_CALLS]" bracket dialects, fenced ```json
// blocks (possibly holding several back-to-back objects), bare inline JSON
// objects, and the XML <tool_call> dialect. The first format that yields at
// least one call wins; formats are not combined.
func ExtractToolCalls(content string) []ToolCall {
	if calls := extractBracketName(content); len(calls) > 0 {
		return calls
	}
	if calls := extractBracketFunction(content); len(calls) > 0 {
		return calls
	}
	if calls := extractFencedJSON(content); len(calls) > 0 {
		return calls
	}
	if calls := extractInlineJSON(content); len(calls) > 0 {
		return calls
	}
	if calls := extractXML(content); len(calls) > 0 {
		return calls
	}
	return nil
}

var bracketMarker = "[TOOL_CALLS]"

// extractBracketName handles `[TOOL_CALLS]name{...json...}`.
// [TOOL_CALLS] is only honored as an extraction boundary at top level — it
// is never re-recognized while we are mid-way through brace-matching a
// previous call's JSON body.
func extractBracketName(content string) []ToolCall {
	var calls []ToolCall
	nameRe := regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-.]*`)

	pos := 0
	for {
		idx := strings.Index(content[pos:], bracketMarker)
		if idx < 0 {
			break
		}
		start := pos + idx + len(bracketMarker)
		rest := content[start:]

		name := nameRe.FindString(rest)
		if name == "" {
			pos = start
			continue
		}
		afterName := rest[len(name):]
		braceIdx := strings.IndexByte(afterName, '{')
		if braceIdx != 0 {
			// Not immediately followed by '{' — not this dialect.
			pos = start
			continue
		}

		end := matchBraces(afterName)
		if end < 0 {
			pos = start
			continue
		}
		jsonBody := afterName[:end]

		args, ok := decodeArgsWithRetry(jsonBody)
		if !ok {
			pos = start + len(name) + end
			continue
		}
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
		pos = start + len(name) + end
	}
	return calls
}

// extractBracketFunction handles
// `[TOOL_CALLS]{"function": name, ...other fields as arguments}`.
func extractBracketFunction(content string) []ToolCall {
	var calls []ToolCall
	pos := 0
	for {
		idx := strings.Index(content[pos:], bracketMarker)
		if idx < 0 {
			break
		}
		start := pos + idx + len(bracketMarker)
		rest := content[start:]
		if len(rest) == 0 || rest[0] != '{' {
			pos = start
			continue
		}

		end := matchBraces(rest)
		if end < 0 {
			pos = start
			continue
		}
		body := rest[:end]
		pos = start + end

		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			continue
		}
		fn, ok := obj["function"]
		name, isStr := fn.(string)
		if !ok || !isStr || name == "" {
			continue
		}
		delete(obj, "function")
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: obj})
	}
	return calls
}

var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// extractFencedJSON handles markdown fenced ```json blocks, which may
// contain several back-to-back {"name": ..., "arguments"|"parameters": {...}}
// objects brace-counted one after another.
func extractFencedJSON(content string) []ToolCall {
	var calls []ToolCall
	for _, m := range fencedJSONRe.FindAllStringSubmatch(content, -1) {
		body := strings.TrimSpace(m[1])
		pos := 0
		for pos < len(body) {
			next := strings.IndexByte(body[pos:], '{')
			if next < 0 {
				break
			}
			objStart := pos + next
			end := matchBraces(body[objStart:])
			if end < 0 {
				break
			}
			objStr := body[objStart : objStart+end]
			pos = objStart + end

			var obj map[string]any
			if err := json.Unmarshal([]byte(objStr), &obj); err != nil {
				continue
			}
			name, _ := obj["name"].(string)
			if name == "" {
				continue
			}
			args, _ := obj["arguments"].(map[string]any)
			if args == nil {
				args, _ = obj["parameters"].(map[string]any)
			}
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
		}
	}
	return calls
}

// extractInlineJSON is the last-resort fallback: bare
// {"name": ..., nested {...}} objects with no fences at all.
func extractInlineJSON(content string) []ToolCall {
	var calls []ToolCall
	pos := 0
	for {
		next := strings.IndexByte(content[pos:], '{')
		if next < 0 {
			break
		}
		objStart := pos + next
		end := matchBraces(content[objStart:])
		if end < 0 {
			pos = objStart + 1
			continue
		}
		objStr := content[objStart : objStart+end]
		pos = objStart + end

		var obj map[string]any
		if err := json.Unmarshal([]byte(objStr), &obj); err != nil {
			continue
		}
		name, _ := obj["name"].(string)
		if name == "" {
			continue
		}
		args, _ := obj["arguments"].(map[string]any)
		if args == nil {
			args, _ = obj["parameters"].(map[string]any)
		}
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
	}
	return calls
}

var xmlToolCallRe = regexp.MustCompile(`(?s)<tool_call>\s*<function=([A-Za-z_][A-Za-z0-9_\-.]*)>(.*?)</function>\s*</tool_call>`)
var xmlParamRe = regexp.MustCompile(`(?s)<parameter=([A-Za-z_][A-Za-z0-9_\-.]*)>(.*?)</parameter>`)

// extractXML handles
// `<tool_call><function=NAME><parameter=KEY>VALUE</parameter>...</function></tool_call>`.
func extractXML(content string) []ToolCall {
	var calls []ToolCall
	for _, m := range xmlToolCallRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		args := map[string]any{}
		for _, p := range xmlParamRe.FindAllStringSubmatch(m[2], -1) {
			args[p[1]] = strings.TrimSpace(p[2])
		}
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
	}
	return calls
}

// matchBraces returns the index just past the closing '}' that matches the
// opening '{' at s[0], respecting string literals and backslash escapes, or
// -1 if s does not start with '{' or the braces never balance.
func matchBraces(s string) int {
	if len(s) == 0 || s[0] != '{' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// badEscapeRe matches a backslash followed by a character JSON does not
// recognize as an escape (", \, /, b, f, n, r, t, u).
var badEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// decodeArgsWithRetry decodes a JSON object body into arguments. On decode
// failure it retries once after doubling stray backslashes (pattern \X where
// X is not a JSON escape character becomes \\X), which recovers the common
// model mistake of unescaped Windows paths. Gives up silently on a second
// failure.
func decodeArgsWithRetry(body string) (map[string]any, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(body), &args); err == nil {
		return args, true
	}

	fixed := badEscapeRe.ReplaceAllString(body, `\\$1`)
	if err := json.Unmarshal([]byte(fixed), &args); err == nil {
		return args, true
	}
	return nil, false
}

func newCallID() string {
	return uuid.NewString()
}
