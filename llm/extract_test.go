package llm

import "testing"

func TestExtractToolCalls_BracketName(t *testing.T) {
	content := `[TOOL_CALLS]read_file{"path": "x"}`
	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["path"] != "x" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_BracketFunction(t *testing.T) {
	content := `[TOOL_CALLS]{"function": "read_file", "path": "x"}`
	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["path"] != "x" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_FencedJSON(t *testing.T) {
	content := "Let me check.\n```json\n{\"name\":\"read_file\",\"arguments\":{\"path\":\"x\"}}\n```"
	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["path"] != "x" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_FencedJSON_Multiple(t *testing.T) {
	content := "```json\n{\"name\":\"a\",\"arguments\":{}}{\"name\":\"b\",\"arguments\":{}}\n```"
	calls := ExtractToolCalls(content)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
}

func TestExtractToolCalls_InlineJSON(t *testing.T) {
	content := `Sure, calling: {"name": "read_file", "parameters": {"path": "x"}} done.`
	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["path"] != "x" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_XML(t *testing.T) {
	content := `<tool_call><function=read_file><parameter=path>x</parameter></function></tool_call>`
	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["path"] != "x" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_NoMarkerNoBareJSON(t *testing.T) {
	content := "Just a normal reply with no tool calls."
	if calls := ExtractToolCalls(content); len(calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(calls))
	}
}

func TestMatchBraces_RespectsEscapedQuotes(t *testing.T) {
	s := `{"path": "a\"b"}tail`
	end := matchBraces(s)
	if end != len(s)-len("tail") {
		t.Fatalf("expected match to stop before tail, got end=%d", end)
	}
}

func TestDecodeArgsWithRetry_FixesStrayBackslash(t *testing.T) {
	// \d is not a valid JSON escape; the retry should double it to \\d.
	body := `{"pattern": "\d+"}`
	args, ok := decodeArgsWithRetry(body)
	if !ok {
		t.Fatal("expected retry to succeed after escaping stray backslash")
	}
	if args["pattern"] != `\d+` {
		t.Fatalf("unexpected decode result: %+v", args)
	}
}
