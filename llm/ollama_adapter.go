package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LocalRuntimeAdapter targets a local Ollama-style server: no auth, request
// options (temperature, num_predict) nested under an "options" object,
// POST /api/chat, NDJSON streaming (one JSON object per line, final line
// carries "done": true). Tool-call arguments on the wire are a native JSON
// object, never a string.
type LocalRuntimeAdapter struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	observer    RetryObserver

	mu               sync.Mutex
	maxParallelTools int
	usage            TokenUsage
	apiCalls         int
}

func NewLocalRuntimeAdapter(baseURL, model string, maxTokens int, temperature float64, timeout time.Duration) *LocalRuntimeAdapter {
	return &LocalRuntimeAdapter{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (a *LocalRuntimeAdapter) SetRetryObserver(o RetryObserver) { a.observer = o }
func (a *LocalRuntimeAdapter) SetModel(model string)            { a.model = model }
func (a *LocalRuntimeAdapter) Model() string                    { return a.model }

func (a *LocalRuntimeAdapter) MaxParallelTools() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxParallelTools
}

func (a *LocalRuntimeAdapter) SetMaxParallelTools(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxParallelTools = n
}

func (a *LocalRuntimeAdapter) CumulativeUsage() (TokenUsage, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage, a.apiCalls
}

func (a *LocalRuntimeAdapter) ResetUsage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = TokenUsage{}
	a.apiCalls = 0
}

type lrToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type lrMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	ToolCalls []lrToolCall `json:"tool_calls,omitempty"`
}

type lrOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type lrToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type lrRequest struct {
	Model    string      `json:"model"`
	Messages []lrMessage `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  lrOptions   `json:"options"`
	Tools    []lrToolDef `json:"tools,omitempty"`
}

type lrResponse struct {
	Message struct {
		Content   string       `json:"content"`
		ToolCalls []lrToolCall `json:"tool_calls"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func toLRMessages(messages []Message) []lrMessage {
	out := make([]lrMessage, 0, len(messages))
	for _, m := range messages {
		lm := lrMessage{Role: m.Role, Content: m.ContentString()}
		for _, tc := range m.ToolCalls {
			var wire lrToolCall
			wire.ID = tc.ID
			wire.Type = "function"
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			lm.ToolCalls = append(lm.ToolCalls, wire)
		}
		out = append(out, lm)
	}
	return out
}

func toLRTools(tools []ToolDef) []lrToolDef {
	out := make([]lrToolDef, 0, len(tools))
	for _, t := range tools {
		var d lrToolDef
		d.Type = "function"
		d.Function.Name = t.Name
		d.Function.Description = t.Description
		d.Function.Parameters = t.Parameters
		out = append(out, d)
	}
	return out
}

func (a *LocalRuntimeAdapter) buildRequest(ctx context.Context, messages []Message, tools []ToolDef, stream bool) (*http.Request, error) {
	body := lrRequest{
		Model:    a.model,
		Messages: toLRMessages(messages),
		Stream:   stream,
		Options:  lrOptions{NumPredict: a.maxTokens, Temperature: a.temperature},
		Tools:    toLRTools(tools),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *LocalRuntimeAdapter) Chat(ctx context.Context, messages []Message, tools []ToolDef) (*ChatResponse, error) {
	resp, err := doWithRetry(ctx, a.observer, func(n int) (*ChatResponse, error) {
		return a.chatOnce(ctx, messages, tools)
	})
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.usage = a.usage.Add(resp.Usage)
	a.apiCalls++
	a.mu.Unlock()
	return resp, nil
}

func (a *LocalRuntimeAdapter) chatOnce(ctx context.Context, messages []Message, tools []ToolDef) (*ChatResponse, error) {
	req, err := a.buildRequest(ctx, messages, tools, false)
	if err != nil {
		return nil, &BackendError{Type: ErrUnknown, Message: err.Error(), Err: err}
	}

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err, isTimeout(err))
	}
	defer httpResp.Body.Close()

	body, _ := io.ReadAll(httpResp.Body)
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, string(body))
	}

	var parsed lrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &BackendError{Type: ErrUnknown, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}

	out := &ChatResponse{Content: parsed.Message.Content}
	out.Usage = TokenUsage{
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
		TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
	}

	if len(parsed.Message.ToolCalls) > 0 {
		for _, tc := range parsed.Message.ToolCalls {
			args := tc.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			// This dialect does not mint call ids; tool-role responses still
			// need one to reference, so generate an opaque id here.
			id := tc.ID
			if id == "" {
				id = newCallID()
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: tc.Function.Name, Arguments: args})
		}
	} else if out.Content != "" {
		out.ToolCalls = ExtractToolCalls(out.Content)
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = FinishToolCalls
		if cap := a.MaxParallelTools(); cap > 0 && len(out.ToolCalls) > cap {
			out.ToolCalls = out.ToolCalls[:cap]
		}
	case parsed.DoneReason == "length":
		out.FinishReason = FinishLength
	default:
		out.FinishReason = FinishStop
	}

	return out, nil
}

// ChatStream reads NDJSON: one JSON object per line, the final one with
// "done": true. Not retried.
func (a *LocalRuntimeAdapter) ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error) {
	req, err := a.buildRequest(ctx, messages, nil, true)
	if err != nil {
		return nil, err
	}
	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err, isTimeout(err))
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, classifyHTTPError(httpResp.StatusCode, string(body))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer httpResp.Body.Close()
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk lrResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			ev := StreamEvent{TextDelta: chunk.Message.Content}
			if chunk.Done {
				ev.Done = true
				ev.Usage = &TokenUsage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				}
				if chunk.DoneReason == "length" {
					ev.FinishReason = FinishLength
				} else {
					ev.FinishReason = FinishStop
				}
				events <- ev
				return
			}
			events <- ev
		}
		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Err: err}
		}
	}()
	return events, nil
}

func (a *LocalRuntimeAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err, isTimeout(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError(resp.StatusCode, string(body))
	}
	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	models := make([]string, len(parsed.Models))
	for i, m := range parsed.Models {
		models[i] = m.Name
	}
	return models, nil
}

func (a *LocalRuntimeAdapter) HealthCheck(ctx context.Context) bool {
	_, err := a.ListModels(ctx)
	return err == nil
}

var _ Backend = (*LocalRuntimeAdapter)(nil)
