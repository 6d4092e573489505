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

// OpenAICompatAdapter targets a hosted endpoint speaking the OpenAI chat
// completions dialect: bearer auth, POST /v1/chat/completions, SSE framed as
// `data: {...}\n\n` with sentinel `data: [DONE]`. Tool-call arguments on the
// wire are a JSON-encoded string, never a bare object — that asymmetry with
// the canonical in-memory Message/ToolCall shape is preserved deliberately.
type OpenAICompatAdapter struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	observer    RetryObserver

	mu               sync.Mutex
	maxParallelTools int
	usage            TokenUsage
	apiCalls         int
}

func NewOpenAICompatAdapter(baseURL, apiKey, model string, maxTokens int, temperature float64, timeout time.Duration) *OpenAICompatAdapter {
	return &OpenAICompatAdapter{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}
}

func (a *OpenAICompatAdapter) SetRetryObserver(o RetryObserver) { a.observer = o }
func (a *OpenAICompatAdapter) SetModel(model string)            { a.model = model }
func (a *OpenAICompatAdapter) Model() string                    { return a.model }

func (a *OpenAICompatAdapter) MaxParallelTools() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxParallelTools
}

func (a *OpenAICompatAdapter) SetMaxParallelTools(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxParallelTools = n
}

func (a *OpenAICompatAdapter) CumulativeUsage() (TokenUsage, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage, a.apiCalls
}

func (a *OpenAICompatAdapter) ResetUsage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = TokenUsage{}
	a.apiCalls = 0
}

type oaMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []oaToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model       string         `json:"model"`
	Messages    []oaMessage    `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Tools       []oaToolDef    `json:"tools,omitempty"`
	StreamOpts  *oaStreamOpts  `json:"stream_options,omitempty"`
}

type oaStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content   *string      `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func toOAMessages(messages []Message) []oaMessage {
	out := make([]oaMessage, 0, len(messages))
	for _, m := range messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			var wire oaToolCall
			wire.ID = tc.ID
			wire.Type = "function"
			wire.Function.Name = tc.Name
			wire.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, wire)
		}
		out = append(out, om)
	}
	return out
}

func toOATools(tools []ToolDef) []oaToolDef {
	out := make([]oaToolDef, 0, len(tools))
	for _, t := range tools {
		var d oaToolDef
		d.Type = "function"
		d.Function.Name = t.Name
		d.Function.Description = t.Description
		d.Function.Parameters = t.Parameters
		out = append(out, d)
	}
	return out
}

func (a *OpenAICompatAdapter) buildRequest(ctx context.Context, messages []Message, tools []ToolDef, stream bool) (*http.Request, error) {
	body := oaRequest{
		Model:       a.model,
		Messages:    toOAMessages(messages),
		Stream:      stream,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Tools:       toOATools(tools),
	}
	if stream {
		body.StreamOpts = &oaStreamOpts{IncludeUsage: true}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	return req, nil
}

// Chat issues one non-streaming call, wrapped in the shared retry policy.
func (a *OpenAICompatAdapter) Chat(ctx context.Context, messages []Message, tools []ToolDef) (*ChatResponse, error) {
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

func (a *OpenAICompatAdapter) chatOnce(ctx context.Context, messages []Message, tools []ToolDef) (*ChatResponse, error) {
	req, err := a.buildRequest(ctx, messages, tools, false)
	if err != nil {
		return nil, &BackendError{Type: ErrUnknown, Message: err.Error(), Err: err}
	}

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		timedOut := ctx.Err() == nil && isTimeout(err)
		return nil, classifyNetError(err, timedOut)
	}
	defer httpResp.Body.Close()

	body, _ := io.ReadAll(httpResp.Body)
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, classifyHTTPError(httpResp.StatusCode, string(body))
	}

	var parsed oaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &BackendError{Type: ErrUnknown, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &BackendError{Type: ErrUnknown, Message: "no choices in response"}
	}
	choice := parsed.Choices[0]

	out := &ChatResponse{FinishReason: choice.FinishReason}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	if parsed.Usage != nil {
		out.Usage = TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}

	if len(choice.Message.ToolCalls) > 0 {
		for _, tc := range choice.Message.ToolCalls {
			args := map[string]any{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
	} else if out.Content != "" {
		out.ToolCalls = ExtractToolCalls(out.Content)
	}

	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCalls
		if cap := a.MaxParallelTools(); cap > 0 && len(out.ToolCalls) > cap {
			out.ToolCalls = out.ToolCalls[:cap]
		}
	}

	return out, nil
}

// ChatStream issues a streaming call with no tools. Not retried.
func (a *OpenAICompatAdapter) ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error) {
	req, err := a.buildRequest(ctx, messages, nil, true)
	if err != nil {
		return nil, err
	}
	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err, isTimeout(err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
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
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				events <- StreamEvent{Done: true}
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content *string `json:"content"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
				Usage *struct {
					PromptTokens     int `json:"prompt_tokens"`
					CompletionTokens int `json:"completion_tokens"`
					TotalTokens      int `json:"total_tokens"`
				} `json:"usage"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			var ev StreamEvent
			if len(chunk.Choices) > 0 {
				if chunk.Choices[0].Delta.Content != nil {
					ev.TextDelta = *chunk.Choices[0].Delta.Content
				}
				if chunk.Choices[0].FinishReason != nil {
					ev.FinishReason = *chunk.Choices[0].FinishReason
				}
			}
			if chunk.Usage != nil {
				ev.Usage = &TokenUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			events <- ev
		}
		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Err: err}
		}
	}()
	return events, nil
}

func (a *OpenAICompatAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
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
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	models := make([]string, len(parsed.Data))
	for i, d := range parsed.Data {
		models[i] = d.ID
	}
	return models, nil
}

func (a *OpenAICompatAdapter) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	for e := err; e != nil; {
		if te, ok := e.(timeouter); ok {
			t = te
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return t != nil && t.Timeout()
}

var _ Backend = (*OpenAICompatAdapter)(nil)
