package llm

import "strings"

// AccumulateStream collects a StreamEvent channel into a single ChatResponse,
// invoking onText for each delta as it arrives so the caller can render
// output live. Streaming turns never carry tool calls, so there is no
// per-index tool-call delta merge here — only text, usage, and finish
// reason.
func AccumulateStream(events <-chan StreamEvent, onText func(string)) (*ChatResponse, error) {
	var content strings.Builder
	var usage TokenUsage
	finishReason := FinishStop

	for event := range events {
		if event.Err != nil {
			return nil, event.Err
		}
		if event.TextDelta != "" {
			content.WriteString(event.TextDelta)
			if onText != nil {
				onText(event.TextDelta)
			}
		}
		if event.Usage != nil {
			usage = *event.Usage
		}
		if event.FinishReason != "" {
			finishReason = event.FinishReason
		}
		if event.Done {
			break
		}
	}

	return &ChatResponse{
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}
