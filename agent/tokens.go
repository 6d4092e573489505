package agent

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/agentichat/agentichat-go/llm"
)

// tiktokenOnce guards lazy initialization of the BPE encoder. The encoder is
// loaded from the local disk cache or downloaded on first use; after that
// the cache makes subsequent calls instant.
var (
	tiktokenOnce sync.Once
	tiktokenEnc  *tiktoken.Tiktoken // nil if initialization failed
)

func loadTiktoken() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		tiktokenEnc = enc
	}
}

// estimateTextTokens counts tokens in text using the cl100k_base BPE
// encoding when available, falling back to a blended word/char heuristic
// when the encoder can't be loaded (no network on first run, air-gapped
// environment).
func estimateTextTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	tiktokenOnce.Do(loadTiktoken)

	if tiktokenEnc != nil {
		return len(tiktokenEnc.EncodeOrdinary(text))
	}

	wordBased := (len(strings.Fields(text)) * 4) / 3
	charBased := len(text) / 4
	if wordBased > charBased {
		return wordBased
	}
	return charBased
}

// estimateMessageTokens estimates the token cost of one message, including
// its tool calls.
func estimateMessageTokens(msg llm.Message) int {
	tokens := estimateTextTokens(msg.Role) + estimateTextTokens(msg.ContentString())
	for _, tc := range msg.ToolCalls {
		tokens += estimateTextTokens(tc.Name)
		for k, v := range tc.Arguments {
			tokens += estimateTextTokens(k)
			if s, ok := v.(string); ok {
				tokens += estimateTextTokens(s)
			} else {
				tokens += 2
			}
		}
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// estimateTotalTokens sums estimateMessageTokens over a transcript.
func estimateTotalTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateMessageTokens(m)
	}
	return total
}

// estimateToolDefTokens estimates the token cost of advertising the tool
// catalogue to the provider.
func estimateToolDefTokens(defs []llm.ToolDef) int {
	total := 0
	for _, d := range defs {
		total += estimateTextTokens(d.Name) + estimateTextTokens(d.Description)
	}
	return total
}
