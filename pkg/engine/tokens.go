package engine

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nstogner/dispatch/pkg/model"
)

const (
	systemMessageOverhead = 2
	perMessageOverhead    = 4
)

// countTokens asks the provider for an exact count and falls back to a local
// estimate when the provider cannot answer (offline, unknown model). The
// count is recorded before the network call so token cost stays visible even
// if the call later fails.
func (e *Engine) countTokens(ctx context.Context, modelID, instructions string, messages []model.Message) int {
	if n, err := e.provider.CountTokens(ctx, modelID, instructions, messages); err == nil {
		return n
	}
	return EstimateTokens(modelID, instructions, messages)
}

// EstimateTokens returns a local token estimate for the given request.
func EstimateTokens(modelID, instructions string, messages []model.Message) int {
	encoder := encodingForModel(modelID)

	total := tokenCount(encoder, instructions)
	if instructions != "" {
		total += systemMessageOverhead
	}

	for _, msg := range messages {
		tokens := tokenCount(encoder, msg.Text) + perMessageOverhead
		if len(msg.ToolCalls) > 0 {
			if data, err := json.Marshal(msg.ToolCalls); err == nil {
				tokens += tokenCount(encoder, string(data))
			}
		}
		if len(msg.ToolResults) > 0 {
			if data, err := json.Marshal(msg.ToolResults); err == nil {
				tokens += tokenCount(encoder, string(data))
			}
		}
		total += tokens
	}

	return total
}

func encodingForModel(modelID string) *tiktoken.Tiktoken {
	if encoder, err := tiktoken.EncodingForModel(modelID); err == nil {
		return encoder
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return encoder
}

func tokenCount(encoder *tiktoken.Tiktoken, text string) int {
	if text == "" {
		return 0
	}

	if encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}

	// Rough heuristic: 1 token ≈ 4 characters.
	runes := utf8.RuneCountInString(text)
	return (runes + 3) / 4
}
