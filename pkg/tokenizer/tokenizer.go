package tokenizer

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// messageOverhead approximates the chat formatting tokens added per message
	messageOverhead = 4
	// replyPriming is added once per request for the assistant reply header
	replyPriming = 2
	// responseReserve is kept free for response formatting
	responseReserve = 10
)

// Tokenizer provides token counting functionality
type Tokenizer struct {
	encoding     *tiktoken.Tiktoken
	encodingName string
}

// EncodingFor maps a model name to a tiktoken encoding
func EncodingFor(model string) string {
	switch {
	case strings.Contains(model, "gpt-4o"), strings.Contains(model, "o1"), strings.Contains(model, "o3"):
		return "o200k_base"
	case strings.Contains(model, "gpt-4"), strings.Contains(model, "gpt-3.5"):
		return "cl100k_base"
	case strings.Contains(model, "gpt-3"):
		return "p50k_base"
	default:
		// For local models, use cl100k_base as a reasonable default
		return "cl100k_base"
	}
}

// NewTokenizer creates a new tokenizer for the given model. The encoding
// tables are fetched on first use, so this can fail without network access.
func NewTokenizer(model string) (*Tokenizer, error) {
	encodingName := EncodingFor(model)

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get encoding %s", encodingName)
	}

	return &Tokenizer{
		encoding:     encoding,
		encodingName: encodingName,
	}, nil
}

// EncodingName returns the encoding in use
func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}

// CountTokens counts tokens in a text string
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountPromptTokens counts a single-turn request: optional system prompt plus
// the user prompt, including chat formatting overhead.
func (t *Tokenizer) CountPromptTokens(prompt, systemPrompt string) int {
	total := replyPriming
	if systemPrompt != "" {
		total += t.CountTokens(systemPrompt) + messageOverhead
	}
	total += t.CountTokens(prompt) + messageOverhead
	return total
}

// EstimateResponseTokens returns how many tokens are left for the reply
// once usedTokens of a maxTokens context window are taken.
func (t *Tokenizer) EstimateResponseTokens(maxTokens int, usedTokens int) int {
	remaining := maxTokens - usedTokens
	if remaining <= 0 {
		return 0
	}

	if remaining > responseReserve {
		return remaining - responseReserve
	}

	return 1 // Always allow at least 1 token for response
}

// TruncateToTokenLimit truncates text to fit within a token limit
func (t *Tokenizer) TruncateToTokenLimit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	return t.encoding.Decode(tokens[:maxTokens])
}
