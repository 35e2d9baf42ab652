package ports

import (
	"context"
)

// CompleterPort defines the interface for producing an assistant reply to a prompt
type CompleterPort interface {
	// Complete generates a single, non-streaming completion
	Complete(ctx context.Context, request *CompletionRequest) (*CompletionResponse, error)

	// Health check
	Ping(ctx context.Context) error
}

// CompletionRequest represents a request to generate a completion
type CompletionRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Model        string  `json:"model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// CompletionResponse represents the response from a completion request
type CompletionResponse struct {
	ID           string      `json:"id"`
	Model        string      `json:"model"`
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage represents token usage statistics
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
