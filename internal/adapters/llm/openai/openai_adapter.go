package openai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Response token bounds used when the request does not set MaxTokens
const (
	minResponseTokens = 512
	maxResponseTokens = 2048
)

// ErrNoChoices is returned when the API answers without any completion
var ErrNoChoices = errors.New("no choices returned from API")

// TokenCounter budgets a request. *tokenizer.Tokenizer satisfies it.
type TokenCounter interface {
	CountPromptTokens(prompt, systemPrompt string) int
	EstimateResponseTokens(maxTokens int, usedTokens int) int
}

// Config holds the OpenAI-compatible endpoint settings
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// ContextTokens is the model context window used for budgeting
	ContextTokens int
	Temperature   float64
	SystemPrompt  string
}

// Adapter implements the CompleterPort interface using OpenAI-compatible APIs
type Adapter struct {
	client  *openai.Client
	config  Config
	counter TokenCounter
	logger  *logutil.Logger
}

// NewAdapter creates a new OpenAI-compatible completer. counter may be nil,
// in which case the prompt is not counted.
func NewAdapter(cfg Config, counter TokenCounter, logger *logutil.Logger) *Adapter {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)

	// Override base URL for local providers like Ollama/LM Studio
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &Adapter{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		counter: counter,
		logger:  logger,
	}
}

// Complete generates a single-turn completion for the prompt
func (a *Adapter) Complete(ctx context.Context, request *ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if request == nil || strings.TrimSpace(request.Prompt) == "" {
		return nil, errors.New("completion prompt is empty")
	}

	systemPrompt := request.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = a.config.SystemPrompt
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.determineMaxTokens(request.Prompt, systemPrompt)
	}

	temperature := request.Temperature
	if temperature == 0 {
		temperature = a.config.Temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       a.selectModel(request.Model),
		Messages:    buildMessages(request.Prompt, systemPrompt),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Stream:      false,
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat completion")
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	response := &ports.CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}

	if resp.Usage.TotalTokens > 0 {
		response.Usage = &ports.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	a.logger.Debug("Completion finished", logutil.Fields{
		"model":         resp.Model,
		"finish_reason": response.FinishReason,
		"max_tokens":    maxTokens,
	})

	return response, nil
}

// Ping checks LLM connectivity by listing models
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return errors.Wrap(err, "LLM ping failed")
	}
	return nil
}

// determineMaxTokens reserves room for the reply within the context window,
// bounded to [minResponseTokens, maxResponseTokens].
func (a *Adapter) determineMaxTokens(prompt, systemPrompt string) int {
	remaining := a.config.ContextTokens
	if a.counter != nil {
		used := a.counter.CountPromptTokens(prompt, systemPrompt)
		remaining = a.counter.EstimateResponseTokens(a.config.ContextTokens, used)
	}

	if remaining < minResponseTokens {
		return minResponseTokens
	}
	if remaining > maxResponseTokens {
		return maxResponseTokens
	}
	return remaining
}

func (a *Adapter) selectModel(requestModel string) string {
	if requestModel != "" {
		return requestModel
	}
	return a.config.Model
}

func buildMessages(prompt, systemPrompt string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}
