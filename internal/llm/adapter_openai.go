package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to any OpenAI-compatible chat completions API
type OpenAIAdapter struct {
	client *openai.Client
	config Config
	logger *log.Logger
}

var (
	_ Translator = (*OpenAIAdapter)(nil)
	_ Summarizer = (*OpenAIAdapter)(nil)
)

// NewOpenAIAdapter creates a new OpenAI LLM adapter
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: log.Default().WithPrefix("llm"),
	}
}

// WithLogger swaps the adapter's logger
func (a *OpenAIAdapter) WithLogger(logger *log.Logger) *OpenAIAdapter {
	if logger != nil {
		a.logger = logger.WithPrefix("llm")
	}
	return a
}

func (a *OpenAIAdapter) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" || to == "" {
		return "", nil
	}
	return a.complete(ctx, BuildTranslationPrompt(from, to), text, 0)
}

func (a *OpenAIAdapter) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return a.complete(ctx, BuildSummaryPrompt(), text, 0.3)
}

func (a *OpenAIAdapter) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	model := a.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		a.logger.Warn("chat completion failed", "model", model, "duration", duration, "err", err)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no response choices")
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	a.logger.Debug("chat completion", "model", model, "duration", duration, "in", len(userPrompt), "out", len(result))
	return result, nil
}
