package llm

import (
	"context"
	"fmt"
)

// Translator renders recognized speech in another language.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Summarizer condenses a finished transcript.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config holds LLM adapter configuration
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewAdapter creates an LLM adapter based on the provider
func NewAdapter(cfg Config) (*OpenAIAdapter, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(cfg), nil
	case "groq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = groqBaseURL
		}
		return NewOpenAIAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
