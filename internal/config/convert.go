package config

import (
	"github.com/leonardotrapani/voiceflow/internal/llm"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
)

func (c *Config) ToRecognizerConfig() recognizer.Config {
	return recognizer.Config{
		Provider:         c.Speech.Provider,
		APIKey:           c.Speech.APIKey,
		Region:           c.Speech.Region,
		Endpoint:         c.Speech.Endpoint,
		Model:            c.Speech.Model,
		Encoding:         c.Speech.Encoding,
		SampleRate:       c.Speech.SampleRate,
		MaxRetries:       c.Speech.MaxRetries,
		TranslateInterim: c.Translation.Interim,
		TranslationOff:   !c.Translation.Enabled,
	}
}

// ToLLMConfig returns the LLM adapter configuration
func (c *Config) ToLLMConfig() llm.Config {
	return llm.Config{
		Provider: c.LLM.Provider,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
	}
}

// IsTranslationEnabled returns true if translation is enabled and has credentials
func (c *Config) IsTranslationEnabled() bool {
	return c.Translation.Enabled && c.LLM.APIKey != ""
}

// IsSummaryEnabled returns true if summaries are enabled and have credentials
func (c *Config) IsSummaryEnabled() bool {
	return c.Summary.Enabled && c.LLM.APIKey != ""
}
