package config

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/leonardotrapani/voiceflow/internal/language"
)

// Validate checks structural settings. Missing API keys are not an error
// here: they surface per session as configuration errors so the server can
// still start and report them to clients.
func (c *Config) Validate() error {
	// Server
	if c.Server.Addr == "" {
		return fmt.Errorf("invalid server.addr: empty")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid server.write_timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid server.shutdown_timeout: %v", c.Server.ShutdownTimeout)
	}

	// Speech
	if c.Speech.Provider != "deepgram" {
		return fmt.Errorf("invalid speech.provider: %q (must be deepgram)", c.Speech.Provider)
	}
	if c.Speech.Language == "" {
		return fmt.Errorf("invalid speech.language: empty")
	}
	if !language.IsValid(c.Speech.Language) {
		return fmt.Errorf("invalid speech.language: %s", c.Speech.Language)
	}
	validEncodings := map[string]bool{"": true, "linear16": true, "mulaw": true, "opus": true, "flac": true}
	if !validEncodings[c.Speech.Encoding] {
		return fmt.Errorf("invalid speech.encoding: %s (must be linear16, mulaw, opus, flac, or empty)", c.Speech.Encoding)
	}
	if c.Speech.Encoding != "" && c.Speech.SampleRate <= 0 {
		return fmt.Errorf("invalid speech.sample_rate: %d", c.Speech.SampleRate)
	}
	if c.Speech.MaxRetries < 0 {
		return fmt.Errorf("invalid speech.max_retries: %d", c.Speech.MaxRetries)
	}

	// LLM
	validProviders := map[string]bool{"openai": true, "groq": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider: %s (must be openai or groq)", c.LLM.Provider)
	}

	if c.Summary.MinLength < 0 {
		return fmt.Errorf("invalid summary.min_length: %d", c.Summary.MinLength)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}

	return nil
}
