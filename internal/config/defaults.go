package config

import "time"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			StaticDir:       "frontend",
			AllowedOrigins:  []string{"*"},
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Speech: SpeechConfig{
			Provider:   "deepgram",
			Model:      "nova-2",
			Language:   "en-US",
			Encoding:   "linear16",
			SampleRate: 16000,
			MaxRetries: 3,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Translation: TranslationConfig{
			Enabled: true,
			Interim: false,
		},
		Summary: SummaryConfig{
			Enabled:   true,
			MinLength: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
