package config

import "time"

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Speech      SpeechConfig      `toml:"speech"`
	LLM         LLMConfig         `toml:"llm"`
	Translation TranslationConfig `toml:"translation"`
	Summary     SummaryConfig     `toml:"summary"`
	Log         LogConfig         `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	StaticDir       string        `toml:"static_dir"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// SpeechConfig configures the streaming recognition engine
type SpeechConfig struct {
	Provider   string `toml:"provider"`
	APIKey     string `toml:"api_key"`
	Region     string `toml:"region"`
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	Language   string `toml:"language"` // used when the client does not send one
	Encoding   string `toml:"encoding"`
	SampleRate int    `toml:"sample_rate"`
	MaxRetries int    `toml:"max_retries"`
}

// LLMConfig is shared by translation and summaries
type LLMConfig struct {
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

type TranslationConfig struct {
	Enabled bool `toml:"enabled"`
	Interim bool `toml:"interim"` // also translate interim results
}

type SummaryConfig struct {
	Enabled   bool `toml:"enabled"`
	MinLength int  `toml:"min_length"`
}

type LogConfig struct {
	Level string `toml:"level"`
}
