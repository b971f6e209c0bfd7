package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const defaultConfigContent = `# Voiceflow Configuration
# This file is automatically generated with defaults.
# Edit values as needed - changes apply to new transcription sessions without a restart.

# HTTP / websocket server
[server]
  addr = ":5000"               # Listen address (PORT environment variable overrides it)
  static_dir = "frontend"      # Directory served at / (empty disables static files)
  allowed_origins = ["*"]      # Websocket origins accepted ("*" = any)
  write_timeout = "10s"        # Deadline for a single websocket write
  shutdown_timeout = "10s"     # Grace period for draining connections on shutdown

# Streaming speech recognition
[speech]
  provider = "deepgram"        # Recognition engine ("deepgram")
  api_key = ""                 # Engine key (or set SPEECH_KEY environment variable)
  region = ""                  # Engine region (or SPEECH_REGION; empty = global)
  endpoint = ""                # Full websocket endpoint override (or SPEECH_ENDPOINT)
  model = "nova-2"             # Recognition model
  language = "en-US"           # Used when the client does not send a language
  encoding = "linear16"        # Audio encoding of binary frames (empty = detect container)
  sample_rate = 16000          # Sample rate in Hz for raw encodings
  max_retries = 3              # Reconnection attempts before a session is canceled

# Language model used for translation and summaries
[llm]
  provider = "openai"          # "openai" or "groq"
  api_key = ""                 # Provider key (or set OPENAI_API_KEY environment variable)
  model = "gpt-4o-mini"        # Chat model

[translation]
  enabled = true               # Allow clients to request a target language
  interim = false              # Also translate interim results (more API calls)

[summary]
  enabled = true               # Serve POST /summarize
  min_length = 10              # Shorter transcripts are rejected

[log]
  level = "info"               # debug, info, warn, error
`

// SaveDefaultConfig writes the default configuration to the standard path.
func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveDefaultConfigTo(configPath)
}

func SaveDefaultConfigTo(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigContent), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save encodes cfg over the file at configPath. Comments in the existing
// file are not preserved.
func Save(cfg *Config, configPath string) error {
	var buf bytes.Buffer
	buf.WriteString("# Voiceflow Configuration\n# Written by `voiceflow configure`.\n\n")
	if err := toml.NewEncoder(&buf).Encode(fileConfig(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

type fileServer struct {
	Addr            string   `toml:"addr"`
	StaticDir       string   `toml:"static_dir"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	WriteTimeout    string   `toml:"write_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

// fileLayout mirrors Config with durations as strings so the written file
// reads like the generated default.
type fileLayout struct {
	Server      fileServer        `toml:"server"`
	Speech      SpeechConfig      `toml:"speech"`
	LLM         LLMConfig         `toml:"llm"`
	Translation TranslationConfig `toml:"translation"`
	Summary     SummaryConfig     `toml:"summary"`
	Log         LogConfig         `toml:"log"`
}

func fileConfig(c *Config) fileLayout {
	return fileLayout{
		Server: fileServer{
			Addr:            c.Server.Addr,
			StaticDir:       c.Server.StaticDir,
			AllowedOrigins:  c.Server.AllowedOrigins,
			WriteTimeout:    c.Server.WriteTimeout.String(),
			ShutdownTimeout: c.Server.ShutdownTimeout.String(),
		},
		Speech:      c.Speech,
		LLM:         c.LLM,
		Translation: c.Translation,
		Summary:     c.Summary,
		Log:         c.Log,
	}
}
