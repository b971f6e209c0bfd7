package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	EnvSpeechKey      = "SPEECH_KEY"
	EnvSpeechRegion   = "SPEECH_REGION"
	EnvSpeechEndpoint = "SPEECH_ENDPOINT"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvPort           = "PORT"
	EnvLogLevel       = "VOICEFLOW_LOG_LEVEL"
)

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "voiceflow")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

// LoadDotEnv reads KEY=value pairs from files (default ".env") into the
// process environment without overriding variables that are already set.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// Load reads the config file, creating it with defaults when missing, and
// applies environment overrides.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

func LoadFile(configPath string) (*Config, error) {
	config, err := ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	config.applyEnv()
	return config, nil
}

// ReadFile is LoadFile without environment overrides; configure uses it so
// credentials from the environment are not written back to disk.
func ReadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		log.Info("no config file found, creating with defaults", "path", configPath)
		if err := SaveDefaultConfigTo(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Debug("loading configuration", "path", configPath)
	config := DefaultConfig()
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return config, nil
}

// applyEnv fills unset credentials from the environment (and .env); PORT
// and the log level always win over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSpeechKey); v != "" && c.Speech.APIKey == "" {
		c.Speech.APIKey = v
	}
	if v := os.Getenv(EnvSpeechRegion); v != "" && c.Speech.Region == "" {
		c.Speech.Region = v
	}
	if v := os.Getenv(EnvSpeechEndpoint); v != "" && c.Speech.Endpoint == "" {
		c.Speech.Endpoint = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}
