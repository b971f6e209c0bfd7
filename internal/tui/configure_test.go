package tui

import (
	"strings"
	"testing"

	"github.com/leonardotrapani/voiceflow/internal/config"
)

func TestFormValuesRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Speech.APIKey = "dg-key"

	v := valuesFrom(cfg)
	v.Language = "it_IT"
	v.Encoding = ""
	v.LLMProvider = "groq"
	v.Interim = true

	out, err := v.apply(cfg)
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if out.Speech.Language != "it-IT" || out.Speech.Encoding != "" || out.LLM.Provider != "groq" || !out.Translation.Interim {
		t.Errorf("apply() = %+v", out)
	}
	if out.Speech.APIKey != "dg-key" {
		t.Errorf("APIKey = %q", out.Speech.APIKey)
	}
	if cfg.Speech.Language != "en-US" {
		t.Error("apply() modified the original config")
	}
}

func TestFormValuesRejectsInvalid(t *testing.T) {
	cfg := config.DefaultConfig()

	v := valuesFrom(cfg)
	v.SampleRate = "fast"
	if _, err := v.apply(cfg); err == nil {
		t.Error("apply() accepted a non-numeric sample rate")
	}

	v = valuesFrom(cfg)
	v.Addr = ""
	if _, err := v.apply(cfg); err == nil {
		t.Error("apply() accepted an empty address")
	}
}

func TestLanguageOptions(t *testing.T) {
	opts := languageOptions("en-US")
	if len(opts) == 0 || opts[0].Value != "en-US" {
		t.Fatalf("first option = %+v, want en-US", opts[0])
	}

	custom := languageOptions("eo")
	if custom[0].Value != "eo" || len(custom) != len(opts)+1 {
		t.Errorf("custom language not kept: %d options, first %+v", len(custom), custom[0])
	}
}

func TestValidators(t *testing.T) {
	if err := required("language")("  "); err == nil {
		t.Error("required() accepted blank input")
	}
	if err := validSampleRate("0"); err == nil {
		t.Error("validSampleRate() accepted 0")
	}
	if err := validSampleRate("48000"); err != nil {
		t.Errorf("validSampleRate(48000) = %v", err)
	}
}

func TestSummaryLinesMaskKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Speech.APIKey = "secret-key-1234"

	joined := strings.Join(summaryLines(cfg), "\n")
	if strings.Contains(joined, "secret-key") {
		t.Error("summary leaks the API key")
	}
	if !strings.Contains(joined, "1234") {
		t.Error("summary should show the key suffix")
	}
	if !strings.Contains(joined, "from environment") {
		t.Error("empty LLM key should point at the environment")
	}
}
