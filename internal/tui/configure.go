package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/language"
	"github.com/muesli/termenv"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

var encodingOptions = []string{"linear16", "opus", "mulaw", "flac", ""}

// formValues is the editable subset of the configuration, as strings
// where huh needs them.
type formValues struct {
	Addr        string
	StaticDir   string
	SpeechKey   string
	Region      string
	Language    string
	Encoding    string
	SampleRate  string
	LLMProvider string
	LLMKey      string
	LLMModel    string
	Translate   bool
	Interim     bool
	Summaries   bool
}

func valuesFrom(cfg *config.Config) *formValues {
	return &formValues{
		Addr:        cfg.Server.Addr,
		StaticDir:   cfg.Server.StaticDir,
		SpeechKey:   cfg.Speech.APIKey,
		Region:      cfg.Speech.Region,
		Language:    cfg.Speech.Language,
		Encoding:    cfg.Speech.Encoding,
		SampleRate:  strconv.Itoa(cfg.Speech.SampleRate),
		LLMProvider: cfg.LLM.Provider,
		LLMKey:      cfg.LLM.APIKey,
		LLMModel:    cfg.LLM.Model,
		Translate:   cfg.Translation.Enabled,
		Interim:     cfg.Translation.Interim,
		Summaries:   cfg.Summary.Enabled,
	}
}

// apply writes the form back into a copy of cfg.
func (v *formValues) apply(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	out.Server.Addr = strings.TrimSpace(v.Addr)
	out.Server.StaticDir = strings.TrimSpace(v.StaticDir)
	out.Speech.APIKey = strings.TrimSpace(v.SpeechKey)
	out.Speech.Region = strings.TrimSpace(v.Region)
	lang, err := language.Normalize(v.Language)
	if err != nil {
		return nil, err
	}
	out.Speech.Language = lang
	out.Speech.Encoding = v.Encoding
	if v.SampleRate != "" {
		rate, err := strconv.Atoi(v.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("invalid sample rate %q", v.SampleRate)
		}
		out.Speech.SampleRate = rate
	}
	out.LLM.Provider = v.LLMProvider
	out.LLM.APIKey = strings.TrimSpace(v.LLMKey)
	out.LLM.Model = strings.TrimSpace(v.LLMModel)
	out.Translation.Enabled = v.Translate
	out.Translation.Interim = v.Interim
	out.Summary.Enabled = v.Summaries

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// languageOptions lists the common languages, keeping current selectable
// when it is not one of them.
func languageOptions(current string) []huh.Option[string] {
	var opts []huh.Option[string]
	found := false
	for _, l := range language.Common() {
		if l.Code == current {
			found = true
		}
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", l.Name, l.Code), l.Code))
	}
	if !found && current != "" {
		opts = append([]huh.Option[string]{huh.NewOption(language.Label(current), current)}, opts...)
	}
	return opts
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validSampleRate(s string) error {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err != nil || n <= 0 {
		return fmt.Errorf("sample rate must be a positive integer")
	}
	return nil
}

// Run starts the configuration form
func Run(existing *config.Config) (*ConfigureResult, error) {
	if existing == nil {
		existing = config.DefaultConfig()
	}
	v := valuesFrom(existing)

	clearScreen()
	fmt.Println(Logo())
	fmt.Println()

	encodings := make([]huh.Option[string], 0, len(encodingOptions))
	for _, e := range encodingOptions {
		label := e
		if e == "" {
			label = "auto-detect (webm/ogg containers)"
		}
		encodings = append(encodings, huh.NewOption(label, e))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Speech API key").
				Description("Leave empty to use SPEECH_KEY from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&v.SpeechKey),
			huh.NewInput().
				Title("Region").
				Description("Empty for the global endpoint").
				Value(&v.Region),
			huh.NewSelect[string]().
				Title("Default language").
				Description("Used when the client does not send one").
				Options(languageOptions(v.Language)...).
				Height(8).
				Value(&v.Language),
			huh.NewSelect[string]().
				Title("Audio encoding").
				Options(encodings...).
				Value(&v.Encoding),
			huh.NewInput().
				Title("Sample rate (Hz)").
				Validate(validSampleRate).
				Value(&v.SampleRate),
		).Title("Speech recognition"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Options(huh.NewOption("OpenAI", "openai"), huh.NewOption("Groq", "groq")).
				Value(&v.LLMProvider),
			huh.NewInput().
				Title("LLM API key").
				Description("Leave empty to use OPENAI_API_KEY from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&v.LLMKey),
			huh.NewInput().
				Title("Model").
				Validate(required("model")).
				Value(&v.LLMModel),
			huh.NewConfirm().
				Title("Enable translation?").
				Value(&v.Translate),
			huh.NewConfirm().
				Title("Translate interim results too?").
				Description("Lower latency for translated captions, more API calls").
				Value(&v.Interim),
			huh.NewConfirm().
				Title("Enable transcript summaries?").
				Value(&v.Summaries),
		).Title("Translation & summaries"),

		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Validate(required("address")).
				Value(&v.Addr),
			huh.NewInput().
				Title("Frontend directory").
				Description("Served at /, empty disables it").
				Value(&v.StaticDir),
		).Title("Server"),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}

	cfg, err := v.apply(existing)
	if err != nil {
		return nil, err
	}

	confirmed, err := showSummary(cfg)
	if err != nil || !confirmed {
		return &ConfigureResult{Cancelled: true}, nil
	}
	return &ConfigureResult{Config: cfg}, nil
}

// summaryLines renders the settings shown before saving; keys are masked.
func summaryLines(cfg *config.Config) []string {
	onOff := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}
	encoding := cfg.Speech.Encoding
	if encoding == "" {
		encoding = "auto-detect"
	}
	return []string{
		fmt.Sprintf("%s %s (%s)", StyleLabel.Render("Speech:"), cfg.Speech.Provider, cfg.Speech.Model),
		fmt.Sprintf("%s %s", StyleLabel.Render("Speech key:"), maskKey(cfg.Speech.APIKey)),
		fmt.Sprintf("%s %s, %s @ %d Hz", StyleLabel.Render("Language:"), language.Label(cfg.Speech.Language), encoding, cfg.Speech.SampleRate),
		fmt.Sprintf("%s %s (%s) key %s", StyleLabel.Render("LLM:"), cfg.LLM.Provider, cfg.LLM.Model, maskKey(cfg.LLM.APIKey)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Translation:"), onOff(cfg.Translation.Enabled)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Summaries:"), onOff(cfg.Summary.Enabled)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Listen:"), cfg.Server.Addr),
	}
}

func maskKey(key string) string {
	if key == "" {
		return StyleWarning.Render("(from environment)")
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	for _, line := range summaryLines(cfg) {
		fmt.Println("  " + line)
	}
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}
