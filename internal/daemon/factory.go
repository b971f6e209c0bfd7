package daemon

import (
	"github.com/charmbracelet/log"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/llm"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
)

// engineFactory builds engines from the configuration current when a
// session starts, so reloaded credentials apply to the next session.
func engineFactory(current func() *config.Config, logger *log.Logger) recognizer.Factory {
	return recognizer.FactoryFunc(func(opts recognizer.Options, h recognizer.Handler) (recognizer.Engine, error) {
		cfg := current()

		var translator recognizer.Translator
		if opts.TargetLanguage != "" {
			t, err := translatorFor(cfg, logger)
			if err != nil {
				return nil, &recognizer.ConfigurationError{Field: "llm", Msg: err.Error()}
			}
			if t != nil {
				translator = t
			}
		}

		return recognizer.New(cfg.ToRecognizerConfig(), opts, h, translator, logger)
	})
}

// translatorFor returns nil when translation is disabled or has no key.
func translatorFor(cfg *config.Config, logger *log.Logger) (*llm.OpenAIAdapter, error) {
	if !cfg.IsTranslationEnabled() {
		return nil, nil
	}
	adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
	if err != nil {
		return nil, err
	}
	return adapter.WithLogger(logger), nil
}

func summarizerFor(logger *log.Logger) func(cfg *config.Config) (llm.Summarizer, error) {
	return func(cfg *config.Config) (llm.Summarizer, error) {
		if !cfg.IsSummaryEnabled() {
			return nil, nil
		}
		adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(logger), nil
	}
}
