package recognizer

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// CancellationReason says why an engine stopped producing results on its own.
type CancellationReason int

const (
	// ReasonError means the engine hit an unrecoverable failure.
	ReasonError CancellationReason = iota
	// ReasonEndOfStream means the engine closed the stream normally.
	ReasonEndOfStream
)

func (r CancellationReason) String() string {
	switch r {
	case ReasonError:
		return "Error"
	case ReasonEndOfStream:
		return "EndOfStream"
	default:
		return fmt.Sprintf("CancellationReason(%d)", int(r))
	}
}

// Handler receives engine callbacks. Calls arrive on the engine's own
// goroutine, one at a time, in the order the engine produced them.
// Implementations must not call Engine.Stop synchronously from a callback.
type Handler interface {
	OnInterim(text, translation string)
	// OnFinal reports a completed utterance. recognized is false when the
	// engine finalized a segment without matching any speech.
	OnFinal(text, translation string, recognized bool)
	OnCanceled(reason CancellationReason, details string)
}

// Engine is one streaming recognition session against an external engine.
type Engine interface {
	// Start connects and begins continuous recognition. A second call fails
	// with ErrAlreadyStarted.
	Start(ctx context.Context) error

	// WriteAudio appends a chunk to the engine's push stream. After Stop it
	// returns ErrStreamClosed and the chunk is dropped.
	WriteAudio(chunk []byte) error

	// Stop halts recognition and closes the push stream. It is idempotent and
	// safe to call when Start was never called or failed halfway.
	Stop() error
}

// Options selects the languages of a single engine.
type Options struct {
	Language       string
	TargetLanguage string // empty disables translation
}

// Translator turns recognized text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Factory builds engines for new sessions.
type Factory interface {
	NewEngine(opts Options, h Handler) (Engine, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(opts Options, h Handler) (Engine, error)

func (f FactoryFunc) NewEngine(opts Options, h Handler) (Engine, error) {
	return f(opts, h)
}

// Config for the recognition engine
type Config struct {
	Provider         string
	APIKey           string
	Region           string
	Endpoint         string
	Model            string
	Encoding         string
	SampleRate       int
	MaxRetries       int
	TranslateInterim bool
	// TranslationOff rejects sessions that ask for a target language.
	TranslationOff   bool
}

func DefaultConfig() Config {
	return Config{
		Provider:   "deepgram",
		Model:      "nova-2",
		Encoding:   "linear16",
		SampleRate: 16000,
		MaxRetries: 3,
	}
}

// default retry delays for reconnection (exponential backoff: 1s, 2s, 4s)
var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// New creates an engine for the configured provider. Missing credentials
// yield a *ConfigurationError. translator may be nil when opts has no target
// language.
func New(cfg Config, opts Options, h Handler, translator Translator, logger *log.Logger) (Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("recognizer: nil handler")
	}
	if logger == nil {
		logger = log.Default()
	}

	switch cfg.Provider {
	case "deepgram", "":
		if cfg.APIKey == "" {
			return nil, &ConfigurationError{Field: "speech.api_key", Msg: "Speech API key missing"}
		}
	default:
		return nil, &ConfigurationError{Field: "speech.provider", Msg: fmt.Sprintf("unsupported speech provider: %s", cfg.Provider)}
	}

	if opts.TargetLanguage != "" {
		if cfg.TranslationOff {
			return nil, &ConfigurationError{Field: "translation", Msg: "Translation is disabled on this server"}
		}
		if translator == nil {
			return nil, &ConfigurationError{Field: "translation", Msg: "Translation requested but no translation credentials are configured"}
		}
	}

	return NewDeepgramEngine(cfg, opts, h, translator, logger), nil
}
