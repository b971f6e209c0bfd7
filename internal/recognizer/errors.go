package recognizer

import "errors"

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrStopped        = errors.New("engine stopped")
	ErrStreamClosed   = errors.New("audio stream closed")
)

// ConfigurationError reports credentials or settings that prevent an engine
// from being built at all.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e == nil || e.Msg == "" {
		return "speech configuration error"
	}
	return e.Msg
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
