package relay

import (
	"errors"
	"strings"

	"github.com/leonardotrapani/voiceflow/internal/recognizer"
)

// AuthFailureMessage replaces raw engine details when credentials were rejected.
const AuthFailureMessage = "Speech service authentication failed. Please check your credentials."

type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindAuthentication ErrorKind = "authentication"
	KindCanceled       ErrorKind = "canceled"
	KindStartFailed    ErrorKind = "start_failed"
	KindProtocol       ErrorKind = "protocol"
)

// ErrorEvent is relayed to the client as an "error" message.
type ErrorEvent struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"-"`
}

func (e ErrorEvent) Outbound() Message {
	return Message{Event: EventError, Data: e}
}

// markers found in engine failure text when credentials are rejected;
// substring matching is a heuristic, not a guarantee
var authMarkers = []string{"401", "authentication", "unauthorized"}

func isAuthFailure(details string) bool {
	lower := strings.ToLower(details)
	for _, m := range authMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Classify turns an engine cancellation into the error relayed to the client.
func Classify(reason recognizer.CancellationReason, details string) ErrorEvent {
	if reason == recognizer.ReasonError && isAuthFailure(details) {
		return ErrorEvent{Message: AuthFailureMessage, Kind: KindAuthentication}
	}
	msg := details
	if msg == "" {
		msg = reason.String()
	}
	return ErrorEvent{Message: msg, Kind: KindCanceled}
}

// ClassifyStartError turns a failure to create or start an engine into the
// error relayed to the client.
func ClassifyStartError(err error) ErrorEvent {
	if err == nil {
		return ErrorEvent{Message: "unknown error", Kind: KindStartFailed}
	}
	var cfgErr *recognizer.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ErrorEvent{Message: cfgErr.Error(), Kind: KindConfiguration}
	}
	if isAuthFailure(err.Error()) {
		return ErrorEvent{Message: AuthFailureMessage, Kind: KindAuthentication}
	}
	return ErrorEvent{Message: err.Error(), Kind: KindStartFailed}
}
