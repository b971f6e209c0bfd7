package server

import "encoding/json"

// inbound event names
const (
	EventStartTranscription = "start_transcription"
	EventAudioData          = "audio_data"
	EventStopTranscription  = "stop_transcription"
)

// envelope is a text frame: {"event": <name>, "data": <payload>}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type startPayload struct {
	Language       string `json:"language"`
	TargetLanguage string `json:"target_language"`
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}
