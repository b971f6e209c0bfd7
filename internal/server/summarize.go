package server

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/llm"
)

const maxSummarizeBody = 1 << 20

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	if !cfg.Summary.Enabled {
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "Summarization disabled"})
		return
	}

	var req summarizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSummarizeBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request"})
		return
	}
	if req.Text == "" || utf8.RuneCountInString(req.Text) < cfg.Summary.MinLength {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Text too short"})
		return
	}

	sum, err := s.summarizerFor(cfg)
	if err != nil || sum == nil {
		if err != nil {
			s.logger.Warn("summarizer unavailable", "err", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "Summarization unavailable"})
		return
	}

	summary, err := sum.Summarize(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("summarization failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "AI Summarization failed"})
		return
	}
	writeJSON(w, http.StatusOK, summarizeResponse{Summary: summary})
}

func (s *Server) summarizerFor(cfg *config.Config) (llm.Summarizer, error) {
	if s.summarizer == nil {
		return nil, nil
	}
	return s.summarizer(cfg)
}
