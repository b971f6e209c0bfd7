package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/voiceflow/internal/language"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/relay"
	"github.com/leonardotrapani/voiceflow/internal/session"
)

const maxFrameSize = 1 << 20

// client is one websocket connection. Writes come from several session
// relays over its lifetime, reads only from the handler goroutine.
type client struct {
	id   string
	ws   *websocket.Conn
	wmu  sync.Mutex
	once sync.Once
}

func (c *client) writeJSON(v any, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if timeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.ws.WriteJSON(v)
}

func (c *client) close() {
	c.once.Do(func() {
		c.wmu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		c.wmu.Unlock()
		c.ws.Close()
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		s.logger.Warn("websocket upgrade failed", "err", err, "origin", r.Header.Get("Origin"))
		return
	}

	c := &client{id: uuid.NewString(), ws: ws}
	s.mu.Lock()
	s.clients[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	logger := s.logger.With("conn", c.id)
	logger.Info("client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.disconnect(c)
		logger.Info("client disconnected")
		s.wg.Done()
	}()

	ws.SetReadLimit(maxFrameSize)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("read error", "err", err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			s.ingest(c.id, data)
		case websocket.TextMessage:
			s.dispatch(ctx, c.id, data)
		}
	}
}

// disconnect tears down the session first so its queued events still have
// a connection to go to, then forgets the connection.
func (s *Server) disconnect(c *client) {
	s.registry.RemoveWith(c.id, session.ReasonDisconnected)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.close()
}

func (s *Server) dispatch(ctx context.Context, connID string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.protocolError(connID, "Invalid message")
		return
	}

	switch env.Event {
	case EventStartTranscription:
		var p startPayload
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				s.protocolError(connID, "Invalid start_transcription payload")
				return
			}
		}
		s.startTranscription(ctx, connID, p)

	case EventAudioData:
		var encoded string
		if err := json.Unmarshal(env.Data, &encoded); err != nil {
			s.protocolError(connID, "Invalid audio_data payload")
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.protocolError(connID, "Invalid audio_data payload")
			return
		}
		s.ingest(connID, chunk)

	case EventStopTranscription:
		s.registry.Remove(connID)

	default:
		s.protocolError(connID, fmt.Sprintf("Unknown event: %s", env.Event))
	}
}

func (s *Server) startTranscription(ctx context.Context, connID string, p startPayload) {
	lang, err := language.Normalize(p.Language)
	if err != nil {
		s.protocolError(connID, fmt.Sprintf("Invalid language: %s", p.Language))
		return
	}
	target, err := language.Normalize(p.TargetLanguage)
	if err != nil {
		s.protocolError(connID, fmt.Sprintf("Invalid language: %s", p.TargetLanguage))
		return
	}

	opts := recognizer.Options{Language: lang, TargetLanguage: target}
	if opts.Language == "" {
		opts.Language = s.config().Speech.Language
	}
	s.logger.Debug("starting transcription", "conn", connID,
		"language", language.Label(opts.Language), "target", language.Label(opts.TargetLanguage))

	sess, err := session.New(connID, opts, s.factory, s, s.logger)
	if err != nil {
		s.logger.Warn("cannot create session", "conn", connID, "err", err)
		if err := relay.Deliver(s, connID, relay.ClassifyStartError(err)); err != nil {
			s.logger.Debug("error event not delivered", "conn", connID, "err", err)
		}
		return
	}

	s.registry.Register(connID, sess)
	if err := sess.Start(ctx); err != nil {
		// already relayed to the client by the session
		s.logger.Warn("session failed to start", "conn", connID, "err", err)
	}
}

// ingest forwards audio to the live session of connID, if there is one.
func (s *Server) ingest(connID string, chunk []byte) {
	sess := s.registry.Lookup(connID)
	if sess == nil {
		return
	}
	sess.IngestAudio(chunk)
}

func (s *Server) protocolError(connID, msg string) {
	ev := relay.ErrorEvent{Message: msg, Kind: relay.KindProtocol}
	if err := relay.Deliver(s, connID, ev); err != nil {
		s.logger.Debug("error event not delivered", "conn", connID, "err", err)
	}
}
