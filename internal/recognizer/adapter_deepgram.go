package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	deepgramDefaultHost = "wss://api.deepgram.com"
	deepgramListenPath  = "/v1/listen"
	pushStreamSize      = 256
)

// DeepgramEngine implements Engine over Deepgram's live transcription websocket.
type DeepgramEngine struct {
	cfg        Config
	opts       Options
	handler    Handler
	translator Translator
	logger     *log.Logger
	stream     *PushStream

	mu      sync.Mutex // guards conn, ctx, cancel, dialing, started, stopped
	writeMu sync.Mutex // one websocket writer at a time
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	dialing bool
	started bool
	stopped bool
	wg      sync.WaitGroup

	maxRetries  int
	retryDelays []time.Duration
}

// deepgramControl is a control message sent as a text frame
type deepgramControl struct {
	Type string `json:"type"`
}

// Deepgram WebSocket response types (incoming)
type deepgramWSResponse struct {
	Type        string            `json:"type"`
	Channel     *deepgramChannel  `json:"channel,omitempty"`
	Metadata    *deepgramMetadata `json:"metadata,omitempty"`
	Error       *deepgramError    `json:"error,omitempty"`
	Description string            `json:"description,omitempty"`
	Message     string            `json:"message,omitempty"`
	IsFinal     bool              `json:"is_final,omitempty"`
	SpeechFinal bool              `json:"speech_final,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
	ModelInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"model_info"`
}

type deepgramError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func NewDeepgramEngine(cfg Config, opts Options, h Handler, translator Translator, logger *log.Logger) *DeepgramEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &DeepgramEngine{
		cfg:         cfg,
		opts:        opts,
		handler:     h,
		translator:  translator,
		logger:      logger.WithPrefix("deepgram"),
		stream:      NewPushStream(pushStreamSize),
		maxRetries:  cfg.MaxRetries,
		retryDelays: defaultRetryDelays,
	}
}

// Start dials outside mu so a concurrent Stop can cancel the handshake.
func (e *DeepgramEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.started || e.dialing {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.dialing = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	conn, err := e.dial()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.dialing = false

	if e.stopped {
		if conn != nil {
			conn.Close()
		}
		e.cancel()
		return ErrStopped
	}
	if err != nil {
		e.cancel()
		return err
	}
	e.conn = conn
	e.started = true

	e.wg.Add(2)
	go e.readLoop()
	go e.sendLoop()

	e.logger.Info("connected", "model", e.cfg.Model, "language", e.opts.Language, "target", e.opts.TargetLanguage)
	return nil
}

func (e *DeepgramEngine) dial() (*websocket.Conn, error) {
	wsURL, err := e.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	e.logger.Debug("dialing", "url", wsURL)
	conn, resp, err := websocket.DefaultDialer.DialContext(e.ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// reconnect re-establishes the connection with backoff. Returns true on success.
// Dialing happens outside mu.
func (e *DeepgramEngine) reconnect() bool {
	e.mu.Lock()
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= len(e.retryDelays) {
				idx = len(e.retryDelays) - 1
			}
			delay := e.retryDelays[idx]
			e.logger.Warn("reconnecting", "attempt", attempt+1, "max", e.maxRetries, "delay", delay)

			select {
			case <-e.ctx.Done():
				return false
			case <-time.After(delay):
			}
		} else {
			e.logger.Warn("reconnecting", "attempt", attempt+1, "max", e.maxRetries)
		}

		if e.ctx.Err() != nil {
			return false
		}
		conn, err := e.dial()

		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return false
		}
		if err == nil {
			e.conn = conn
		}
		e.mu.Unlock()

		if err == nil {
			e.logger.Info("reconnected")
			return true
		}
		e.logger.Warn("reconnect failed", "err", err)
	}
	return false
}

func (e *DeepgramEngine) baseURL() string {
	if e.cfg.Endpoint != "" {
		return e.cfg.Endpoint
	}
	switch e.cfg.Region {
	case "", "us", "global":
		return deepgramDefaultHost
	default:
		return "wss://api." + e.cfg.Region + ".deepgram.com"
	}
}

// buildURL constructs the WebSocket URL with query parameters
func (e *DeepgramEngine) buildURL() (string, error) {
	base := e.baseURL()
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = deepgramListenPath
	}

	q := u.Query()
	if e.cfg.Model != "" {
		q.Set("model", e.cfg.Model)
	}
	// empty encoding lets the engine sniff containerized audio (webm/ogg)
	if e.cfg.Encoding != "" {
		q.Set("encoding", e.cfg.Encoding)
		if e.cfg.SampleRate > 0 {
			q.Set("sample_rate", strconv.Itoa(e.cfg.SampleRate))
		}
		q.Set("channels", "1")
	}
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if e.opts.Language != "" {
		q.Set("language", e.opts.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *DeepgramEngine) currentConn() *websocket.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// readLoop turns engine messages into handler callbacks
func (e *DeepgramEngine) readLoop() {
	defer e.wg.Done()

	for {
		if e.ctx.Err() != nil {
			return
		}

		conn := e.currentConn()
		if conn == nil {
			if !e.reconnect() {
				e.cancelWith(ReasonError, fmt.Sprintf("connection lost, reconnection failed after %d attempts", e.maxRetries))
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				e.logger.Info("stream closed by engine")
				e.cancelWith(ReasonEndOfStream, "")
				return
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
				// the engine rejected the stream itself, retrying won't help
				e.cancelWith(ReasonError, closeErr.Text)
				return
			}

			e.logger.Warn("read error, attempting reconnection", "err", err)
			if !e.reconnect() {
				e.cancelWith(ReasonError, fmt.Sprintf("websocket read: %v, reconnection failed", err))
				return
			}
			continue
		}

		var resp deepgramWSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			e.logger.Warn("parse error", "err", err)
			continue
		}

		if done := e.dispatch(resp); done {
			return
		}
	}
}

// dispatch handles one decoded message. It returns true when the stream is
// over and the read loop must exit.
func (e *DeepgramEngine) dispatch(resp deepgramWSResponse) bool {
	switch resp.Type {
	case "Metadata":
		if resp.Metadata != nil {
			e.logger.Debug("session metadata", "request_id", resp.Metadata.RequestID, "model", resp.Metadata.ModelInfo.Name)
		}

	case "Results":
		if resp.Channel == nil {
			return false
		}
		var transcript string
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}

		if !resp.IsFinal {
			if transcript == "" {
				return false
			}
			var translation string
			if e.cfg.TranslateInterim {
				translation = e.translate(transcript)
			}
			e.handler.OnInterim(transcript, translation)
			return false
		}

		recognized := transcript != ""
		var translation string
		if recognized {
			translation = e.translate(transcript)
		}
		e.logger.Debug("final", "text", transcript, "recognized", recognized)
		e.handler.OnFinal(transcript, translation, recognized)

	case "Error":
		details := resp.Description
		if resp.Error != nil {
			details = resp.Error.Message
			if resp.Error.Description != "" {
				details = fmt.Sprintf("%s: %s", details, resp.Error.Description)
			}
		} else if resp.Message != "" {
			details = resp.Message
		}
		e.logger.Error("engine error", "details", details)
		e.cancelWith(ReasonError, details)
		return true

	case "UtteranceEnd", "SpeechStarted":
		e.logger.Debug(resp.Type)

	default:
		e.logger.Debug("unknown message type", "type", resp.Type)
	}
	return false
}

func (e *DeepgramEngine) cancelWith(reason CancellationReason, details string) {
	if e.ctx.Err() != nil {
		// Stop is in progress, nobody is listening for a cancellation
		return
	}
	e.handler.OnCanceled(reason, details)
}

// translate returns the single target-language rendering of text, or "" when
// translation is off or fails.
func (e *DeepgramEngine) translate(text string) string {
	if e.translator == nil || e.opts.TargetLanguage == "" {
		return ""
	}
	out, err := e.translator.Translate(e.ctx, text, e.opts.Language, e.opts.TargetLanguage)
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Warn("translation failed", "err", err)
		}
		return ""
	}
	return out
}

// sendLoop drains the push stream into the websocket in arrival order
func (e *DeepgramEngine) sendLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case chunk, ok := <-e.stream.Chunks():
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			conn := e.currentConn()
			if conn == nil {
				e.logger.Debug("no connection, dropping chunk", "bytes", len(chunk))
				continue
			}
			e.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, chunk)
			e.writeMu.Unlock()
			if err != nil && e.ctx.Err() == nil {
				// the read loop owns reconnection
				e.logger.Warn("write error, dropping chunk", "err", err, "bytes", len(chunk))
			}
		}
	}
}

func (e *DeepgramEngine) WriteAudio(chunk []byte) error {
	return e.stream.Write(chunk)
}

func (e *DeepgramEngine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	started := e.started
	cancel := e.cancel
	conn := e.conn
	e.mu.Unlock()

	e.stream.Close()

	if cancel != nil {
		cancel()
	}
	if !started {
		return nil
	}

	if conn != nil {
		e.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteJSON(deepgramControl{Type: "CloseStream"})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		e.writeMu.Unlock()
	}

	// a reconnect may have swapped the connection in the meantime
	e.mu.Lock()
	if e.conn != nil {
		e.conn.Close()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("stopped")
	return nil
}
