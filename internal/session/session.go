package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/relay"
)

type State string
type StopReason string

const (
	Idle    State = "idle"
	Active  State = "active"
	Stopped State = "stopped"
)

const (
	ReasonStopped      StopReason = "stopped"
	ReasonCanceled     StopReason = "canceled"
	ReasonDisconnected StopReason = "disconnected"
	ReasonStartFailed  StopReason = "start_failed"
	ReasonReplaced     StopReason = "replaced"
)

// Session is the transcription pipeline of one connection. It owns one
// engine (and through it the audio sink) and one relay queue.
type Session struct {
	id     string
	opts   recognizer.Options
	engine recognizer.Engine
	relay  *relay.Relay
	logger *log.Logger

	mu        sync.Mutex
	state     State
	reason    StopReason
	onRelease func(*Session)
	startedAt time.Time

	teardown sync.Once
}

// New builds an idle session. When the factory refuses to build an engine
// (missing credentials, unknown provider) no resources are held and the
// factory's error is returned wrapped.
func New(id string, opts recognizer.Options, factory recognizer.Factory, emitter relay.Emitter, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		id:     id,
		opts:   opts,
		state:  Idle,
		logger: logger.WithPrefix("session").With("conn", id),
	}

	engine, err := factory.NewEngine(opts, callbacks{s})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	s.engine = engine
	s.relay = relay.New(id, emitter, logger)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Options() recognizer.Options {
	return s.opts
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason is empty until the session has stopped.
func (s *Session) Reason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Start moves the session from idle to active. An engine failure is relayed
// to the connection as an error event, the session tears itself down and
// leaves the registry, and the error is returned for logging only.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %s: cannot start in state %s", s.id, state)
	}
	s.state = Active
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.engine.Start(ctx); err != nil {
		s.relay.Publish(relay.ClassifyStartError(err))
		s.terminate(ReasonStartFailed)
		return fmt.Errorf("start engine: %w", err)
	}

	s.logger.Info("session started", "language", s.opts.Language, "target", s.opts.TargetLanguage)
	return nil
}

// IngestAudio forwards a chunk to the engine. Chunks arriving while the
// session is not active are dropped silently.
func (s *Session) IngestAudio(chunk []byte) {
	if s.State() != Active {
		s.logger.Debug("late audio ignored", "bytes", len(chunk))
		return
	}
	if err := s.engine.WriteAudio(chunk); err != nil {
		// lost the race against teardown
		s.logger.Debug("audio dropped", "bytes", len(chunk), "err", err)
	}
}

func (s *Session) Stop() {
	s.StopWith(ReasonStopped)
}

// StopWith releases the engine and the relay exactly once. Later calls are
// no-ops whatever their reason.
func (s *Session) StopWith(reason StopReason) {
	s.teardown.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = Stopped
		s.reason = reason
		startedAt := s.startedAt
		s.mu.Unlock()

		if err := s.engine.Stop(); err != nil {
			s.logger.Warn("engine stop failed", "err", err)
		}
		s.relay.Close()

		if prev == Active {
			s.logger.Info("session stopped", "reason", reason, "duration", time.Since(startedAt).Round(time.Millisecond))
		} else {
			s.logger.Info("session stopped", "reason", reason, "from", prev)
		}
	})
}

// terminate is the self-initiated teardown path: stop, then leave the registry.
func (s *Session) terminate(reason StopReason) {
	s.StopWith(reason)

	s.mu.Lock()
	release := s.onRelease
	s.mu.Unlock()
	if release != nil {
		release(s)
	}
}

func (s *Session) bind(release func(*Session)) {
	s.mu.Lock()
	s.onRelease = release
	s.mu.Unlock()
}

// callbacks receives engine events on the engine goroutine and only ever
// hands them to the relay queue.
type callbacks struct {
	s *Session
}

func (c callbacks) OnInterim(text, translation string) {
	if c.s.State() != Active {
		return
	}
	c.s.relay.Publish(relay.Update{Text: text, Translation: translation})
}

func (c callbacks) OnFinal(text, translation string, recognized bool) {
	if !recognized {
		c.s.logger.Debug("final result without speech")
		return
	}
	if c.s.State() != Active {
		return
	}
	c.s.relay.Publish(relay.Update{Text: text, Translation: translation, IsFinal: true})
}

func (c callbacks) OnCanceled(reason recognizer.CancellationReason, details string) {
	ev := relay.Classify(reason, details)
	c.s.logger.Warn("recognition canceled", "reason", reason, "details", details, "kind", ev.Kind)
	c.s.relay.Publish(ev)

	// the engine waits for this goroutine in Stop, so tear down elsewhere
	go c.s.terminate(ReasonCanceled)
}
