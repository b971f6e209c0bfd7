package relay

import (
	"sync"

	"github.com/charmbracelet/log"
)

const (
	EventTranscriptionUpdate = "transcription_update"
	EventError               = "error"
)

// Message is one outbound frame addressed to a single connection.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Event is anything the relay knows how to turn into a Message.
type Event interface {
	Outbound() Message
}

// Update is an interim or final recognition result.
type Update struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
	IsFinal     bool   `json:"is_final"`
}

func (u Update) Outbound() Message {
	return Message{Event: EventTranscriptionUpdate, Data: u}
}

// Emitter delivers a message to exactly one connection.
type Emitter interface {
	Emit(connID string, msg Message) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(connID string, msg Message) error

func (f EmitterFunc) Emit(connID string, msg Message) error {
	return f(connID, msg)
}

// Deliver sends a single event outside of any session queue.
func Deliver(e Emitter, connID string, ev Event) error {
	return e.Emit(connID, ev.Outbound())
}

// Relay forwards the events of one session to its connection, in the order
// they were published, from a single goroutine. The queue is unbounded so
// Publish never waits on a slow connection.
type Relay struct {
	connID  string
	emitter Emitter
	logger  *log.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	queue  []Event
	done   chan struct{}
}

func New(connID string, emitter Emitter, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	r := &Relay{
		connID:  connID,
		emitter: emitter,
		logger:  logger.WithPrefix("relay").With("conn", connID),
		done:    make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.run()
	return r
}

// Publish enqueues ev without blocking. It returns false once the relay is
// closed.
func (r *Relay) Publish(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("relay closed, dropping event", "event", ev.Outbound().Event)
		return false
	}
	r.queue = append(r.queue, ev)
	r.cond.Signal()
	return true
}

// Close stops accepting events, delivers what is already queued and waits for
// the consumer to exit. Safe to call more than once.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()

	<-r.done
}

func (r *Relay) run() {
	defer close(r.done)

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, ev := range batch {
			msg := ev.Outbound()
			if err := r.emitter.Emit(r.connID, msg); err != nil {
				r.logger.Debug("emit failed", "event", msg.Event, "err", err)
			}
		}
	}
}
