package session

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Registry maps connection ids to their one live session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.WithPrefix("registry"),
	}
}

// Register makes s the session of id. A previous occupant is fully stopped
// before Register returns.
func (r *Registry) Register(id string, s *Session) {
	s.bind(func(done *Session) { r.Release(id, done) })

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if old != nil && old != s {
		r.logger.Info("replacing session", "conn", id)
		old.StopWith(ReasonReplaced)
	}
}

func (r *Registry) Lookup(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *Registry) Remove(id string) bool {
	return r.RemoveWith(id, ReasonStopped)
}

// RemoveWith evicts and stops the session of id, if any.
func (r *Registry) RemoveWith(id string, reason StopReason) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.StopWith(reason)
	return true
}

// Release evicts s only while it is still the session of id.
func (r *Registry) Release(id string, s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	s.StopWith(ReasonStopped)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll empties the registry and stops every session in parallel.
func (r *Registry) StopAll(reason StopReason) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.StopWith(reason)
		}(s)
	}
	wg.Wait()

	if len(sessions) > 0 {
		r.logger.Info("stopped all sessions", "count", len(sessions), "reason", reason)
	}
}
