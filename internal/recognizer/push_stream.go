package recognizer

import "sync"

// PushStream is the audio sink of an engine: a FIFO of chunks with a single
// producer (the session) and a single consumer (the engine's send loop).
// Close may race with Write; the loser sees ErrStreamClosed.
type PushStream struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewPushStream(size int) *PushStream {
	if size <= 0 {
		size = 64
	}
	return &PushStream{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// Write copies chunk into the stream, blocking while the buffer is full.
func (s *PushStream) Write(chunk []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStreamClosed
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	select {
	case s.ch <- buf:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// Chunks is closed once the stream is closed and drained.
func (s *PushStream) Chunks() <-chan []byte {
	return s.ch
}

func (s *PushStream) Done() <-chan struct{} {
	return s.done
}

func (s *PushStream) Close() error {
	s.once.Do(func() {
		// release writers blocked on a full buffer before taking the lock
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}
