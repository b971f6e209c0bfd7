package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/relay"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.StaticDir = ""
	cfg.Server.WriteTimeout = 2 * time.Second
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Speech.APIKey = "test-speech-key"
	cfg.LLM.APIKey = "test-api-key"
	cfg.Log.Level = "debug"
	return cfg
}

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// MockEngine implements recognizer.Engine for testing. Tests drive the
// handler directly through Interim, Final and Cancel.
type MockEngine struct {
	Opts     recognizer.Options
	Handler  recognizer.Handler
	StartErr error

	mu         sync.Mutex
	startCalls int
	stopCalls  int
	started    bool
	stopped    bool
	chunks     [][]byte
}

func (m *MockEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.stopped {
		return recognizer.ErrStopped
	}
	if m.started {
		return recognizer.ErrAlreadyStarted
	}
	m.started = true
	return nil
}

func (m *MockEngine) WriteAudio(chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return recognizer.ErrStreamClosed
	}
	m.chunks = append(m.chunks, append([]byte(nil), chunk...))
	return nil
}

func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.stopped = true
	return nil
}

func (m *MockEngine) Interim(text, translation string) {
	m.Handler.OnInterim(text, translation)
}

func (m *MockEngine) Final(text, translation string, recognized bool) {
	m.Handler.OnFinal(text, translation, recognized)
}

func (m *MockEngine) Cancel(reason recognizer.CancellationReason, details string) {
	m.Handler.OnCanceled(reason, details)
}

func (m *MockEngine) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

func (m *MockEngine) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *MockEngine) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *MockEngine) Chunks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.chunks))
	copy(result, m.chunks)
	return result
}

// MockFactory implements recognizer.Factory and keeps every engine it built.
type MockFactory struct {
	Err      error // returned by NewEngine
	StartErr error // given to every new engine

	mu      sync.Mutex
	engines []*MockEngine
}

func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

func (f *MockFactory) NewEngine(opts recognizer.Options, h recognizer.Handler) (recognizer.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	e := &MockEngine{Opts: opts, Handler: h, StartErr: f.StartErr}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *MockFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// Last returns the most recent engine, or nil.
func (f *MockFactory) Last() *MockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

func (f *MockFactory) Engines() []*MockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockEngine(nil), f.engines...)
}

// MockEmitter implements relay.Emitter and records messages per connection.
type MockEmitter struct {
	EmitError error

	mu   sync.Mutex
	msgs map[string][]relay.Message
}

func NewMockEmitter() *MockEmitter {
	return &MockEmitter{msgs: make(map[string][]relay.Message)}
}

func (m *MockEmitter) Emit(connID string, msg relay.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[connID] = append(m.msgs[connID], msg)
	return m.EmitError
}

func (m *MockEmitter) Messages(connID string) []relay.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]relay.Message(nil), m.msgs[connID]...)
}

// WaitForMessages blocks until connID has received at least n messages.
func (m *MockEmitter) WaitForMessages(t *testing.T, connID string, n int) []relay.Message {
	t.Helper()
	WaitForCondition(t, func() bool { return len(m.Messages(connID)) >= n }, 2*time.Second)
	return m.Messages(connID)
}

// MockTranslator implements recognizer.Translator for testing
type MockTranslator struct {
	Prefix string
	Err    error

	mu    sync.Mutex
	calls int
}

func (m *MockTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Prefix + text, nil
}

func (m *MockTranslator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockSummarizer implements llm.Summarizer for testing
type MockSummarizer struct {
	Summary string
	Err     error

	mu        sync.Mutex
	inputText string
}

func (m *MockSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.inputText = text
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Summary, nil
}

func (m *MockSummarizer) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputText
}
