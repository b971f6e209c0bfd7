package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/llm"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/relay"
	"github.com/leonardotrapani/voiceflow/internal/testutil"
)

type testServer struct {
	*Server
	http    *httptest.Server
	factory *testutil.MockFactory
	cfg     *config.Config
	summary *testutil.MockSummarizer
}

// newTestServer applies setup before the HTTP server starts serving
func newTestServer(t *testing.T, setup ...func(*testServer)) *testServer {
	t.Helper()
	cfg := testutil.TestConfig()
	ts := &testServer{
		factory: testutil.NewMockFactory(),
		cfg:     cfg,
		summary: &testutil.MockSummarizer{Summary: "- one\n- two"},
	}
	for _, fn := range setup {
		fn(ts)
	}
	ts.Server = New(Options{
		Config:  func() *config.Config { return ts.cfg },
		Factory: ts.factory,
		Summarizer: func(cfg *config.Config) (llm.Summarizer, error) {
			return ts.summary, nil
		},
	})
	ts.http = httptest.NewServer(ts.Handler())
	t.Cleanup(func() {
		ctx, cancel := testutil.TestContext()
		defer cancel()
		_ = ts.CloseAll(ctx)
		ts.http.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg inbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	msg := readEvent(t, conn)
	if msg.Event != relay.EventError {
		t.Fatalf("event = %q, want error (data %s)", msg.Event, msg.Data)
	}
	var ev struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return ev.Message
}

func readUpdate(t *testing.T, conn *websocket.Conn) relay.Update {
	t.Helper()
	msg := readEvent(t, conn)
	if msg.Event != relay.EventTranscriptionUpdate {
		t.Fatalf("event = %q, want transcription_update (data %s)", msg.Event, msg.Data)
	}
	var u relay.Update
	if err := json.Unmarshal(msg.Data, &u); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	return u
}

// startSession starts a transcription and returns the engine behind it
func (ts *testServer) startSession(t *testing.T, conn *websocket.Conn, data any) *testutil.MockEngine {
	t.Helper()
	before := ts.factory.Count()
	send(t, conn, EventStartTranscription, data)
	testutil.WaitForCondition(t, func() bool {
		e := ts.factory.Last()
		return e != nil && ts.factory.Count() > before && e.StartCalls() > 0
	}, 2*time.Second)
	return ts.factory.Last()
}

func TestServer_TranscriptionFlow(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	engine := ts.startSession(t, conn, nil)
	if engine.Opts.Language != "en-US" {
		t.Errorf("language = %q, want default en-US", engine.Opts.Language)
	}

	engine.Interim("h", "")
	engine.Interim("he", "")
	engine.Final("hello", "", true)

	for _, want := range []relay.Update{{Text: "h"}, {Text: "he"}, {Text: "hello", IsFinal: true}} {
		if got := readUpdate(t, conn); got != want {
			t.Errorf("update = %+v, want %+v", got, want)
		}
	}

	send(t, conn, EventStopTranscription, nil)
	testutil.WaitForCondition(t, func() bool { return engine.Stopped() }, 2*time.Second)
	testutil.WaitForCondition(t, func() bool { return ts.Registry().Len() == 0 }, 2*time.Second)
}

func TestServer_StartNormalizesLanguages(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	engine := ts.startSession(t, conn, map[string]string{"language": "pt_br", "target_language": "EN"})
	if engine.Opts.Language != "pt-BR" || engine.Opts.TargetLanguage != "en" {
		t.Errorf("opts = %+v", engine.Opts)
	}
}

func TestServer_StartWithLanguages(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	engine := ts.startSession(t, conn, map[string]string{"language": "it-IT", "target_language": "en"})
	if engine.Opts.Language != "it-IT" || engine.Opts.TargetLanguage != "en" {
		t.Errorf("opts = %+v", engine.Opts)
	}

	engine.Final("ciao", "hello", true)
	if got := readUpdate(t, conn); got.Translation != "hello" || !got.IsFinal {
		t.Errorf("update = %+v", got)
	}
}

func TestServer_MissingCredentials(t *testing.T) {
	ts := newTestServer(t, func(ts *testServer) {
		ts.factory.Err = &recognizer.ConfigurationError{Field: "speech.api_key", Msg: "Speech API key missing"}
	})
	conn := ts.dial(t)

	send(t, conn, EventStartTranscription, map[string]string{"language": "en-US"})
	if msg := readError(t, conn); msg != "Speech API key missing" {
		t.Errorf("error = %q, want Speech API key missing", msg)
	}
	if ts.Registry().Len() != 0 {
		t.Errorf("registry has %d sessions, want 0", ts.Registry().Len())
	}

	// audio without a session is ignored
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	send(t, conn, EventStopTranscription, nil)
}

func TestServer_StartFailureAuth(t *testing.T) {
	ts := newTestServer(t, func(ts *testServer) {
		ts.factory.StartErr = errors.New("websocket dial: websocket: bad handshake (status 401)")
	})
	conn := ts.dial(t)

	send(t, conn, EventStartTranscription, nil)
	if msg := readError(t, conn); msg != relay.AuthFailureMessage {
		t.Errorf("error = %q, want auth failure message", msg)
	}
	testutil.WaitForCondition(t, func() bool { return ts.Registry().Len() == 0 }, 2*time.Second)
}

func TestServer_CancellationRelayed(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	engine := ts.startSession(t, conn, nil)
	engine.Cancel(recognizer.ReasonError, "HTTP 401 Unauthorized")

	if msg := readError(t, conn); msg != relay.AuthFailureMessage {
		t.Errorf("error = %q", msg)
	}
	testutil.WaitForCondition(t, func() bool { return ts.Registry().Len() == 0 }, 2*time.Second)
	if engine.StopCalls() != 1 {
		t.Errorf("engine stopped %d times, want 1", engine.StopCalls())
	}
}

func TestServer_AudioFrames(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	engine := ts.startSession(t, conn, nil)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	send(t, conn, EventAudioData, base64.StdEncoding.EncodeToString([]byte{4, 5}))

	testutil.WaitForCondition(t, func() bool { return len(engine.Chunks()) == 2 }, 2*time.Second)
	chunks := engine.Chunks()
	if !bytes.Equal(chunks[0], []byte{1, 2, 3}) || !bytes.Equal(chunks[1], []byte{4, 5}) {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestServer_DisconnectStopsSession(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	engine := ts.startSession(t, conn, nil)

	conn.Close()

	testutil.WaitForCondition(t, func() bool { return engine.Stopped() }, 2*time.Second)
	testutil.WaitForCondition(t, func() bool { return ts.Connections() == 0 }, 2*time.Second)
	if ts.Registry().Len() != 0 {
		t.Errorf("registry has %d sessions after disconnect", ts.Registry().Len())
	}
	if engine.StopCalls() != 1 {
		t.Errorf("engine stopped %d times, want 1", engine.StopCalls())
	}
}

func TestServer_DoubleStartReplacesSession(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	first := ts.startSession(t, conn, nil)
	second := ts.startSession(t, conn, map[string]string{"language": "de-DE"})

	if first == second {
		t.Fatal("expected a new engine")
	}
	if first.StopCalls() != 1 {
		t.Errorf("first engine stopped %d times, want 1", first.StopCalls())
	}
	if ts.Registry().Len() != 1 {
		t.Errorf("registry has %d sessions, want 1", ts.Registry().Len())
	}

	second.Final("hallo", "", true)
	if got := readUpdate(t, conn); got.Text != "hallo" {
		t.Errorf("update = %+v", got)
	}
}

func TestServer_ConnectionsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t)
	b := ts.dial(t)

	engineA := ts.startSession(t, a, nil)
	engineB := ts.startSession(t, b, nil)

	engineB.Final("for b", "", true)
	engineA.Final("for a", "", true)

	if got := readUpdate(t, a); got.Text != "for a" {
		t.Errorf("a got %+v", got)
	}
	if got := readUpdate(t, b); got.Text != "for b" {
		t.Errorf("b got %+v", got)
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readError(t, conn); msg != "Invalid message" {
		t.Errorf("error = %q", msg)
	}

	send(t, conn, "dance", nil)
	if msg := readError(t, conn); !strings.Contains(msg, "dance") {
		t.Errorf("error = %q", msg)
	}

	send(t, conn, EventAudioData, "***")
	if msg := readError(t, conn); msg != "Invalid audio_data payload" {
		t.Errorf("error = %q", msg)
	}

	send(t, conn, EventStartTranscription, map[string]string{"language": "en-US", "target_language": "klingon!"})
	if msg := readError(t, conn); msg != "Invalid language: klingon!" {
		t.Errorf("error = %q", msg)
	}
	if n := ts.factory.Count(); n != 0 {
		t.Errorf("engines created = %d, want 0", n)
	}
}

func TestServer_OriginCheck(t *testing.T) {
	ts := newTestServer(t, func(ts *testServer) {
		ts.cfg.Server.AllowedOrigins = []string{"http://allowed.example"}
	})
	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial from disallowed origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	ts.startSession(t, conn, nil)

	resp, err := http.Get(ts.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Sessions != 1 || health.Connections != 1 {
		t.Errorf("health = %+v", health)
	}
}

func TestServer_CloseAll(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	engine := ts.startSession(t, conn, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ts.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if !engine.Stopped() || ts.Connections() != 0 {
		t.Errorf("stopped=%v connections=%d", engine.Stopped(), ts.Connections())
	}
}

func TestServer_Summarize(t *testing.T) {
	post := func(t *testing.T, ts *testServer, body string) (int, map[string]string) {
		t.Helper()
		resp, err := http.Post(ts.http.URL+"/summarize", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		status, out := post(t, ts, `{"text":"a transcript that is long enough"}`)
		if status != http.StatusOK || out["summary"] != "- one\n- two" {
			t.Errorf("status=%d body=%v", status, out)
		}
		if ts.summary.Input() != "a transcript that is long enough" {
			t.Errorf("summarizer got %q", ts.summary.Input())
		}
	})

	t.Run("too short", func(t *testing.T) {
		ts := newTestServer(t)
		status, out := post(t, ts, `{"text":"short"}`)
		if status != http.StatusBadRequest || out["message"] != "Text too short" {
			t.Errorf("status=%d body=%v", status, out)
		}
	})

	t.Run("missing text", func(t *testing.T) {
		ts := newTestServer(t)
		status, out := post(t, ts, `{}`)
		if status != http.StatusBadRequest || out["message"] != "Text too short" {
			t.Errorf("status=%d body=%v", status, out)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		ts := newTestServer(t, func(ts *testServer) {
			ts.summary.Err = errors.New("boom")
		})
		status, out := post(t, ts, `{"text":"a transcript that is long enough"}`)
		if status != http.StatusInternalServerError || out["message"] != "AI Summarization failed" {
			t.Errorf("status=%d body=%v", status, out)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, func(ts *testServer) {
			ts.cfg.Summary.Enabled = false
		})
		status, _ := post(t, ts, `{"text":"a transcript that is long enough"}`)
		if status != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", status)
		}
	})
}
