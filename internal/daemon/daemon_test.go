package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/voiceflow/internal/bus"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/testutil"
)

const testConfig = `[server]
addr = "127.0.0.1:0"
static_dir = ""
shutdown_timeout = "2s"

[speech]
api_key = "test-speech-key"
`

func startDaemon(t *testing.T) (*Daemon, *testutil.MockFactory, chan error) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, k := range []string{config.EnvPort, config.EnvSpeechKey, config.EnvOpenAIKey, config.EnvLogLevel} {
		t.Setenv(k, "")
	}

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte(testConfig), 0600); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManagerAt(configPath, nil)
	if err != nil {
		t.Fatalf("NewManagerAt() error = %v", err)
	}

	factory := testutil.NewMockFactory()
	d := New(mgr, factory, nil, "test")

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run()
	}()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon failed to start within timeout")
	}
	return d, factory, errCh
}

func stopDaemon(t *testing.T, errCh chan error) {
	t.Helper()
	if out, err := bus.SendCommand('q'); err != nil || out != "OK quitting\n" {
		t.Errorf("quit = %q, %v", out, err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("daemon did not exit within timeout")
	}
}

func TestDaemon_ControlCommands(t *testing.T) {
	_, _, errCh := startDaemon(t)

	if out, err := bus.SendCommand('s'); err != nil {
		t.Fatalf("status failed: %v", err)
	} else if out != "STATUS sessions=0 connections=0\n" {
		t.Errorf("unexpected status response: %q", out)
	}

	if out, err := bus.SendCommand('v'); err != nil {
		t.Fatalf("version failed: %v", err)
	} else if out != "STATUS proto="+bus.ProtoVer+" version=test\n" {
		t.Errorf("unexpected version response: %q", out)
	}

	if out, err := bus.SendCommand('x'); err != nil {
		t.Fatalf("unknown command failed: %v", err)
	} else if !strings.HasPrefix(out, "ERR unknown=") {
		t.Errorf("unexpected response to unknown command: %q", out)
	}

	stopDaemon(t, errCh)

	if _, err := os.Stat(mustPidPath(t)); !os.IsNotExist(err) {
		t.Error("PID file should be removed after shutdown")
	}
}

func TestDaemon_RejectsSecondInstance(t *testing.T) {
	_, _, errCh := startDaemon(t)
	defer stopDaemon(t, errCh)

	if err := bus.CheckExistingDaemon(); err == nil {
		t.Error("CheckExistingDaemon should fail while the daemon runs")
	}
}

func TestDaemon_ServesSessions(t *testing.T) {
	d, factory, errCh := startDaemon(t)

	wsURL := "ws://" + d.HTTPAddr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": "start_transcription"}); err != nil {
		t.Fatal(err)
	}
	testutil.WaitForCondition(t, func() bool {
		e := factory.Last()
		return e != nil && e.StartCalls() > 0
	}, 2*time.Second)

	out, err := bus.SendCommand('s')
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	fields, err := bus.ParseStatus(out)
	if err != nil {
		t.Fatal(err)
	}
	if fields["sessions"] != "1" || fields["connections"] != "1" {
		t.Errorf("status = %v, want one session and one connection", fields)
	}

	engine := factory.Last()
	engine.Final("hello", "", true)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event string `json:"event"`
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Event != "transcription_update" {
		t.Errorf("read = %+v, %v", msg, err)
	}

	stopDaemon(t, errCh)
	if engine.StopCalls() != 1 {
		t.Errorf("engine stopped %d times on shutdown, want 1", engine.StopCalls())
	}
}

func mustPidPath(t *testing.T) string {
	t.Helper()
	p, err := bus.PidPath()
	if err != nil {
		t.Fatal(err)
	}
	return p
}
