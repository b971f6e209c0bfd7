package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "voiceflow.pid"
const ProtoVer = "0.1"

const (
	dialTimeout    = 2 * time.Second
	commandTimeout = 5 * time.Second
)

func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voiceflow"), nil
}

// ~/.cache/voiceflow/control.sock
func SockPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/voiceflow/voiceflow.pid
func PidPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return listenAt(sp)
}

func listenAt(sp string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.DialTimeout("unix", sp, dialTimeout)
}

// SendCommand writes a one-byte command and returns the daemon's reply line.
func SendCommand(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()
	return sendOn(c, cmd, commandTimeout)
}

// sendOn gives up after timeout so a wedged daemon can't hang the CLI.
func sendOn(c net.Conn, cmd byte, timeout time.Duration) (string, error) {
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return checkPidFile(pidPath)
}

// checkPidFile fails when the pid file names a live process. Stale or
// garbled pid files are removed.
func checkPidFile(pidPath string) error {
	pidData, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || !processAlive(pid) {
		_ = os.Remove(pidPath)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}

// StatusReply is the answer to the 's' command.
func StatusReply(sessions, connections int) string {
	return fmt.Sprintf("STATUS sessions=%d connections=%d\n", sessions, connections)
}

// VersionReply is the answer to the 'v' command.
func VersionReply(version string) string {
	return fmt.Sprintf("STATUS proto=%s version=%s\n", ProtoVer, version)
}

// ParseStatus splits a "STATUS k=v k=v" reply into its fields.
func ParseStatus(line string) (map[string]string, error) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, "STATUS ")
	if !ok {
		return nil, fmt.Errorf("unexpected reply: %q", line)
	}
	fields := make(map[string]string)
	for _, kv := range strings.Fields(rest) {
		k, v, _ := strings.Cut(kv, "=")
		fields[k] = v
	}
	return fields, nil
}
