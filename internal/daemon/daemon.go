package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/leonardotrapani/voiceflow/internal/bus"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/server"
	"github.com/leonardotrapani/voiceflow/internal/session"
)

type Daemon struct {
	config  *config.Manager
	logger  *log.Logger
	version string
	factory recognizer.Factory

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	registry *session.Registry
	server   *server.Server
	httpAddr net.Addr
	ready    chan struct{}
}

// New builds a daemon around a loaded config manager. factory may be nil,
// in which case engines are built from the current configuration.
func New(cfg *config.Manager, factory recognizer.Factory, logger *log.Logger, version string) *Daemon {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:  cfg,
		logger:  logger.WithPrefix("daemon"),
		version: version,
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
	}
	if d.factory == nil {
		d.factory = engineFactory(cfg.GetConfig, logger)
	}
	return d
}

// Ready is closed once the HTTP and control listeners accept connections.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// HTTPAddr is the bound HTTP address, nil before Ready.
func (d *Daemon) HTTPAddr() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.httpAddr
}

// Shutdown asks Run to return.
func (d *Daemon) Shutdown() {
	d.cancel()
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			d.logger.Info("received signal, shutting down gracefully", "signal", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	if err := d.config.StartWatching(d.ctx); err != nil {
		d.logger.Warn("config hot reload disabled", "err", err)
	}
	defer d.config.Stop()

	cfg := d.config.GetConfig()

	registry := session.NewRegistry(d.logger)
	srv := server.New(server.Options{
		Config:     d.config.GetConfig,
		Factory:    d.factory,
		Registry:   registry,
		Summarizer: summarizerFor(d.logger),
		Logger:     d.logger,
	})

	httpLn, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	httpSrv := &http.Server{Handler: srv.Handler()}

	d.mu.Lock()
	d.registry = registry
	d.server = srv
	d.httpAddr = httpLn.Addr()
	d.mu.Unlock()

	httpErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	close(d.ready)
	d.logger.Info("daemon started", "http", httpLn.Addr().String(), "version", d.version)

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- d.acceptLoop(ln)
	}()

	var runErr error
	select {
	case <-d.ctx.Done():
		d.logger.Info("shutdown requested")
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
		d.cancel()
	case err := <-acceptErr:
		runErr = err
		d.cancel()
	}

	d.shutdown(httpSrv, srv, registry)
	return runErr
}

func (d *Daemon) acceptLoop(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				return nil
			}
			d.logger.Error("accept error", "err", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) shutdown(httpSrv *http.Server, srv *server.Server, registry *session.Registry) {
	timeout := d.config.GetConfig().Server.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	registry.StopAll(session.ReasonStopped)
	if err := srv.CloseAll(ctx); err != nil {
		d.logger.Warn("connections did not close in time", "err", err)
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		d.logger.Warn("http shutdown", "err", err)
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) status() (sessions, connections int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.registry == nil || d.server == nil {
		return 0, 0
	}
	return d.registry.Len(), d.server.Connections()
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		d.logger.Warn("control client read error", "err", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]

	switch cmd {
	case 's':
		sessions, connections := d.status()
		fmt.Fprint(c, bus.StatusReply(sessions, connections))
	case 'v':
		fmt.Fprint(c, bus.VersionReply(d.version))
	case 'q':
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		d.logger.Warn("unknown command", "cmd", string(cmd))
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}
