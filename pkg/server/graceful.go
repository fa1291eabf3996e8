// Package server runs an HTTP server with signal-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured.
const DefaultShutdownTimeout = 10 * time.Second

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// Config configures a GracefulServer.
type Config struct {
	Addr            string
	Handler         http.Handler
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// GracefulServer wraps an HTTP server with graceful shutdown capabilities.
// Shutdown hooks run in reverse registration order before the HTTP server
// drains, so a process can leave its groups while in-flight calls finish.
type GracefulServer struct {
	server  *http.Server
	timeout time.Duration
	logger  logging.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	hooksMu sync.Mutex
	hooks   *transport.ResourceCleanup

	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(cfg Config) *GracefulServer {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	logger := logging.OrDefault(cfg.Logger).With(logging.Component("server"))
	return &GracefulServer{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		timeout:    timeout,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		hooks:      transport.NewResourceCleanup(logger),
	}
}

type hookFunc func() error

func (f hookFunc) Close() error { return f() }

// OnShutdown registers fn to run during Shutdown.
func (gs *GracefulServer) OnShutdown(name string, fn func() error) {
	gs.hooksMu.Lock()
	defer gs.hooksMu.Unlock()
	gs.hooks.Add(hookFunc(fn), name)
}

// Serve accepts connections on ln until Shutdown.
func (gs *GracefulServer) Serve(ln net.Listener) error {
	gs.logger.Info("starting HTTP server", logging.String("addr", ln.Addr().String()))
	if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done or
// SIGINT/SIGTERM arrives, then shuts down. SIGHUP triggers ReloadConfig.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go gs.handleReload(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.Serve(ln) }()

	select {
	case err := <-serveErr:
		if shutdownErr := gs.Shutdown(gs.timeout); err == nil {
			err = shutdownErr
		}
		return err
	case <-ctx.Done():
		gs.logger.Info("shutdown requested")
	}
	err = gs.Shutdown(gs.timeout)
	<-serveErr
	return err
}

// Shutdown runs the shutdown hooks and then drains the HTTP server. Only
// the first call does anything; later calls return its result.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))

		gs.hooksMu.Lock()
		hookErr := gs.hooks.CloseAll()
		gs.hooksMu.Unlock()

		httpErr := gs.server.Shutdown(ctx)
		if httpErr != nil {
			gs.logger.Error("error during shutdown", logging.Error(httpErr))
		} else {
			gs.logger.Info("server shutdown complete")
		}
		gs.shutdownErr = errors.Join(hookErr, httpErr)
	})
	return gs.shutdownErr
}

func (gs *GracefulServer) handleReload(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			gs.logger.Info("received SIGHUP, reloading configuration")
			_ = gs.ReloadConfig()
		}
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Info("configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("configuration reload failed", logging.Error(err))
		return err
	}
	gs.logger.Info("configuration reload complete")
	return nil
}
