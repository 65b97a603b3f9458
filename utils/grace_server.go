package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	DEFAULT_READ_TIMEOUT     = 60 * time.Second
	DEFAULT_WRITE_TIMEOUT    = DEFAULT_READ_TIMEOUT
	DEFAULT_SHUTDOWN_TIMEOUT = 30 * time.Second
)

// Server wraps http.Server to drain requests and run shutdown hooks on SIGTERM/SIGINT.
type Server struct {
	*http.Server

	listener   net.Listener
	signalChan chan os.Signal
	hooks      []func()
	done       chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		signalChan: make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
}

// OnShutdown registers fn to run after the HTTP server has drained.
// Hooks run in registration order.
func (srv *Server) OnShutdown(fn func()) {
	srv.hooks = append(srv.hooks, fn)
}

// ListenAndServe starts serving on tcp and blocks until shutdown has finished.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = ln

	signal.Notify(srv.signalChan, syscall.SIGTERM, syscall.SIGINT)
	go srv.handleSignals()

	err = srv.Server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-srv.done
		return nil
	}
	return err
}

func (srv *Server) handleSignals() {
	sig := <-srv.signalChan
	Sugar.Infof("received %s, graceful shutting down", sig)
	signal.Stop(srv.signalChan)

	ctx, cancel := context.WithTimeout(context.Background(), DEFAULT_SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
	} else {
		Sugar.Info("HTTP server shutdown success")
	}
	for _, fn := range srv.hooks {
		fn()
	}
	close(srv.done)
}

// GraceServer starts an HTTP server that runs hooks after draining on shutdown.
func GraceServer(addr string, handler http.Handler, hooks ...func()) error {
	srv := NewServer(addr, handler, DEFAULT_READ_TIMEOUT, DEFAULT_WRITE_TIMEOUT)
	for _, fn := range hooks {
		srv.OnShutdown(fn)
	}
	return srv.ListenAndServe()
}
