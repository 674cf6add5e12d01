// Package server runs the accept loop: admission limit, bounded worker pool
// and graceful shutdown around a per-connection handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/logger"
	"example.com/spaserve/internal/util"
)

// ConnHandler serves a single accepted connection and closes it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// ConnHandlerFunc adapts a function to ConnHandler.
type ConnHandlerFunc func(ctx context.Context, conn net.Conn)

func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Server manages the listener, the connection pool and shutdown.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	handler ConnHandler

	mu          sync.Mutex
	listener    net.Listener
	activeConns map[net.Conn]struct{}

	ready      chan struct{}
	readyOnce  sync.Once
	reloadChan chan os.Signal
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, lg *logger.Logger, handler ConnHandler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Server == nil {
		return nil, fmt.Errorf("server configuration section (server) is missing")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("connection handler cannot be nil")
	}
	return &Server{
		cfg:         cfg,
		log:         lg,
		handler:     handler,
		activeConns: make(map[net.Conn]struct{}),
		ready:       make(chan struct{}),
		reloadChan:  make(chan os.Signal, 1),
	}, nil
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully. SIGHUP
// reopens file-backed log targets.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signal.Notify(s.reloadChan, syscall.SIGHUP)
	defer signal.Stop(s.reloadChan)
	go s.handleReopenSignals(ctx)

	return s.ListenAndServe(ctx)
}

func (s *Server) handleReopenSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.reloadChan:
			s.log.Info("Reopening log files", logger.LogFields{"signal": sig.String()})
			if err := s.log.ReopenLogFiles(); err != nil {
				s.log.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
			}
		}
	}
}

// ListenAndServe listens on server.address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Server.Address == nil || *s.cfg.Server.Address == "" {
		return fmt.Errorf("server listen address (server.address) is not configured")
	}
	address := *s.cfg.Server.Address
	ln, err := util.CreateListener("tcp", address, derefInt(s.cfg.Server.MaxConnections))
	if err != nil {
		return fmt.Errorf("failed to create listener on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Accept fails, handing
// each one to the handler on a bounded pool of server.workers goroutines.
// When the pool is full the accept loop waits for a free worker. After the
// loop stops, in-flight connections get server.graceful_shutdown_timeout to
// finish before they are force-closed. Serve closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	workers := derefInt(s.cfg.Server.Workers)
	s.log.Info("Server listening", logger.LogFields{
		"address":         ln.Addr().String(),
		"max_connections": derefInt(s.cfg.Server.MaxConnections),
		"workers":         workers,
		"request_buffer":  humanize.Bytes(uint64(derefInt(s.cfg.Server.RequestBufferSize))),
	})

	connCtx, forceClose := context.WithCancel(context.Background())
	defer forceClose()

	var pool errgroup.Group
	if workers > 0 {
		pool.SetLimit(workers)
	}

	stopOnCancel := context.AfterFunc(ctx, func() { ln.Close() })
	defer stopOnCancel()

	var serveErr error
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = nextAcceptDelay(tempDelay)
				s.log.Warn("Connection failed", logger.LogFields{"error": err.Error(), "retry_in": tempDelay.String()})
				if !sleepCtx(ctx, tempDelay) {
					break
				}
				continue
			}
			serveErr = fmt.Errorf("accept failed: %w", err)
			s.log.Error("Accept loop stopped", logger.LogFields{"error": err.Error()})
			break
		}
		tempDelay = 0

		s.trackConn(conn, true)
		pool.Go(func() error {
			defer s.trackConn(conn, false)
			s.handler.ServeConn(connCtx, conn)
			return nil
		})
	}
	ln.Close()

	s.shutdown(&pool, forceClose)
	return serveErr
}

func (s *Server) shutdown(pool *errgroup.Group, forceClose context.CancelFunc) {
	timeout := s.cfg.Server.GracefulShutdownTimeout.Value()
	s.log.Info("Stopped accepting connections, waiting for in-flight requests", logger.LogFields{
		"active_connections": s.ActiveConnections(),
		"timeout":            timeout.String(),
	})

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		s.log.Info("Server shut down gracefully")
		return
	case <-timer.C:
	}

	s.log.Warn("Graceful shutdown timed out, closing remaining connections", logger.LogFields{
		"active_connections": s.ActiveConnections(),
	})
	forceClose()
	s.closeActiveConns()
	<-done
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.activeConns[c] = struct{}{}
	} else {
		delete(s.activeConns, c)
	}
}

func (s *Server) closeActiveConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.activeConns {
		c.Close()
	}
}

// ActiveConnections returns the number of connections currently being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Ready is closed once the server has a listener.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listener address, or nil before Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// sleepCtx waits for d or until ctx is done, and reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
