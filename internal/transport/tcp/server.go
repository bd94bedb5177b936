package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
)

const maxAcceptDelay = time.Second

// Server accepts relay connections and runs one Handler per connection.
// Beyond the set of live connections it keeps no per-connection state; the
// registry and history are owned by the hub.
type Server struct {
	cfg     config.Config
	handler *Handler
	log     *zerolog.Logger

	// sem bounds concurrent handlers when MaxConnections > 0.
	sem chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer builds a relay server over hub.
func NewServer(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		handler: NewHandler(hub, cfg, logger),
		log:     logger,
		conns:   make(map[net.Conn]struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.sem = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Handler returns the per-connection handler, shared with other transports.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds cfg.Addr and serves until ctx is cancelled.
// A bind failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
// A failed Accept is logged and the loop continues.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Int("max_connections", s.cfg.MaxConnections).Msg("relay server listening")

	var delay time.Duration
	for {
		if !s.acquire(ctx) {
			return s.shutdown(nil)
		}

		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil {
				return s.shutdown(nil)
			}
			if errors.Is(err, net.ErrClosed) {
				return s.shutdown(err)
			}

			delay = nextDelay(delay)
			s.log.Error().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return s.shutdown(nil)
			}
			continue
		}
		delay = 0

		s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new client connection")
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.track(conn, false)
			s.handler.ServeConn(ctx, conn)
		}()
	}
}

// shutdown closes live connections and waits for handlers, bounded by
// ShutdownTimeout. cause is returned when serving stopped for a reason other
// than cancellation.
func (s *Server) shutdown(cause error) error {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
		s.log.Info().Msg("relay server stopped")
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("relay handlers still running after shutdown timeout")
	}

	if cause != nil {
		return fmt.Errorf("accept: %w", cause)
	}
	return nil
}

func (s *Server) acquire(ctx context.Context) bool {
	if s.sem == nil {
		return true
	}
	select {
	case s.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func nextDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	delay *= 2
	if delay > maxAcceptDelay {
		delay = maxAcceptDelay
	}
	return delay
}
