// Package server accepts event streams over TCP and feeds them to a single
// handler goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"urlfilter/pkg/filtering"
	"urlfilter/pkg/intake"
	"urlfilter/pkg/version"
)

// maxAcceptDelay caps the backoff after a failed Accept.
const maxAcceptDelay = time.Second

// HandleFunc processes one event.
type HandleFunc func(ctx context.Context, ev filtering.Event)

// Server funnels events from every connection into one goroutine so the
// handler never runs concurrently with itself.
type Server struct {
	addr     string
	handle   HandleFunc
	log      *slog.Logger
	listener net.Listener
	events   chan filtering.Event
	cancel   context.CancelFunc
	conns    sync.WaitGroup
	workers  sync.WaitGroup
	mu       sync.Mutex
	open     map[net.Conn]struct{}
	closed   bool
}

// New creates a Server listening on addr.
func New(addr string, handle HandleFunc, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:   addr,
		handle: handle,
		log:    log,
		events: make(chan filtering.Event, 64),
		open:   make(map[net.Conn]struct{}),
	}
}

// Start listens and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener
	ctx, s.cancel = context.WithCancel(ctx)

	s.log.Info("starting event server", "version", version.URLFilterVersion, "address", listener.Addr().String())

	s.workers.Add(2)
	go func() {
		defer s.workers.Done()
		s.process(ctx)
	}()
	go func() {
		defer s.workers.Done()
		s.accept(ctx)
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) accept(ctx context.Context) {
	var tempDelay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			s.log.Error("accept failed", "error", err, "retry_in", tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		tempDelay = 0
		if !s.track(conn, true) {
			_ = conn.Close()
			continue
		}
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()
	defer func() {
		s.track(conn, false)
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.log.Debug("observer connected", "remote", remote)
	err := intake.Decode(ctx, conn, s.log, func(ev filtering.Event) {
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("event stream ended with error", "remote", remote, "error", err)
	}
	s.log.Debug("observer disconnected", "remote", remote)
}

func (s *Server) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// track adds or removes conn from the open set and the conns group. Adding
// fails once Shutdown has closed the open connections.
func (s *Server) track(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.open, conn)
		return true
	}
	if s.closed {
		return false
	}
	s.open[conn] = struct{}{}
	s.conns.Add(1)
	return true
}

// Shutdown stops accepting, closes open connections and waits for the
// workers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.cancel()

	s.mu.Lock()
	s.closed = true
	for conn := range s.open {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
