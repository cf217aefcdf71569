package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/orgb"
)

// Accept loop backoff after failed accepts.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config holds listener settings.
type Config struct {
	// Host is the address to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port. Zero selects orgb.DefaultPort.
	Port int

	// MaxConnections bounds concurrent sessions. Zero means unbounded.
	MaxConnections int

	// MaxPayloadSize caps a single frame's payload. Zero selects
	// orgb.DefaultMaxPayloadSize.
	MaxPayloadSize uint32

	// FrameTimeout bounds the time between a frame's magic and its last
	// payload byte. Zero disables the deadline.
	FrameTimeout time.Duration

	// WriteTimeout bounds each reply write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = orgb.DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPublisher sets where session and request events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// Stats holds server counters.
type Stats struct {
	SessionsActive   int    `json:"sessions_active"`
	SessionsTotal    uint64 `json:"sessions_total"`
	SessionsRejected uint64 `json:"sessions_rejected"`
	Frames           uint64 `json:"frames"`
	Dropped          uint64 `json:"dropped"`
}

// Server accepts ORGB clients and serves them against a controller registry.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Server struct {
	cfg        Config
	registry   *controller.Registry
	dispatcher *Dispatcher
	logger     Logger
	metrics    *Metrics
	publisher  events.Publisher

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	closing  bool
	wg       sync.WaitGroup

	sessionsTotal    atomic.Uint64
	sessionsRejected atomic.Uint64
	frames           atomic.Uint64
	drops            atomic.Uint64
}

// New creates a server over registry.
func New(cfg Config, registry *controller.Registry, opts ...Option) *Server {
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = orgb.DefaultMaxPayloadSize
	}
	s := &Server{
		cfg:        cfg,
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		logger:     noopLogger{},
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe binds cfg.Addr() and serves until ctx is cancelled or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and starts a session for each.
//
// Cancelling ctx has the same effect as Shutdown without the wait. Serve
// always returns a non-nil error; after a shutdown it is ErrServerClosed.
//
// Parameters:
//   - ctx: lifetime of the listener
//   - ln: listener to accept on; Serve closes it
//
// Returns:
//   - error: ErrServerClosed, ErrAlreadyServing, or the accept error of a
//     listener closed outside Shutdown
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	switch {
	case s.closing:
		s.mu.Unlock()
		ln.Close() //nolint:errcheck // server already closed
		return ErrServerClosed
	case s.listener != nil:
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.beginShutdown)
	defer stop()

	s.logger.Info("orgb server listening",
		"addr", ln.Addr().String(),
		"max_connections", s.cfg.MaxConnections,
		"controllers", s.registry.Len(),
	)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accepting connection: %w", err)
			}
			// Anything else (EMFILE, ECONNABORTED, ...) is retried so one bad
			// accept never takes down the live sessions.
			backoff = nextBackoff(backoff)
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
			if !s.sleep(ctx, backoff) {
				return ErrServerClosed
			}
			continue
		}
		backoff = 0
		s.admit(conn)
	}
}

// sleep waits d, returning false early when ctx is cancelled.
func (s *Server) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !s.isClosing()
	case <-ctx.Done():
		return false
	}
}

// admit starts a session for conn, or closes it when the server is full.
func (s *Server) admit(conn net.Conn) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close() //nolint:errcheck // shutting down
		return
	}
	if s.cfg.MaxConnections > 0 && len(s.sessions) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.reject(conn)
		return
	}
	sess := newSession(conn)
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.sessionsTotal.Add(1)
	go s.runSession(sess)
}

func (s *Server) reject(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.sessionsRejected.Add(1)
	s.metrics.sessionRejected()
	conn.Close() //nolint:errcheck // rejected connection

	s.logger.Warn("connection rejected, limit reached", "remote", remote, "max_connections", s.cfg.MaxConnections)
	s.publish(events.Event{Type: events.SessionRejected, RemoteAddr: remote, Reason: "max_connections"})
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// Shutdown closes the listener and all sessions, then waits for session
// goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.beginShutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("orgb server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}

// beginShutdown stops accepting and closes every live connection.
func (s *Server) beginShutdown() {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.sessions))
	for _, sess := range s.sessions {
		conns = append(conns, sess.conn)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close() //nolint:errcheck // unblocks Accept
	}
	for _, c := range conns {
		c.Close() //nolint:errcheck // unblocks session reads
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions returns the live sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int {
		return cmp.Or(a.OpenedAt.Compare(b.OpenedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Stats returns the server counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	return Stats{
		SessionsActive:   active,
		SessionsTotal:    s.sessionsTotal.Load(),
		SessionsRejected: s.sessionsRejected.Load(),
		Frames:           s.frames.Load(),
		Dropped:          s.drops.Load(),
	}
}

func (s *Server) publish(ev events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(d*2, maxAcceptBackoff)
}
