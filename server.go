package gows

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// HandshakeHandler is invoked once per successful upgrade handshake, with
// an UpgradeContext it must Accept or Reject exactly once. If it returns
// without doing either, the connection is closed with an implicit reject
// at whatever status was last set on the response. A panic inside the
// handler is recovered and logged, and the TCP connection is closed without
// writing a response — it never reaches the listener.
type HandshakeHandler func(*UpgradeContext)

// StreamDecorator wraps a connection's byte stream before handshake
// parsing — the server-wide default for every accepted connection. An
// UpgradeContext can additionally apply a per-connection decorator via
// DecorateStream.
type StreamDecorator func(io.ReadWriter) (io.ReadWriter, error)

// Server is the façade described in §4.7: configuration, start/stop
// lifecycle, and dispatch of the per-handshake callback. It owns the
// listener and accept loop (C4).
type Server struct {
	bindAddr        string
	logger          Log
	streamDecorator StreamDecorator
	keepAlive       time.Duration
	handshakePool   int

	mu       sync.Mutex
	active   bool
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	keeper *keepAliveTicker
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the library's diagnostic logger (default:
// DefaultLogger).
func WithLogger(l Log) Option {
	return func(s *Server) { s.logger = l }
}

// WithStreamDecorator sets the server-wide stream decorator applied to
// every accepted connection before handshake parsing, per §4.7's
// stream_decorator option.
func WithStreamDecorator(d StreamDecorator) Option {
	return func(s *Server) { s.streamDecorator = d }
}

// WithKeepAliveInterval sets the idle timeout after which a connection
// that hasn't produced a frame is closed by the keep-alive ticker. Zero
// (the default) disables idle ticking.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(s *Server) { s.keepAlive = d }
}

// WithHandshakeConcurrency bounds how many handshakes run concurrently via
// the underlying goroutine pool. Default 1000, grounded on the teacher's
// ants.NewPool(1000).
func WithHandshakeConcurrency(n int) Option {
	return func(s *Server) { s.handshakePool = n }
}

// NewServer builds a Server bound to addr (host:port, host may be empty
// for 0.0.0.0) but does not start listening yet.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		bindAddr:      addr,
		logger:        DefaultLogger{},
		handshakePool: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active reports whether the server is currently listening.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HostAddr returns the bound "ip:port", valid only while Active.
func (s *Server) HostAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HostPort returns the bound TCP port, valid only while Active.
func (s *Server) HostPort() int {
	addr := s.HostAddr()
	if addr == "" {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// Start binds the listener and begins accepting connections, dispatching
// handler once per successful handshake. A second Start call while already
// Active is a no-op, per §4.4's Idle->Listening->Stopping->Idle machine.
func (s *Server) Start(handler HandshakeHandler) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}

	ln, err := net.Listen("tcp", s.bindAddr)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(ErrListenerClosed, err.Error())
	}

	pool, err := ants.NewPool(s.handshakePool)
	if err != nil {
		ln.Close()
		s.mu.Unlock()
		return errors.Wrap(ErrListenerClosed, "handshake pool: "+err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = ln
	s.cancel = cancel
	s.active = true
	if s.keepAlive > 0 {
		s.keeper = newKeepAliveTicker(s.keepAlive)
		s.keeper.start()
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln, pool, handler)

	return nil
}

// Stop cancels the accept loop and closes the listener. Idempotent and
// safe to call from any goroutine; a subsequent Start is valid.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	ln := s.listener
	keeper := s.keeper
	s.keeper = nil
	s.mu.Unlock()

	cancel()
	if ln != nil {
		ln.Close()
	}
	if keeper != nil {
		keeper.stop()
	}
	s.wg.Wait()
}
