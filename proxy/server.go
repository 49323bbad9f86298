// Package proxy implements a multiplexing HTTP proxy front-end: it accepts
// client connections, authenticates them via an embedder-supplied policy
// callback, decides a per-request routing strategy, and dispatches to one
// of six handler paths (direct tunnel, chained HTTP tunnel, chained SOCKS
// tunnel, forwarded HTTP, forwarded-through-SOCKS HTTP, or a synthetic
// custom response).
//
// Server is a public facade over a single internal HTTP server doing the
// actual accept/serve loop; there is no separate MITM interception
// subsystem to keep apart from the entry point.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/atomic"

	"github.com/proxychain-go/proxychain/proxy/internal/conn"
	"github.com/proxychain-go/proxychain/proxy/internal/policy"
	"github.com/proxychain-go/proxychain/proxy/internal/prepare"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// Server is the process-wide proxy state: the listener, the connection
// registry, aggregate request counters, and configuration.
type Server struct {
	config ServerConfig

	registry *conn.Registry
	events   *eventBus
	policy   *policy.Invoker
	handlers HandlerSet

	nextHandlerID       atomic.Uint64
	httpRequestCount    atomic.Uint64
	connectRequestCount atomic.Uint64

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	closed     bool

	// Port reflects the bound port after Listen, including the OS-assigned
	// value when config.Port was 0.
	Port int
}

// NewServer builds a Server from config. The policy callback, if any, is
// invoked per request with no internal lock held.
func NewServer(config ServerConfig) *Server {
	config = config.withDefaults()

	s := &Server{
		config:   config,
		registry: conn.NewRegistry(),
		events:   newEventBus(),
		policy:   policy.New(config.Policy),
		handlers: DefaultHandlers(),
		Port:     config.Port,
	}

	s.registry.SetCloseListener(func(id string, stats types.ConnectionStats) {
		s.events.emitConnectionClosed(id, stats, true)
	})

	attachDefaultLogging(s.events, config.Verbose)

	s.httpServer = &http.Server{
		Handler: s,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			if tc, ok := c.(*conn.TrackedConn); ok {
				return withTrackedConn(ctx, tc)
			}
			return ctx
		},
	}

	return s
}

// SetHandlers overrides some or all of the six transport handlers. Zero
// fields in override keep the current handler for that strategy.
func (s *Server) SetHandlers(override HandlerSet) {
	s.handlers = s.handlers.merge(override)
}

// OnRequestFailed registers an observer for the requestFailed event.
func (s *Server) OnRequestFailed(fn func(RequestFailedEvent)) {
	s.events.OnRequestFailed(fn)
}

// OnConnectionClosed registers an observer for the connectionClosed event.
func (s *Server) OnConnectionClosed(fn func(ConnectionClosedEvent)) {
	s.events.OnConnectionClosed(fn)
}

// GetConnectionIds returns a snapshot of currently live connection
// identifiers.
func (s *Server) GetConnectionIds() []string {
	return s.registry.IDs()
}

// GetConnectionStats returns the byte counters for id, or false if the
// connection is already gone.
func (s *Server) GetConnectionStats(id string) (ConnectionStats, bool) {
	return s.registry.StatsFor(id)
}

// CloseConnections force-destroys every live connection. Handlers observe
// this as a read/write error on their sockets and unwind.
func (s *Server) CloseConnections() {
	s.registry.DestroyAll()
}

// HTTPRequestCount returns the number of forward-HTTP requests that passed
// parsing.
func (s *Server) HTTPRequestCount() uint64 { return s.httpRequestCount.Load() }

// ConnectRequestCount returns the number of CONNECT requests that passed
// parsing.
func (s *Server) ConnectRequestCount() uint64 { return s.connectRequestCount.Load() }

func (s *Server) counters() prepare.Counters {
	return prepare.Counters{
		IncHTTP:    func() { s.httpRequestCount.Inc() },
		IncConnect: func() { s.connectRequestCount.Inc() },
	}
}

// Listen binds the configured port and begins accepting connections. It
// blocks until the listener is closed or an unrecoverable accept error
// occurs.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = &trackingListener{Listener: ln, registry: s.registry}
	s.Port = s.listener.(*trackingListener).Addr().(*net.TCPAddr).Port
	listener := s.listener
	s.mu.Unlock()

	return s.httpServer.Serve(listener)
}

// Close stops accepting new connections. If closeConnections is true, every
// live socket is force-destroyed before the listener's own close completes.
// Further access to the listener is forbidden once Close returns.
func (s *Server) Close(closeConnections bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if closeConnections {
		s.registry.DestroyAll()
	}
	return s.httpServer.Close()
}

// trackingListener wraps the bound net.Listener so every accepted socket is
// registered before the stdlib HTTP server ever sees it.
type trackingListener struct {
	net.Listener
	registry *conn.Registry
}

func (l *trackingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return conn.NewTrackedConn(l.registry, c), nil
}
