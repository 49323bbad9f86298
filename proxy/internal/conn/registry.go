// Package conn implements the connection registry: it assigns a
// process-unique identifier to each accepted socket, tracks live sockets,
// and keeps the byte counters that back ConnectionStats.
//
// Identifiers are random v4 UUIDs rather than a value borrowed from the
// socket itself (address, file descriptor), so that two connections whose
// visible labels happen to collide are still distinct by identity.
package conn

import (
	"net"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/atomic"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// CloseListener is notified when a registered connection closes. stats is
// the final ConnectionStats snapshot, captured before the connection is
// removed from the registry.
type CloseListener func(id string, stats types.ConnectionStats)

// ErrorListener is notified of a socket-level error. If the embedder hasn't
// installed one, the registry logs and swallows.
type ErrorListener func(id string, err error)

// Connection wraps one accepted socket plus the byte counters handlers
// attach to any target-side socket they open for it.
type Connection struct {
	id   string
	conn net.Conn

	srcRx atomic.Int64
	srcTx atomic.Int64
	trgRx atomic.Int64
	trgTx atomic.Int64

	mu     sync.Mutex
	closed bool
}

// ID returns the connection's registry identifier.
func (c *Connection) ID() string { return c.id }

// Conn returns the underlying accepted socket.
func (c *Connection) Conn() net.Conn { return c.conn }

// AddTargetTx/AddTargetRx let handlers report bytes moved on a target
// socket they opened for this connection. Handlers call these from their
// own counting wrapper (see proxy.countingConn); the registry itself never
// touches the target socket.
func (c *Connection) AddTargetTx(n int64) { c.trgTx.Add(n) }
func (c *Connection) AddTargetRx(n int64) { c.trgRx.Add(n) }

// AddSourceTx/AddSourceRx report bytes moved on the accepted socket itself.
func (c *Connection) AddSourceTx(n int64) { c.srcTx.Add(n) }
func (c *Connection) AddSourceRx(n int64) { c.srcRx.Add(n) }

func (c *Connection) stats() types.ConnectionStats {
	return types.ConnectionStats{
		SrcTxBytes: c.srcTx.Load(),
		SrcRxBytes: c.srcRx.Load(),
		TrgTxBytes: c.trgTx.Load(),
		TrgRxBytes: c.trgRx.Load(),
	}
}

// Registry is the single source of truth for which sockets are live. It is
// safe for concurrent use by accept handlers, close handlers, and
// DestroyAll.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	onClose CloseListener
	onError ErrorListener
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// SetCloseListener installs the connectionClosed observer. Must be called
// before Register is used concurrently with event delivery.
func (r *Registry) SetCloseListener(l CloseListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = l
}

// SetErrorListener installs the application error observer.
func (r *Registry) SetErrorListener(l ErrorListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = l
}

// Register allocates a fresh identifier for c, stores it in the registry,
// and returns the Connection wrapper. The caller is responsible for
// invoking Notify* as the socket is read from/written to and calling
// Unregister exactly once when the socket closes.
func (r *Registry) Register(c net.Conn) *Connection {
	id := r.allocID()
	conn := &Connection{id: id, conn: c}

	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()

	return conn
}

// allocID assigns each accepted socket its own random v4 UUID rather than
// an address- or fd-derived label, so two connections are never mistaken
// for the same identity.
func (r *Registry) allocID() string {
	return uuid.NewV4().String()
}

// Unregister removes a connection from the registry and fires
// connectionClosed with its final stats, captured before removal so a
// concurrent StatsFor(id) call observes either the captured value or
// nothing.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	stats := conn.stats()
	onClose := r.onClose
	delete(r.conns, id)
	r.mu.Unlock()

	if onClose != nil {
		onClose(id, stats)
	}
}

// NotifyError reports a socket-level error for id. Swallowed with a log
// line unless an ErrorListener is installed.
func (r *Registry) NotifyError(id string, err error) {
	r.mu.Lock()
	onError := r.onError
	r.mu.Unlock()

	if onError != nil {
		onError(id, err)
		return
	}
	logSwallowedConnError(id, err)
}

// Get returns the live Connection record for id, or false if the connection
// is already gone. Handlers use this to attach target-side byte counters.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// StatsFor returns the live counters for id, or false if the connection is
// already gone.
func (r *Registry) StatsFor(id string) (types.ConnectionStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return types.ConnectionStats{}, false
	}
	return conn.stats(), true
}

// IDs returns a snapshot of the currently live connection identifiers.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// DestroyAll forces every live socket closed. It snapshots the map under
// the lock and closes the raw sockets outside it. Closing a raw socket
// does not unregister it: the reader blocked on that socket sees the error
// and calls TrackedConn.Close, whose Unregister takes the lock and removes
// the entry.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	snapshot := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		_ = c.conn.Close()
	}
}
