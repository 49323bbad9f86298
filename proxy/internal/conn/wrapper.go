package conn

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// TrackedConn wraps an accepted socket so that every byte read or written
// on it is reflected into the owning Connection's counters, and so that
// Close() is wired to Registry.Unregister exactly once regardless of how
// many times it is called (the stdlib http.Server, a hijacking handler, and
// RawResponder's delayed destroy can all reach it independently).
//
// Go has no open class to monkey-patch a connection identifier onto, so
// the side table *is* the wrapper.
type TrackedConn struct {
	net.Conn
	registry *Registry
	entry    *Connection

	closeOnce sync.Once
	closeErr  error
}

// NewTrackedConn registers c with registry and returns the wrapper that
// should replace c everywhere downstream (http.Server.Serve, handlers).
func NewTrackedConn(registry *Registry, c net.Conn) *TrackedConn {
	entry := registry.Register(c)
	return &TrackedConn{Conn: c, registry: registry, entry: entry}
}

// ID returns the connection's registry identifier.
func (t *TrackedConn) ID() string { return t.entry.ID() }

// Entry returns the underlying Connection record (for attaching target-side
// byte counters from within a handler).
func (t *TrackedConn) Entry() *Connection { return t.entry }

func (t *TrackedConn) Read(b []byte) (int, error) {
	n, err := t.Conn.Read(b)
	if n > 0 {
		t.entry.AddSourceRx(int64(n))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		t.registry.NotifyError(t.entry.ID(), err)
	}
	return n, err
}

func (t *TrackedConn) Write(b []byte) (int, error) {
	n, err := t.Conn.Write(b)
	if n > 0 {
		t.entry.AddSourceTx(int64(n))
	}
	if err != nil {
		t.registry.NotifyError(t.entry.ID(), err)
	}
	return n, err
}

// Close closes the underlying socket and unregisters it. Safe to call more
// than once; only the first call actually closes the socket.
func (t *TrackedConn) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.Conn.Close()
		t.registry.Unregister(t.entry.ID())
	})
	return t.closeErr
}

// CloseWrite forwards a half-close to the underlying socket when it
// supports one (e.g. *net.TCPConn), so rawresp.Write can FIN the write side
// without a full Close even when talking through a TrackedConn.
func (t *TrackedConn) CloseWrite() error {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := t.Conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}

func logSwallowedConnError(id string, err error) {
	slog.Debug("connection error swallowed (no application listener installed)", "connectionId", id, "error", err)
}
