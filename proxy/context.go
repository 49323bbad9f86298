package proxy

import (
	"context"

	"github.com/proxychain-go/proxychain/proxy/internal/conn"
)

// connContextKeyType is an unexported type so connContextKey can never
// collide with a context key installed by another package, matching the
// teacher's own context-key convention in proxy/internal/proxycontext.
type connContextKeyType struct{}

var connContextKey = connContextKeyType{}

// withTrackedConn attaches tc to ctx. Installed via http.Server.ConnContext
// so every request handled on that socket can recover its registry entry.
func withTrackedConn(ctx context.Context, tc *conn.TrackedConn) context.Context {
	return context.WithValue(ctx, connContextKey, tc)
}

// trackedConnFrom recovers the TrackedConn attached by withTrackedConn, or
// nil if none was attached (e.g. a request built directly in a test without
// going through http.Server).
func trackedConnFrom(ctx context.Context) *conn.TrackedConn {
	tc, _ := ctx.Value(connContextKey).(*conn.TrackedConn)
	return tc
}
