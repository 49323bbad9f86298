package proxy

import (
	"net/http"
	"sync"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// RequestFailedEvent carries a non-RequestError failure observed while
// handling a request.
type RequestFailedEvent struct {
	Error   error
	Request *http.Request
}

// ConnectionClosedEvent carries the final byte-counter snapshot for a
// connection that just closed.
type ConnectionClosedEvent struct {
	ConnectionID string
	Stats        ConnectionStats
	HasStats     bool
}

// eventBus holds the requestFailed and connectionClosed listener lists.
// The two kinds are independent; each is a thread-safe slice, copied out
// before firing so a listener that registers another listener never
// deadlocks or races the slice.
type eventBus struct {
	mu               sync.RWMutex
	requestFailed    []func(RequestFailedEvent)
	connectionClosed []func(ConnectionClosedEvent)
}

func newEventBus() *eventBus {
	return &eventBus{}
}

func (b *eventBus) OnRequestFailed(fn func(RequestFailedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestFailed = append(b.requestFailed, fn)
}

func (b *eventBus) OnConnectionClosed(fn func(ConnectionClosedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectionClosed = append(b.connectionClosed, fn)
}

func (b *eventBus) emitRequestFailed(evt RequestFailedEvent) {
	b.mu.RLock()
	listeners := append([]func(RequestFailedEvent){}, b.requestFailed...)
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

func (b *eventBus) emitConnectionClosed(id string, stats types.ConnectionStats, hasStats bool) {
	b.mu.RLock()
	listeners := append([]func(ConnectionClosedEvent){}, b.connectionClosed...)
	b.mu.RUnlock()

	evt := ConnectionClosedEvent{ConnectionID: id, Stats: stats, HasStats: hasStats}
	for _, fn := range listeners {
		fn(evt)
	}
}
