package proxy

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func TestEventBusDeliversToAllListeners(t *testing.T) {
	c := qt.New(t)

	bus := newEventBus()

	var mu sync.Mutex
	var gotFailed, gotClosed int
	bus.OnRequestFailed(func(RequestFailedEvent) {
		mu.Lock()
		gotFailed++
		mu.Unlock()
	})
	bus.OnRequestFailed(func(RequestFailedEvent) {
		mu.Lock()
		gotFailed++
		mu.Unlock()
	})
	bus.OnConnectionClosed(func(ConnectionClosedEvent) {
		mu.Lock()
		gotClosed++
		mu.Unlock()
	})

	bus.emitRequestFailed(RequestFailedEvent{})
	bus.emitConnectionClosed("id-1", types.ConnectionStats{}, true)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(gotFailed, qt.Equals, 2)
	c.Assert(gotClosed, qt.Equals, 1)
}

func TestEventBusConnectionClosedCarriesHasStatsFlag(t *testing.T) {
	c := qt.New(t)

	bus := newEventBus()
	var got ConnectionClosedEvent
	bus.OnConnectionClosed(func(evt ConnectionClosedEvent) { got = evt })

	bus.emitConnectionClosed("id-2", types.ConnectionStats{}, false)
	c.Assert(got.HasStats, qt.IsFalse)
	c.Assert(got.ConnectionID, qt.Equals, "id-2")
}
