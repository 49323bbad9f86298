package conn_test

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/conn"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func TestRegisterAssignsDistinctIDs(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	first := r.Register(a)
	second := r.Register(b)

	c.Assert(first.ID(), qt.Not(qt.Equals), second.ID())
	c.Assert(len(r.IDs()), qt.Equals, 2)
}

func TestUnregisterFiresCloseListenerWithCapturedStats(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	a, b := net.Pipe()
	defer b.Close()

	entry := r.Register(a)
	entry.AddSourceTx(10)
	entry.AddTargetRx(5)

	done := make(chan struct{})
	var captured types.ConnectionStats
	r.SetCloseListener(func(id string, stats types.ConnectionStats) {
		captured = stats
		close(done)
	})

	r.Unregister(entry.ID())

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("close listener never fired")
	}

	c.Assert(captured.SrcTxBytes, qt.Equals, int64(10))
	c.Assert(captured.TrgRxBytes, qt.Equals, int64(5))

	_, ok := r.Get(entry.ID())
	c.Assert(ok, qt.IsFalse)
}

func TestStatsForMissingIDReturnsFalse(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	_, ok := r.StatsFor("does-not-exist")
	c.Assert(ok, qt.IsFalse)
}

func TestDestroyAllClosesEverySocket(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	var closedIDs []string
	var mu sync.Mutex
	r.SetCloseListener(func(id string, _ types.ConnectionStats) {
		mu.Lock()
		closedIDs = append(closedIDs, id)
		mu.Unlock()
	})

	// DestroyAll closes the raw socket directly; it relies on whatever is
	// blocked reading that socket (http.Server's keep-alive loop in
	// production, the splice goroutines for a tunnel) to notice the error
	// and call TrackedConn.Close(), which is what actually unregisters the
	// connection. Model that reader here the same way.
	const n = 5
	sides := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		a, b := net.Pipe()
		sides = append(sides, b)
		tc := conn.NewTrackedConn(r, a)
		go func() {
			io.Copy(io.Discard, tc)
			tc.Close()
		}()
	}
	defer func() {
		for _, s := range sides {
			s.Close()
		}
	}()

	c.Assert(len(r.IDs()), qt.Equals, n)
	r.DestroyAll()

	deadline := time.Now().Add(time.Second)
	for len(r.IDs()) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Assert(r.IDs(), qt.HasLen, 0)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(closedIDs, qt.HasLen, n)
}
