package conn_test

import (
	"io"
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/conn"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func TestTrackedConnCountsSourceBytes(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	a, b := net.Pipe()
	defer b.Close()

	tc := conn.NewTrackedConn(r, a)

	go func() {
		tc.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	_, err := io.ReadFull(b, buf)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf), qt.Equals, "hello")

	go func() {
		b.Write([]byte("world"))
	}()
	rbuf := make([]byte, 5)
	_, err = io.ReadFull(tc, rbuf)
	c.Assert(err, qt.IsNil)

	stats, ok := r.StatsFor(tc.ID())
	c.Assert(ok, qt.IsTrue)
	c.Assert(stats.SrcTxBytes, qt.Equals, int64(5))
	c.Assert(stats.SrcRxBytes, qt.Equals, int64(5))
}

func TestTrackedConnWriteErrorNotifiesErrorListener(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	a, b := net.Pipe()

	var gotID string
	var gotErr error
	done := make(chan struct{})
	r.SetErrorListener(func(id string, err error) {
		gotID = id
		gotErr = err
		close(done)
	})

	tc := conn.NewTrackedConn(r, a)
	b.Close()
	_, writeErr := tc.Write([]byte("x"))
	c.Assert(writeErr, qt.IsNotNil)

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("error listener never fired")
	}

	c.Assert(gotID, qt.Equals, tc.ID())
	c.Assert(gotErr, qt.Equals, writeErr)
}

func TestTrackedConnCloseIsIdempotentAndUnregisters(t *testing.T) {
	c := qt.New(t)

	r := conn.NewRegistry()
	a, b := net.Pipe()
	defer b.Close()

	done := make(chan struct{})
	r.SetCloseListener(func(id string, _ types.ConnectionStats) {
		close(done)
	})

	tc := conn.NewTrackedConn(r, a)
	c.Assert(tc.Close(), qt.IsNil)
	c.Assert(tc.Close(), qt.IsNil)

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("close listener never fired")
	}

	_, ok := r.Get(tc.ID())
	c.Assert(ok, qt.IsFalse)
}
