package gows

import (
	"net"
	"testing"
	"time"
)

func newUntrackedConn(t *testing.T) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return newConn(server, server, "test")
}

func TestKeepAliveTickerClosesIdleConn(t *testing.T) {
	k := newKeepAliveTicker(30 * time.Millisecond)
	c := newUntrackedConn(t)
	k.track(c)
	k.start()
	defer k.stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.closed.Load() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected idle connection to be closed by the ticker")
}

func TestKeepAliveTickerLeavesActiveConnOpen(t *testing.T) {
	k := newKeepAliveTicker(200 * time.Millisecond)
	c := newUntrackedConn(t)
	k.track(c)
	k.start()
	defer k.stop()

	stop := time.After(150 * time.Millisecond)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			c.touch()
		}
	}

	if c.closed.Load() {
		t.Fatal("an actively touched connection should not be closed")
	}
}

func TestKeepAliveTickerUntrack(t *testing.T) {
	k := newKeepAliveTicker(20 * time.Millisecond)
	c := newUntrackedConn(t)
	k.track(c)
	k.untrack(c)
	k.start()
	defer k.stop()

	time.Sleep(100 * time.Millisecond)
	if c.closed.Load() {
		t.Fatal("an untracked connection should never be closed by the ticker")
	}
}

func TestKeepAliveTrackIsIdempotent(t *testing.T) {
	k := newKeepAliveTicker(time.Second)
	c := newUntrackedConn(t)
	k.track(c)
	k.track(c)
	if k.entries.Len() != 1 {
		t.Fatalf("entries.Len() = %d, want 1", k.entries.Len())
	}
}
