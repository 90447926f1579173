package gows

import (
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// recvState is the per-connection receive pipeline state machine from
// §4.5: Idle -> Starting -> Receiving -> Closing -> Closed/Faulted. The
// Starting -> Receiving transition is a single CAS so a second call to
// Messages on the same Conn is a no-op (returns a sequence that yields
// nothing).
type recvState int32

const (
	recvIdle recvState = iota
	recvStarting
	recvReceiving
	recvClosing
	recvClosed
	recvFaulted
)

// Conn is a single accepted, handshaken WebSocket connection. It owns the
// byte stream it was handed at Accept time (possibly wrapped by a
// DecorateStream hook) and the underlying TCP connection beneath it.
type Conn struct {
	id         string
	rawConn    net.Conn
	stream     io.ReadWriter
	remoteAddr string

	recvState  atomic.Int32
	maxSeen    atomic.Int64 // largest whole message size seen so far, for buffer sizing
	lastActive atomic.Int64 // unix nanos of the last frame received, for keep-alive

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(rawConn net.Conn, stream io.ReadWriter, remoteAddr string) *Conn {
	c := &Conn{
		id:         newConnID(),
		rawConn:    rawConn,
		stream:     stream,
		remoteAddr: remoteAddr,
	}
	c.touch()
	return c
}

// touch records that a frame was just received, resetting the idle clock
// the keep-alive ticker measures against.
func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// idleSince reports how long it has been since the last frame was received.
func (c *Conn) idleSince() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

// ID returns the connection's opaque identifier, stable for its lifetime.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the remote IP:port captured at accept time.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Close tears down the connection. Safe to call more than once and from
// any goroutine; only the first call has an effect.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.rawConn.Close()
}

func (c *Conn) loadRecvState() recvState { return recvState(c.recvState.Load()) }

func (c *Conn) casRecvState(from, to recvState) bool {
	return c.recvState.CompareAndSwap(int32(from), int32(to))
}

func (c *Conn) storeRecvState(s recvState) { c.recvState.Store(int32(s)) }
