package gows

import (
	"io"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/kaneboy/gows/internal/trylock"
)

// UpgradeRequest is the immutable view of the parsed HTTP/1.1 request that
// is asking to be upgraded to WebSocket. Raw holds the request head exactly
// as it arrived on the wire (up to and including the terminating blank
// line); Headers is a case-insensitive lookup built from it.
type UpgradeRequest struct {
	Raw        string
	Headers    Header
	RemoteAddr string

	// stream is the byte stream the handshake was read from. It may be
	// replaced by DecorateStream before Accept/Reject is called.
	stream io.ReadWriter
}

// Key returns the Sec-WebSocket-Key header value, or "" if absent.
func (r *UpgradeRequest) Key() string {
	return r.Headers.Get("Sec-WebSocket-Key")
}

// UpgradeResponse is the mutable, not-yet-committed half of the handshake.
// StatusCode defaults to 401 so that a handler which forgets to call
// Accept/Reject fails closed. ExtraHeaders are written verbatim, one
// "K: V\r\n" per entry, on whichever of Accept/Reject finally commits.
//
// Per §3, a response becomes committed exactly when Accept or Reject is
// invoked, and mutating it afterwards is a caller error: both Accept and
// Reject read StatusCode/ExtraHeaders and write the wire response before
// returning, so any write to these fields after either has returned is
// silently discarded — it can no longer affect a response that already
// went out. Mutate only up to the point of calling Accept/Reject, never
// after.
type UpgradeResponse struct {
	StatusCode   int
	ExtraHeaders Header
}

// upgradeState is the terminal state of an UpgradeContext.
type upgradeState int

const (
	stateOpen upgradeState = iota
	stateCommitted
	stateFailed
)

// UpgradeContext is handed to the application's handshake handler exactly
// once per accepted connection. Exactly one of Accept/Reject must be
// called; if the handler returns without calling either, the connection is
// closed with an implicit reject at whatever StatusCode was last set.
type UpgradeContext struct {
	Request  *UpgradeRequest
	Response *UpgradeResponse

	rawConn net.Conn
	commit  trylock.Switch
	state   upgradeState
	conn    *Conn // set by Accept; read by the listener to own its lifetime

	// onAccept, if set by the listener, is invoked with the new Conn the
	// instant Accept succeeds — before the handler call that may block for
	// the connection's whole lifetime returns. Used to register the Conn
	// with the keep-alive ticker.
	onAccept func(*Conn)
}

func newUpgradeContext(rawConn net.Conn, req *UpgradeRequest) *UpgradeContext {
	return &UpgradeContext{
		Request: req,
		Response: &UpgradeResponse{
			StatusCode:   http.StatusUnauthorized,
			ExtraHeaders: Header{"X-WSS-Library-Author": "kaneboy"},
		},
		rawConn: rawConn,
	}
}

// DecorateStream wraps the underlying byte stream — for TLS, compression,
// rate limiting, and so on — before the handshake response is written. It
// must be called zero or one times, and only before Accept. If fn returns
// an error the context becomes permanently invalid: the TCP connection is
// destroyed and any subsequent Accept/Reject returns ErrInvalidState.
func (c *UpgradeContext) DecorateStream(fn func(io.ReadWriter) (io.ReadWriter, error)) error {
	if c.state != stateOpen {
		return ErrInvalidState
	}
	wrapped, err := fn(c.Request.stream)
	if err != nil {
		c.state = stateFailed
		c.rawConn.Close()
		return errors.Wrap(ErrDecoratorFailed, err.Error())
	}
	c.Request.stream = wrapped
	return nil
}

// Accept commits the response with status 101, writes the success
// response, and returns a live Conn wrapping the (possibly decorated)
// stream. It fails with ErrInvalidState if the context already committed or
// failed. Whatever Response.StatusCode held beforehand is overwritten with
// 101; it is not checked.
func (c *UpgradeContext) Accept() (*Conn, error) {
	if c.state != stateOpen || !c.commit.TryLock() {
		return nil, ErrInvalidState
	}
	c.state = stateCommitted
	c.Response.StatusCode = http.StatusSwitchingProtocols

	if err := writeAcceptResponse(c.Request.stream, c.Request.Key(), c.Response.ExtraHeaders); err != nil {
		c.rawConn.Close()
		return nil, errors.Wrap(ErrSend, "writing accept response: "+err.Error())
	}

	c.conn = newConn(c.rawConn, c.Request.stream, c.Request.RemoteAddr)
	if c.onAccept != nil {
		c.onAccept(c.conn)
	}
	return c.conn, nil
}

// AcceptedConn returns the Conn created by a successful Accept, or nil if
// Accept was never called or didn't succeed. The listener uses this to
// take ownership of the connection's lifetime once the handshake handler
// returns; applications should use the Conn returned directly by Accept
// instead.
func (c *UpgradeContext) AcceptedConn() *Conn {
	return c.conn
}

// Reject commits the response with the given non-101 status, writes the
// reject response, and closes the TCP connection.
func (c *UpgradeContext) Reject(status int) error {
	if status == http.StatusSwitchingProtocols {
		panic("gows: Reject called with status 101")
	}
	if c.state != stateOpen || !c.commit.TryLock() {
		return ErrInvalidState
	}
	c.state = stateCommitted
	c.Response.StatusCode = status

	err := writeRejectResponse(c.Request.stream, status, c.Response.ExtraHeaders)
	c.rawConn.Close()
	if err != nil {
		return errors.Wrap(ErrSend, "writing reject response: "+err.Error())
	}
	return nil
}

// implicitReject is invoked by the listener when the application handler
// returns without calling Accept or Reject.
func (c *UpgradeContext) implicitReject() {
	if c.state != stateOpen {
		return
	}
	_ = c.Reject(c.Response.StatusCode)
}
