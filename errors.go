package gows

import "github.com/pkg/errors"

// Error taxonomy for the upgrade/handshake path. These are the kinds named
// in the design notes, not exhaustive wrapped call chains — match them with
// errors.Is.
var (
	// ErrClosedDuringHandshake means the client disconnected before a full
	// request head ("\r\n\r\n") arrived.
	ErrClosedDuringHandshake = errors.New("gows: connection closed during handshake")

	// ErrMalformedUpgrade means the request line wasn't GET or
	// Sec-WebSocket-Key was missing.
	ErrMalformedUpgrade = errors.New("gows: malformed upgrade request")

	// ErrDecoratorFailed means the stream decorator hook returned an error.
	ErrDecoratorFailed = errors.New("gows: stream decorator failed")

	// ErrInvalidState means accept/reject was called on an
	// already-committed UpgradeContext, or after DecorateStream failed.
	ErrInvalidState = errors.New("gows: upgrade context already committed or invalid")

	// ErrListenerClosed is returned by Server.Start when the listener
	// can't be bound.
	ErrListenerClosed = errors.New("gows: listener closed")

	// ErrSend is wrapped around I/O failures observed while writing frames.
	ErrSend = errors.New("gows: send failed")
)
