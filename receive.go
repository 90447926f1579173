package gows

import (
	"context"
	"iter"
	"unicode/utf8"

	"github.com/gobwas/ws"

	"github.com/kaneboy/gows/bufpool"
)

// bytePool backs both the raw frame-payload buffers used while reassembling
// a whole message and the outbound send path (C6). runePool backs the
// decoded-text view handed to the application for Text messages. Both are
// process-wide and shared by every connection, per §5.
var (
	bytePool = bufpool.New[byte]()
	runePool = bufpool.New[rune]()
)

// Messages returns a cancellable, pull-based sequence of whole messages
// received on c, in arrival order. Ranging over it ends silently — with no
// error observable to the caller — on remote close, local close, or any
// I/O error; it ends because ctx was cancelled only if the caller cancels
// ctx. A second call to Messages on the same Conn (concurrent or
// sequential) returns an empty sequence: only the first caller drives the
// pipeline, matching the Idle->Starting->Receiving compare-and-swap of
// §4.5.
//
// The Message yielded at each step borrows pooled buffers that are
// recycled as soon as the loop body returns — see Message's doc comment.
func (c *Conn) Messages(ctx context.Context) iter.Seq[Message] {
	if !c.casRecvState(recvIdle, recvStarting) {
		return func(func(Message) bool) {}
	}
	c.storeRecvState(recvReceiving)

	out := make(chan Message)
	done := make(chan struct{})
	finished := make(chan struct{})
	go c.receiveLoop(ctx, out, done, finished)

	// net.Conn reads don't accept a context, so the only way to interrupt
	// one already blocked in receiveFrame is to close the connection out
	// from under it. This goroutine exits as soon as either ctx is
	// cancelled (having forced the close) or the pipeline ends on its own.
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-finished:
		}
	}()

	return func(yield func(Message) bool) {
		defer func() {
			// Unblock the producer if the consumer stops early (break,
			// return, or panic) without draining the channel.
			select {
			case <-done:
			default:
				close(done)
			}
			// Drain in the background: the producer may still be blocked in
			// a read that only ends with the next frame or the connection
			// closing, and the consumer must not wait on that.
			go func() {
				for range out {
				}
			}()
		}()
		for m := range out {
			keepGoing := yield(m)
			releaseMessage(m)
			if !keepGoing {
				return
			}
		}
	}
}

// receiveLoop is the single producer task described in §4.5. It owns the
// WebSocket connection exclusively: the underlying receive primitive is
// not re-entrant, so nothing else may read from c.stream while this runs.
func (c *Conn) receiveLoop(ctx context.Context, out chan<- Message, done <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	defer close(out)
	defer func() {
		if c.loadRecvState() != recvFaulted {
			c.storeRecvState(recvClosed)
		}
	}()

	buf := bytePool.Rent(int(c.maxSeen.Load()))
	used := 0
	ownsBuf := true
	var kind ws.OpCode
	defer func() {
		if ownsBuf {
			bytePool.Release(buf[:used])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		buf = bytePool.EnsureFree(buf[:used], bufpool.MinFree)
		grown, res, err := receiveFrame(c.stream, bytePool, buf[:used])
		buf = grown
		if err != nil {
			c.storeRecvState(recvFaulted)
			return
		}
		c.touch()

		if res.opcode == ws.OpClose {
			c.storeRecvState(recvClosing)
			code, reason := parseCloseBody(buf[used : used+res.n])
			c.writeCloseEcho(code, reason)
			return
		}
		if c.closed.Load() {
			return
		}

		// Ping and pong are control frames: answer a ping with a pong
		// carrying the same payload, and drop both without advancing used.
		if res.opcode == ws.OpPing || res.opcode == ws.OpPong {
			if res.opcode == ws.OpPing {
				c.writeMu.Lock()
				_ = sendFrame(c.stream, ws.OpPong, buf[used:used+res.n], true)
				c.writeMu.Unlock()
			}
			continue
		}

		// Only the first frame of a (possibly fragmented) message carries
		// its real opcode; every continuation frame's opcode is
		// ws.OpContinuation, so the kind has to be latched before used
		// advances past 0.
		if used == 0 {
			kind = res.opcode
		}

		used += res.n
		if !res.fin {
			continue
		}

		if used > int(c.maxSeen.Load()) {
			c.maxSeen.Store(int64(used))
		}

		msg := c.buildMessage(kind, buf[:used])
		ownsBuf = false
		buf = nil
		used = 0

		select {
		case out <- msg:
		case <-ctx.Done():
			releaseMessage(msg)
			return
		case <-done:
			releaseMessage(msg)
			return
		}

		buf = bytePool.Rent(int(c.maxSeen.Load()))
		used = 0
		ownsBuf = true
	}
}

// buildMessage takes ownership of raw (the reassembled whole-message byte
// buffer) and, for text, decodes it into a freshly rented rune buffer
// sized exactly to utf8.RuneCount(raw).
func (c *Conn) buildMessage(opcode ws.OpCode, raw []byte) Message {
	if opcode == ws.OpBinary {
		return Message{Kind: Binary, Bytes: raw}
	}

	n := utf8.RuneCount(raw)
	runes := runePool.Rent(n)
	runes = runes[:0]
	rest := raw
	for len(rest) > 0 {
		r, size := utf8.DecodeRune(rest)
		runes = append(runes, r)
		rest = rest[size:]
	}
	bytePool.Release(raw)
	return Message{Kind: Text, Runes: runes}
}

// releaseMessage returns m's pooled buffers. Per the data-model invariant
// in §3, the byte buffer is released before the char buffer.
func releaseMessage(m Message) {
	if m.Bytes != nil {
		bytePool.Release(m.Bytes)
	}
	if m.Runes != nil {
		runePool.Release(m.Runes)
	}
}

// writeCloseEcho best-effort echoes the peer's close status/reason back,
// per the frame-reassembly algorithm in §4.5. Failures are swallowed: the
// connection is going away regardless.
func (c *Conn) writeCloseEcho(code uint16, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = sendFrame(c.stream, ws.OpClose, closeFrameBody(code, reason), true)
}
