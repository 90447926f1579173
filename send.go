package gows

import (
	"github.com/gobwas/ws"
	"github.com/pkg/errors"
)

// maxSingleFrame is the largest payload sent as one frame; larger payloads
// are chunked so the far end's receive buffer never has to grow past one
// chunk ahead of the data actually on the wire, and so a single huge send
// doesn't hold the connection's write lock for an unbounded time.
const maxSingleFrame = 65536

// chunkSize is maxSingleFrame with headroom left for the frame header
// (at most 14 bytes) so that a chunked payload's
// on-wire frames never exceed maxSingleFrame themselves.
const chunkSize = maxSingleFrame - 14

// SendBinary sends data as one or more Binary frames. Payloads up to
// maxSingleFrame bytes go out as a single frame; larger payloads are split
// into chunkSize-byte pieces, all but the last with fin=false.
func (c *Conn) SendBinary(data []byte) error {
	return c.sendChunked(ws.OpBinary, data)
}

// SendText encodes chars to UTF-8 into a pooled byte buffer and sends it
// as one or more Text frames, chunked the same way as SendBinary. The
// pooled buffer is released on every path, including when chunking fails
// partway through.
func (c *Conn) SendText(chars string) error {
	buf := bytePool.Rent(len(chars))
	buf = append(buf, chars...)
	defer bytePool.Release(buf)
	return c.sendChunked(ws.OpText, buf)
}

func (c *Conn) sendChunked(opcode ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(data) <= maxSingleFrame {
		if err := sendFrame(c.stream, opcode, data, true); err != nil {
			return errors.Wrap(ErrSend, err.Error())
		}
		return nil
	}

	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		frameOpcode := opcode
		if offset > 0 {
			frameOpcode = ws.OpContinuation
		}
		fin := end == len(data)
		if err := sendFrame(c.stream, frameOpcode, data[offset:end], fin); err != nil {
			return errors.Wrap(ErrSend, err.Error())
		}
	}
	return nil
}
