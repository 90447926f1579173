package gows

import (
	"io"

	"github.com/gobwas/ws"
)

// This file is the seam between the core and the frame codec the spec
// treats as an external collaborator (§1): github.com/gobwas/ws supplies
// the RFC 6455 §5 frame header parsing (ws.ReadHeader), payload unmasking
// (ws.Cipher), and header serialization (ws.WriteHeader) that the receive
// and send paths are built on top of. Everything above this file — frame
// reassembly, UTF-8 decode, chunked sends — is ours.

// frameResult is the {kind, len, end_of_message} tuple §1 says the
// underlying primitive must provide.
type frameResult struct {
	opcode ws.OpCode
	n      int
	fin    bool
}

// receiveFrame reads exactly one WebSocket frame from r, appending its
// payload after dst's current length and growing dst via pool if the
// payload doesn't fit, and returns the updated
// slice along with the frame's opcode/length/fin bit. Server-read frames
// from a compliant client are always masked; receiveFrame unmasks in
// place.
func receiveFrame(r io.Reader, pool interface{ EnsureFree([]byte, int) []byte }, dst []byte) ([]byte, frameResult, error) {
	header, err := ws.ReadHeader(r)
	if err != nil {
		return dst, frameResult{}, err
	}

	need := int(header.Length)
	dst = pool.EnsureFree(dst, need)
	start := len(dst)
	dst = dst[:start+need]

	if need > 0 {
		if _, err := io.ReadFull(r, dst[start:start+need]); err != nil {
			return dst[:start], frameResult{}, err
		}
	}
	if header.Masked {
		ws.Cipher(dst[start:start+need], header.Mask, 0)
	}

	return dst, frameResult{opcode: header.OpCode, n: need, fin: header.Fin}, nil
}

// sendFrame writes a single, unmasked (server->client frames are never
// masked per RFC 6455 §5.1) WebSocket frame.
func sendFrame(w io.Writer, opcode ws.OpCode, payload []byte, fin bool) error {
	header := ws.Header{
		Fin:    fin,
		OpCode: opcode,
		Length: int64(len(payload)),
	}
	if err := ws.WriteHeader(w, header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// closeFrameBody builds the 2-byte status code + UTF-8 reason payload of a
// close frame, truncating reason so the whole control frame stays within
// the 125-byte control-frame payload limit (RFC 6455 §5.5.1).
func closeFrameBody(code uint16, reason string) []byte {
	const maxReason = 123 // 125 - 2 status bytes
	if len(reason) > maxReason {
		reason = reason[:maxReason]
	}
	body := make([]byte, 2+len(reason))
	body[0] = byte(code >> 8)
	body[1] = byte(code)
	copy(body[2:], reason)
	return body
}

// parseCloseBody extracts the status code and reason a peer sent in a
// Close frame's payload. A payload shorter than 2 bytes has no status
// code.
func parseCloseBody(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return 0, ""
	}
	code = uint16(payload[0])<<8 | uint16(payload[1])
	reason = string(payload[2:])
	return code, reason
}
