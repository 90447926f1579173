package gows

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/gobwas/ws"

	"github.com/kaneboy/gows/bufpool"
)

// readFrames drains every frame sendChunked wrote to conn until fin, using
// the same receiveFrame primitive the receive pipeline is built on, and
// returns the reassembled payload plus how many frames it took.
func readFrames(t *testing.T, r net.Conn) ([]byte, int) {
	t.Helper()
	pool := bufpool.New[byte]()
	buf := pool.Rent(0)
	frames := 0
	for {
		grown, res, err := receiveFrame(r, pool, buf)
		buf = grown
		if err != nil {
			t.Fatalf("receiveFrame: %v", err)
		}
		frames++
		if res.fin {
			break
		}
	}
	return buf, frames
}

func TestSendBinarySingleFrameUnderLimit(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newConn(server, server, "test")
	data := bytes.Repeat([]byte{0xAB}, maxSingleFrame)

	done := make(chan error, 1)
	go func() { done <- c.SendBinary(data) }()

	got, frames := readFrames(t, client)
	if err := <-done; err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
	if frames != 1 {
		t.Fatalf("frames = %d, want 1 for exactly maxSingleFrame bytes", frames)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestSendBinaryChunksOneByteOver(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newConn(server, server, "test")
	data := bytes.Repeat([]byte{0xCD}, maxSingleFrame+1)

	done := make(chan error, 1)
	go func() { done <- c.SendBinary(data) }()

	got, frames := readFrames(t, client)
	if err := <-done; err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
	if frames != 2 {
		t.Fatalf("frames = %d, want 2 for maxSingleFrame+1 bytes", frames)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestSendBinaryLargePayloadChunkCount(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newConn(server, server, "test")
	data := bytes.Repeat([]byte{0xEF}, 200000)

	done := make(chan error, 1)
	go func() { done <- c.SendBinary(data) }()

	got, frames := readFrames(t, client)
	if err := <-done; err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
	if frames != 4 {
		t.Fatalf("frames = %d, want 4 for 200000 bytes at chunkSize=%d", frames, chunkSize)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestSendTextEncodesUTF8(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newConn(server, server, "test")
	const text = "hello, 世界"

	done := make(chan error, 1)
	go func() { done <- c.SendText(text) }()

	got, _ := readFrames(t, client)
	if err := <-done; err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if string(got) != text {
		t.Fatalf("got %q, want %q", got, text)
	}
}

func TestSendChunkedUsesContinuationOpcode(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newConn(server, server, "test")
	data := bytes.Repeat([]byte{0x11}, maxSingleFrame+10)

	done := make(chan error, 1)
	go func() { done <- c.SendBinary(data) }()

	first, err := ws.ReadHeader(client)
	if err != nil {
		t.Fatalf("reading first header: %v", err)
	}
	if first.OpCode != ws.OpBinary || first.Fin {
		t.Fatalf("first frame = %+v, want OpBinary and fin=false", first)
	}
	discard := make([]byte, first.Length)
	_, _ = io.ReadFull(client, discard)

	second, err := ws.ReadHeader(client)
	if err != nil {
		t.Fatalf("reading second header: %v", err)
	}
	if second.OpCode != ws.OpContinuation || !second.Fin {
		t.Fatalf("second frame = %+v, want OpContinuation and fin=true", second)
	}
	discard2 := make([]byte, second.Length)
	_, _ = io.ReadFull(client, discard2)

	if err := <-done; err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
}
