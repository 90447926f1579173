package gows

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/kaneboy/gows/bufpool"
)

// bufReaderPool recycles the bufio.Reader wrapped around each connection
// during handshake parsing, grounded on the teacher's bufferReaderPool.
var bufReaderPool = sync.Pool{New: func() any {
	return bufio.NewReaderSize(nil, bufpool.DefaultCapacity)
}}

// websocketGUID is the RFC 6455 §4.2.2 magic string used to derive
// Sec-WebSocket-Accept from Sec-WebSocket-Key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// headerPool rents the transient byte buffer used while accumulating the
// request head before "\r\n\r\n" has arrived.
var headerPool = bufpool.New[byte]()

// Header is a case-insensitive map of HTTP header names to values, built by
// splitting the raw request head on CRLF then on the first colon. Keys are
// stored lower-cased by the parser and lower-cased again on lookup; entries
// written with a map literal keep whatever case the literal used.
type Header map[string]string

// Get looks up key case-insensitively, returning "" if absent.
func (h Header) Get(key string) string {
	return h[strings.ToLower(key)]
}

func (h Header) set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Delete removes key, case-insensitively matched against entries set via
// set. It has no effect on entries inserted with a different-case literal
// key (such as the default X-WSS-Library-Author on a Response's
// ExtraHeaders) — delete those by their exact literal key instead.
func (h Header) Delete(key string) {
	delete(h, strings.ToLower(key))
}

// readRequestHead reads from r, byte by byte via a buffered accumulator,
// until the request head terminator "\r\n\r\n" has been seen, or the peer
// disconnects. It does not hand back any bytes sent past the terminator as
// part of raw, but bufio's own read-ahead means some of those bytes (the
// start of the first WebSocket frame, for a fast client) may already have
// been pulled off r into the internal buffer by the time the terminator is
// found — leftover returns exactly those bytes so the caller can splice
// them back in front of r before using it for anything else.
//
// Per §4.2, the only structural requirement enforced here is that the
// first line starts with "GET" (case-insensitive); everything else is left
// to the caller's Header lookups.
func readRequestHead(r io.Reader) (raw string, headers Header, leftover []byte, err error) {
	br := bufReaderPool.Get().(*bufio.Reader)
	br.Reset(r)
	defer func() {
		br.Reset(nil)
		bufReaderPool.Put(br)
	}()

	buf := headerPool.Rent(0)
	defer func() { headerPool.Release(buf) }()

	for {
		if len(buf) >= cap(buf) {
			buf = headerPool.Grow(buf, len(buf))
		}
		b, rerr := br.ReadByte()
		if rerr != nil {
			if len(buf) == 0 {
				return "", nil, nil, errors.Wrap(ErrClosedDuringHandshake, "no bytes received")
			}
			return "", nil, nil, errors.Wrap(ErrClosedDuringHandshake, "connection dropped mid-handshake")
		}
		buf = append(buf, b)
		if len(buf) >= 4 && string(buf[len(buf)-4:]) == "\r\n\r\n" {
			break
		}
	}

	if n := br.Buffered(); n > 0 {
		leftover = make([]byte, n)
		_, _ = br.Read(leftover)
	}

	raw = string(buf)
	headers, err = parseHeaders(raw)
	return raw, headers, leftover, err
}

// parseHeaders validates the request line and splits the remaining lines
// into a case-insensitive header map. Duplicate keys: last one wins.
func parseHeaders(raw string) (Header, error) {
	lines := strings.Split(raw, "\r\n")
	if len(lines) < 1 {
		return nil, ErrMalformedUpgrade
	}
	requestLine := lines[0]
	if len(requestLine) < 3 || !strings.EqualFold(requestLine[:3], "GET") {
		return nil, ErrMalformedUpgrade
	}

	headers := make(Header, len(lines))
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers.set(key, value)
	}
	return headers, nil
}

// acceptKey computes Sec-WebSocket-Accept = base64(sha1(trim(key) + GUID)).
func acceptKey(key string) string {
	key = strings.TrimSpace(key)
	sum := sha1.Sum([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// writeAcceptResponse writes the literal RFC 6455 success response: status
// line, the three required headers, any extra headers, and the blank line
// that ends the head. Exactly one rented byte buffer is used for the
// encode and released on every path.
func writeAcceptResponse(w io.Writer, secWebSocketKey string, extra Header) error {
	buf := headerPool.Rent(0)
	defer headerPool.Release(buf)

	buf = append(buf, "HTTP/1.1 101 Switching Protocols\r\n"...)
	buf = append(buf, "Connection: Upgrade\r\n"...)
	buf = append(buf, "Upgrade: websocket\r\n"...)
	buf = append(buf, "Sec-WebSocket-Accept: "...)
	buf = append(buf, acceptKey(secWebSocketKey)...)
	buf = append(buf, "\r\n"...)
	for k, v := range extra {
		buf = append(buf, k...)
		buf = append(buf, ": "...)
		buf = append(buf, v...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)

	_, err := w.Write(buf)
	return err
}

// writeRejectResponse writes "HTTP/1.1 <code> <reason>\r\n<extra>\r\n\r\n".
func writeRejectResponse(w io.Writer, status int, extra Header) error {
	buf := headerPool.Rent(0)
	defer headerPool.Release(buf)

	reason := http.StatusText(status)
	buf = append(buf, "HTTP/1.1 "...)
	buf = appendInt(buf, status)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, "\r\n"...)
	for k, v := range extra {
		buf = append(buf, k...)
		buf = append(buf, ": "...)
		buf = append(buf, v...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)

	_, err := w.Write(buf)
	return err
}

func appendInt(buf []byte, n int) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	// reverse the digits just appended
	end := len(buf) - 1
	for i, j := start, end; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// newConnID generates a per-connection identifier, grounded on the
// teacher's use of github.com/pborman/uuid for Conn.Cid.
func newConnID() string {
	return uuid.New()
}

// prefixedStream serves reads from a fixed prefix before falling through
// to the underlying stream, so bytes speculatively read-ahead during
// handshake parsing aren't lost once the stream is handed to the receive
// pipeline.
type prefixedStream struct {
	prefix []byte
	io.ReadWriter
}

func (p *prefixedStream) Read(b []byte) (int, error) {
	if len(p.prefix) == 0 {
		return p.ReadWriter.Read(b)
	}
	n := copy(b, p.prefix)
	p.prefix = p.prefix[n:]
	return n, nil
}

// withLeftover wraps stream so a prior read's left-over buffered bytes are
// served first. Returns stream unchanged if there's nothing to splice in.
func withLeftover(stream io.ReadWriter, leftover []byte) io.ReadWriter {
	if len(leftover) == 0 {
		return stream
	}
	return &prefixedStream{prefix: leftover, ReadWriter: stream}
}
