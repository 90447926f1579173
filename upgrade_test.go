package gows

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"testing"
)

func newTestUpgradeContext(t *testing.T) (*UpgradeContext, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	req := &UpgradeRequest{
		Raw:        "GET / HTTP/1.1\r\n\r\n",
		Headers:    Header{"sec-websocket-key": "dGhlIHNhbXBsZSBub25jZQ=="},
		RemoteAddr: server.RemoteAddr().String(),
		stream:     server,
	}
	return newUpgradeContext(server, req), client
}

func TestAcceptWritesResponseAndReturnsConn(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)

	done := make(chan struct{})
	var conn *Conn
	var err error
	go func() {
		conn, err = upCtx.Accept()
		close(done)
	}()

	br := bufio.NewReader(client)
	line, rerr := br.ReadString('\n')
	if rerr != nil {
		t.Fatalf("reading response: %v", rerr)
	}
	if line != "HTTP/1.1 101 Switching Protocols\r\n" {
		t.Fatalf("status line = %q", line)
	}
	for {
		l, rerr := br.ReadString('\n')
		if rerr != nil {
			t.Fatalf("reading headers: %v", rerr)
		}
		if l == "\r\n" {
			break
		}
	}

	<-done
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if conn == nil {
		t.Fatal("Accept returned a nil Conn")
	}
	if upCtx.AcceptedConn() != conn {
		t.Fatal("AcceptedConn() didn't return the accepted Conn")
	}
}

func TestAcceptTwiceFails(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)
	go io.Copy(io.Discard, client)

	if _, err := upCtx.Accept(); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if _, err := upCtx.Accept(); err != ErrInvalidState {
		t.Fatalf("second Accept err = %v, want ErrInvalidState", err)
	}
}

func TestRejectThenAcceptFails(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)
	go io.Copy(io.Discard, client)

	if err := upCtx.Reject(http.StatusForbidden); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := upCtx.Accept(); err != ErrInvalidState {
		t.Fatalf("Accept after Reject err = %v, want ErrInvalidState", err)
	}
}

func TestRejectPanicsOn101(t *testing.T) {
	upCtx, _ := newTestUpgradeContext(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected Reject(101) to panic")
		}
	}()
	upCtx.Reject(http.StatusSwitchingProtocols)
}

func TestImplicitRejectOnlyActsOnce(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)
	go io.Copy(io.Discard, client)

	upCtx.implicitReject()
	if !upCtx.commit.Locked() {
		t.Fatal("implicitReject should have committed the switch")
	}
	// Calling it again must not panic or double-close.
	upCtx.implicitReject()
}

func TestResponseMutationAfterCommitHasNoEffect(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)
	go io.Copy(io.Discard, client)

	if err := upCtx.Reject(http.StatusForbidden); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	// Mutating Response after commit is a caller error per its doc comment;
	// it has no effect on the already-written wire response, and must not
	// resurrect the context or change how later calls are rejected.
	upCtx.Response.StatusCode = http.StatusSwitchingProtocols
	upCtx.Response.ExtraHeaders.Delete("X-WSS-Library-Author")

	if _, err := upCtx.Accept(); err != ErrInvalidState {
		t.Fatalf("Accept after post-commit mutation err = %v, want ErrInvalidState", err)
	}
	if err := upCtx.Reject(http.StatusTeapot); err != ErrInvalidState {
		t.Fatalf("Reject after post-commit mutation err = %v, want ErrInvalidState", err)
	}
}

func TestOnAcceptCalledBeforeAcceptReturns(t *testing.T) {
	upCtx, client := newTestUpgradeContext(t)
	go io.Copy(io.Discard, client)

	var notified *Conn
	upCtx.onAccept = func(c *Conn) { notified = c }

	conn, err := upCtx.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if notified != conn {
		t.Fatalf("onAccept saw %v, want %v", notified, conn)
	}
}
