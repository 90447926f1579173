package gows

import (
	"errors"
	"net"
	"testing"
)

func newRegistryTestConn(t *testing.T) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return newConn(server, server, "test")
}

func TestRegistryAddAndByKey(t *testing.T) {
	r := NewRegistry()
	a := newRegistryTestConn(t)
	b := newRegistryTestConn(t)

	r.Add("room-1", a)
	r.Add("room-1", b)
	r.Add("room-2", b)

	got := r.ByKey("room-1")
	if len(got) != 2 {
		t.Fatalf("ByKey(room-1) = %d conns, want 2", len(got))
	}
	if len(r.ByKey("room-2")) != 1 {
		t.Fatalf("ByKey(room-2) = %d conns, want 1", len(r.ByKey("room-2")))
	}
	if len(r.ByKey("missing")) != 0 {
		t.Fatalf("ByKey(missing) = %d conns, want 0", len(r.ByKey("missing")))
	}
}

func TestRegistryAllPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	a := newRegistryTestConn(t)
	b := newRegistryTestConn(t)
	r.Add("x", a)
	r.Add("y", b)

	all := r.All()
	if len(all) != 2 || all[0] != a || all[1] != b {
		t.Fatalf("All() = %v, want [a b] in registration order", all)
	}
}

func TestRegistryRemoveDropsEveryKey(t *testing.T) {
	r := NewRegistry()
	a := newRegistryTestConn(t)
	r.Add("room-1", a)
	r.Add("room-2", a)

	r.Remove(a)

	if len(r.ByKey("room-1")) != 0 || len(r.ByKey("room-2")) != 0 {
		t.Fatal("Remove should drop the connection from every key it was added under")
	}
	if len(r.All()) != 0 {
		t.Fatal("Remove should drop the connection from All()")
	}
}

func TestRegistryBroadcastCollectsErrors(t *testing.T) {
	r := NewRegistry()
	a := newRegistryTestConn(t)
	b := newRegistryTestConn(t)
	r.Add("all", a)
	r.Add("all", b)

	boom := errors.New("boom")
	errs := r.Broadcast(func(c *Conn) error {
		if c == a {
			return boom
		}
		return nil
	})
	if len(errs) != 1 || errs[0] != boom {
		t.Fatalf("Broadcast errs = %v, want [boom]", errs)
	}
}
