package gows

import (
	"container/list"
	"sync"
)

// Registry is an opt-in, mutex-protected connection directory an
// application can use to implement broadcast and targeted send — the core
// listener/handshake/receive pipeline never touches one. Grounded on the
// teacher's DefaultConnMgr, generalized so the key is whatever identity
// the application assigns (user id, room id, ...) rather than a
// library-defined Uid/GroupId pair.
type Registry struct {
	mu      sync.Mutex
	all     *list.List
	byKey   map[string][]*Conn
	element map[*Conn]*list.Element
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		all:     list.New(),
		byKey:   make(map[string][]*Conn),
		element: make(map[*Conn]*list.Element),
	}
}

// Add registers conn under key (e.g. a user or room id). A Conn may be
// added under more than one key by calling Add again with the same conn.
func (r *Registry) Add(key string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = append(r.byKey[key], conn)
	if _, tracked := r.element[conn]; !tracked {
		r.element[conn] = r.all.PushBack(conn)
	}
}

// Remove drops conn from the registry entirely, under every key it was
// added with. Call it when the connection closes.
func (r *Registry) Remove(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, conns := range r.byKey {
		filtered := conns[:0]
		for _, c := range conns {
			if c != conn {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = filtered
		}
	}
	if e, ok := r.element[conn]; ok {
		r.all.Remove(e)
		delete(r.element, conn)
	}
}

// ByKey returns every Conn registered under key, or nil if none.
func (r *Registry) ByKey(key string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Conn(nil), r.byKey[key]...)
}

// All returns every registered Conn, in registration order.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, r.all.Len())
	for e := r.all.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Conn))
	}
	return out
}

// Broadcast calls send on every registered connection, collecting and
// returning the per-connection errors (nil entries omitted). Typical send
// is conn.SendText or conn.SendBinary.
func (r *Registry) Broadcast(send func(*Conn) error) []error {
	var errs []error
	for _, conn := range r.All() {
		if err := send(conn); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
