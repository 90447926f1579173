package gows

import (
	"container/list"
	"sync"
	"time"
)

// keepAliveTicker closes connections that haven't produced a frame within
// the configured interval. Connections are tracked in a linked list keyed
// by *Conn for O(1) untrack; every tick walks the whole list and checks
// each connection's own idle clock, since list position carries no
// ordering once touch() can happen at any point without reshuffling it.
type keepAliveTicker struct {
	interval time.Duration

	mu      sync.Mutex
	entries *list.List
	index   map[*Conn]*list.Element

	stopCh chan struct{}
	doneCh chan struct{}
}

func newKeepAliveTicker(interval time.Duration) *keepAliveTicker {
	return &keepAliveTicker{
		interval: interval,
		entries:  list.New(),
		index:    map[*Conn]*list.Element{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// track registers conn with the ticker.
func (k *keepAliveTicker) track(conn *Conn) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.index[conn]; ok {
		return
	}
	k.index[conn] = k.entries.PushBack(conn)
}

// untrack removes conn, typically once it's closed.
func (k *keepAliveTicker) untrack(conn *Conn) {
	k.mu.Lock()
	defer k.mu.Unlock()
	elem, ok := k.index[conn]
	if !ok {
		return
	}
	k.entries.Remove(elem)
	delete(k.index, conn)
}

func (k *keepAliveTicker) start() {
	go func() {
		defer close(k.doneCh)
		t := time.NewTicker(k.interval)
		defer t.Stop()
		for {
			select {
			case <-k.stopCh:
				return
			case <-t.C:
				k.sweep()
			}
		}
	}()
}

func (k *keepAliveTicker) stop() {
	close(k.stopCh)
	<-k.doneCh
}

// sweep walks every tracked connection and closes the ones that have been
// idle past interval. Each conn's own lastActive clock decides, not list
// position, since activity doesn't reorder the list.
func (k *keepAliveTicker) sweep() {
	var toClose []*Conn

	k.mu.Lock()
	for e := k.entries.Front(); e != nil; e = e.Next() {
		conn := e.Value.(*Conn)
		if conn.idleSince() > k.interval {
			toClose = append(toClose, conn)
		}
	}
	for _, conn := range toClose {
		if elem, ok := k.index[conn]; ok {
			k.entries.Remove(elem)
			delete(k.index, conn)
		}
	}
	k.mu.Unlock()

	for _, conn := range toClose {
		conn.Close()
	}
}
