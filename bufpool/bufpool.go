// Package bufpool provides pooled, growable buffers for the WebSocket
// receive and send paths. Messages arrive in arbitrarily sized fragments,
// so buffers are rented at a default size and doubled on demand rather than
// allocated fresh per message.
package bufpool

import (
	"math/bits"
	"sync"
)

// DefaultCapacity is used when Rent is called with min <= 0.
const DefaultCapacity = 4096

// MinFree is the free-space threshold the receive pipeline keeps available
// in a rented buffer before it asks for a bigger one.
const MinFree = 4096

// Pool is a thread-safe free list of []T slices, bucketed by power-of-two
// capacity. Rent returns a slice with len 0 and cap >= the requested
// minimum; Release returns it to the pool. A double Release on the same
// slice corrupts the free list and is a programmer error, same as a double
// free.
type Pool[T any] struct {
	buckets sync.Map // int(capacity class) -> *sync.Pool
}

// New returns an empty pool for element type T. Use bufpool.New[byte]() for
// the raw frame-payload pool and bufpool.New[rune]() for the decoded-text
// pool.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

func class(capacity int) int {
	if capacity <= DefaultCapacity {
		return DefaultCapacity
	}
	return 1 << bits.Len(uint(capacity-1))
}

func (p *Pool[T]) poolFor(c int) *sync.Pool {
	if sp, ok := p.buckets.Load(c); ok {
		return sp.(*sync.Pool)
	}
	sp := &sync.Pool{New: func() any {
		buf := make([]T, c)
		return &buf
	}}
	actual, _ := p.buckets.LoadOrStore(c, sp)
	return actual.(*sync.Pool)
}

// Rent returns a slice of length 0 with capacity >= min. min <= 0 means
// "give me the default size".
func (p *Pool[T]) Rent(min int) []T {
	c := class(min)
	sp := p.poolFor(c)
	buf := sp.Get().(*[]T)
	return (*buf)[:0]
}

// Release returns buf to the pool it was rented from. Calling Release twice
// on the same backing array, or on a slice never rented from p, is
// undefined — exactly one Release must follow exactly one Rent.
func (p *Pool[T]) Release(buf []T) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c == 0 {
		return
	}
	sp := p.poolFor(c)
	full := buf[:c]
	sp.Put(&full)
}

// Grow doubles buf's capacity (or at least used*2), copies the first used
// elements across, releases the old buffer into p and returns the new one.
// If buf already has room for used*2 elements it is returned unchanged.
func (p *Pool[T]) Grow(buf []T, used int) []T {
	if cap(buf) >= used*2 {
		return buf
	}
	next := p.Rent(used * 2)
	next = next[:used]
	copy(next, buf[:used])
	p.Release(buf)
	return next
}

// EnsureFree grows buf, if necessary, so that it has at least minFree
// elements of spare capacity beyond its current length. Used by the
// receive pipeline before each read so a single small fragment never
// forces more than one reallocation.
func (p *Pool[T]) EnsureFree(buf []T, minFree int) []T {
	used := len(buf)
	if cap(buf)-used >= minFree {
		return buf
	}
	want := used*2 + minFree
	next := p.Rent(want)
	next = next[:used]
	copy(next, buf[:used])
	p.Release(buf)
	return next
}
