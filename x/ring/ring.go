// Package ring is a byte FIFO with power-of-two capacity, used for modelled
// peripheral FIFOs. Indices are monotonic and wrap through a mask.
package ring

import "sync/atomic"

// Ring is safe for one writer and one reader running concurrently.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32
	wr   atomic.Uint32
}

// New returns a ring of size bytes. size must be a power of two.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be a power of two")
	}
	return &Ring{buf: make([]byte, size), mask: uint32(size - 1)}
}

// Cap returns the capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Available returns the bytes waiting to be read.
func (r *Ring) Available() int { return int(r.wr.Load() - r.rd.Load()) }

// Space returns the bytes that can be written without overwriting.
func (r *Ring) Space() int { return r.Cap() - r.Available() }

// span returns the two pieces of the buffer covering n bytes from index i.
func (r *Ring) span(i uint32, n int) (a, b []byte) {
	at := int(i & r.mask)
	if end := at + n; end <= len(r.buf) {
		return r.buf[at:end], nil
	}
	return r.buf[at:], r.buf[:at+n-len(r.buf)]
}

// Write copies as much of src as fits and returns the count.
func (r *Ring) Write(src []byte) int {
	wr := r.wr.Load()
	n := min(len(src), r.Space())
	if n == 0 {
		return 0
	}
	a, b := r.span(wr, n)
	copy(b, src[copy(a, src):n])
	r.wr.Store(wr + uint32(n))
	return n
}

// Push appends one byte; it reports false when the ring is full.
func (r *Ring) Push(c byte) bool { return r.Write([]byte{c}) == 1 }

// Read copies up to len(dst) bytes out and returns the count.
func (r *Ring) Read(dst []byte) int {
	rd := r.rd.Load()
	n := min(len(dst), r.Available())
	if n == 0 {
		return 0
	}
	a, b := r.span(rd, n)
	copy(dst[copy(dst, a):n], b)
	r.rd.Store(rd + uint32(n))
	return n
}

// Pop removes one byte; ok is false when the ring is empty.
func (r *Ring) Pop() (byte, bool) {
	var c [1]byte
	if r.Read(c[:]) == 0 {
		return 0, false
	}
	return c[0], true
}

// Reset discards unread data. Only the consumer may call it.
func (r *Ring) Reset() { r.rd.Store(r.wr.Load()) }
