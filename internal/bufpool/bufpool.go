// File: internal/bufpool/bufpool.go
// Package bufpool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size-classed buffer pooling for session input windows. Classes are
// powers of two between the configured bounds; a request is served by
// the smallest class that fits, so a session that accumulates a large
// partial frame grows through a handful of classes instead of
// reallocating per read.

package bufpool

import "sync"

// Pool hands out byte slices in power-of-two size classes. It
// satisfies api.BytePool. The zero value is not usable, construct
// with New.
type Pool struct {
	minSize int
	maxSize int
	classes []*sync.Pool
}

// New creates a pool with classes from minSize to maxSize, both
// rounded up to powers of two. Requests beyond maxSize fall through to
// plain allocation and are never retained.
func New(minSize, maxSize int) *Pool {
	if minSize < 64 {
		minSize = 64
	}
	minSize = nextPowerOfTwo(minSize)
	if maxSize < minSize {
		maxSize = minSize
	}
	maxSize = nextPowerOfTwo(maxSize)

	p := &Pool{minSize: minSize, maxSize: maxSize}
	for size := minSize; size <= maxSize; size <<= 1 {
		classSize := size
		p.classes = append(p.classes, &sync.Pool{
			New: func() any {
				buf := make([]byte, classSize)
				return &buf
			},
		})
	}
	return p
}

// Get returns a buffer of the smallest class, full length.
func (p *Pool) Get() []byte {
	return p.GetSize(p.minSize)
}

// GetSize returns a buffer with len == cap >= n.
func (p *Pool) GetSize(n int) []byte {
	idx, ok := p.classIndex(n)
	if !ok {
		return make([]byte, n)
	}
	return *(p.classes[idx].Get().(*[]byte))
}

// Put recycles a buffer obtained from Get or GetSize. Buffers whose
// capacity does not match a class exactly are dropped for the GC.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	if c < p.minSize || c > p.maxSize || c&(c-1) != 0 {
		return
	}
	idx, ok := p.classIndex(c)
	if !ok {
		return
	}
	buf = buf[:c]
	p.classes[idx].Put(&buf)
}

// classIndex maps a requested size to the smallest fitting class.
func (p *Pool) classIndex(n int) (int, bool) {
	if n > p.maxSize {
		return 0, false
	}
	size := p.minSize
	for i := range p.classes {
		if size >= n {
			return i, true
		}
		size <<= 1
	}
	return 0, false
}

// nextPowerOfTwo rounds n up to the nearest power of two.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
