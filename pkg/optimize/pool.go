// Package optimize holds small allocation helpers for the capture path.
package optimize

import "sync"

// BytePool recycles fixed-size pixel buffers between frame captures.
type BytePool struct {
	pool sync.Pool
	size int
}

func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
}

// Get returns a buffer of the pool's size.
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put recycles a buffer. Undersized buffers are dropped.
func (p *BytePool) Put(b []byte) {
	if cap(b) >= p.size {
		p.pool.Put(b[:p.size])
	}
}
