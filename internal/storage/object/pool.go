// Licensed under the MIT License. See LICENSE file in the project root for details.

package object

import (
	"sync"
)

// BufPool recycles value buffers. The writer allocates a duplicate for every
// in-place mutation and hands the replaced buffer back here after its grace
// period, so steady-state mutation traffic reuses instead of allocating.
type BufPool struct {
	pool sync.Pool
}

// NewBufPool creates an empty pool.
func NewBufPool() *BufPool {
	return &BufPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, 0, 64)
				return &b
			},
		},
	}
}

// Get returns a zeroed buffer of length n.
func (p *BufPool) Get(n int) []byte {
	bp := p.pool.Get().(*[]byte)
	b := *bp
	if cap(b) < n {
		p.pool.Put(bp)
		return make([]byte, n)
	}
	b = b[:n]
	for i := range b {
		b[i] = 0
	}
	return b
}

// Put returns a buffer whose grace period has ended. The buffer must not be
// referenced by any reader anymore.
func (p *BufPool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
