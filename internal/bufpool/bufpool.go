// Package bufpool provides a pooled byte-slice allocator for page
// acquisition, built on the pointer-to-slice sync.Pool idiom go-ublk's
// internal/queue.BufferPool uses to avoid the interface-allocation cost
// of pooling a bare []byte.
//
// Unlike a block device's runner, which serves a fixed, driver-wide mix
// of I/O sizes, a bulkscan run reads a single configured page size
// (Config.PageSize) end to end, and occasionally needs headroom above
// it for a page extended with a scanner's lookahead margin (see
// page.Buffer's Margin). So instead of a fixed absolute-size ladder
// (128KB/256KB/512KB/1MB) chosen for an unrelated device-I/O profile,
// a Pool's bucket ladder is derived from the page size it is
// constructed with: the page size itself, then geometric multiples of
// it, so the common case (an exact PageSize request) always hits the
// first bucket and margin-extended pages still land in a pooled bucket
// instead of falling through to a plain allocation.
package bufpool

import "sync"

// bucketMultiples are the multiples of a Pool's base page size that get
// their own sync.Pool bucket. 1x covers the overwhelming majority of
// ReadPage calls; the larger multiples absorb margin-extended pages and
// the occasional short final page rounded up by a caller.
var bucketMultiples = [...]int{1, 4, 16, 64, 256}

// Pool is a size-bucketed byte-slice pool whose bucket sizes are
// multiples of one page size.
type Pool struct {
	pageSize int
	buckets  []int
	pools    []sync.Pool
}

// New builds a Pool whose bucket ladder is derived from pageSize. A
// non-positive pageSize falls back to 4096, the default
// Config.PageSize.
func New(pageSize int) *Pool {
	if pageSize <= 0 {
		pageSize = 4096
	}
	p := &Pool{
		pageSize: pageSize,
		buckets:  make([]int, len(bucketMultiples)),
		pools:    make([]sync.Pool, len(bucketMultiples)),
	}
	for i, m := range bucketMultiples {
		size := pageSize * m
		p.buckets[i] = size
		bucketSize := size
		p.pools[i].New = func() any {
			b := make([]byte, bucketSize)
			return &b
		}
	}
	return p
}

// Get returns a pooled buffer of at least the requested size. Sizes
// above the largest bucket (256 pages) are allocated plainly and never
// pooled on Put. Caller must call Put when done (via page.Buffer's
// release callback).
func (p *Pool) Get(size int) []byte {
	for i, bucket := range p.buckets {
		if size <= bucket {
			buf := *p.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to the pool. The buffer's capacity determines
// which bucket it goes to; a capacity that doesn't exactly match one of
// the Pool's buckets (a plain allocation from Get, or a slice some
// other caller trimmed oddly) is simply dropped.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	for i, bucket := range p.buckets {
		if c == bucket {
			p.pools[i].Put(&buf)
			return
		}
	}
}
