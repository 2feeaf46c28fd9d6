// Package mem provides a RAM-backed image iterator, adapted from
// go-ublk's sharded-lock Memory backend (backend/mem.go) for use in
// tests and as the demo image behind synthetic end-to-end scenarios.
package mem

import (
	"io"
	"sync"

	"github.com/go-forensics/bulkscan/internal/image"
	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
)

// shardSize mirrors the teacher's 64KB RAM-disk shard granularity; it
// bounds lock contention without requiring per-byte locking.
const shardSize = 64 * 1024

// Image is an in-memory byte source, sharded the way go-ublk's Memory
// backend shards a RAM disk, so concurrent readers (tests that drive
// the iterator from multiple goroutines) never block each other across
// unrelated regions.
type Image struct {
	data     []byte
	shards   []sync.RWMutex
	pageSize int
}

// New creates an in-memory image of the given bytes with the given
// fixed page size.
func New(data []byte, pageSize int) *Image {
	numShards := (len(data) + shardSize - 1) / shardSize
	if numShards == 0 {
		numShards = 1
	}
	return &Image{data: data, shards: make([]sync.RWMutex, numShards), pageSize: pageSize}
}

func (m *Image) shardRange(off, length int) (start, end int) {
	start = off / shardSize
	if length == 0 {
		return start, start
	}
	end = (off + length - 1) / shardSize
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

func (m *Image) readAt(p []byte, off int) int {
	if off >= len(m.data) {
		return 0
	}
	available := len(m.data) - off
	if len(p) > available {
		p = p[:available]
	}
	start, end := m.shardRange(off, len(p))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+len(p)])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return n
}

// Iterator walks an Image sequentially or via random seek.
type Iterator struct {
	img       *Image
	pageIndex uint64
}

// NewIterator returns an Iterator positioned at the start of img.
func NewIterator(img *Image) *Iterator {
	return &Iterator{img: img}
}

func (it *Iterator) PageSize() int { return it.img.pageSize }

func (it *Iterator) MaxBlocks() uint64 {
	return (uint64(len(it.img.data)) + uint64(it.img.pageSize) - 1) / uint64(it.img.pageSize)
}

func (it *Iterator) SeekBlock(n uint64) error {
	it.pageIndex = n
	return nil
}

func (it *Iterator) SeekRaw(off uint64) error {
	it.pageIndex = off / uint64(it.img.pageSize)
	return nil
}

func (it *Iterator) FractionDone() float64 {
	max := it.MaxBlocks()
	if max == 0 {
		return 1
	}
	return float64(it.pageIndex) / float64(max)
}

func (it *Iterator) RawOffset() uint64 {
	return it.pageIndex * uint64(it.img.pageSize)
}

func (it *Iterator) PageNumber() uint64 {
	return it.pageIndex
}

func (it *Iterator) Pos0() pos.Position {
	return pos.FromOffset(it.RawOffset())
}

func (it *Iterator) ReadPage() (*page.Buffer, error) {
	off := int(it.RawOffset())
	if off >= len(it.img.data) {
		return nil, io.EOF
	}

	buf := make([]byte, it.img.pageSize)
	n := it.img.readAt(buf, off)
	p := page.New(it.Pos0(), buf[:n], n, nil, nil)
	it.pageIndex++
	return p, nil
}

var _ image.Iterator = (*Iterator)(nil)
