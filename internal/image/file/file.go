// Package file provides a read-only, mmap-backed image iterator over a
// disk file or block device. It is a direct adaptation of go-ublk's
// internal/queue.Runner mmap idiom (mmapQueues mapping the kernel
// descriptor array PROT_READ|MAP_SHARED) to mapping a whole image file
// PROT_READ|MAP_SHARED instead, copying each logical page out into an
// owned, pooled buffer so that page ownership and pooling work exactly
// as they do for every other iterator.
package file

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/go-forensics/bulkscan/internal/bufpool"
	"github.com/go-forensics/bulkscan/internal/image"
	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
)

// Iterator walks a memory-mapped file page by page.
type Iterator struct {
	f         *os.File
	mapping   []byte // mmap'd, read-only view of the whole file
	size      int64
	pageSize  int
	pageIndex uint64
	bufs      *bufpool.Pool
}

// Open mmaps path read-only and returns an Iterator over it using the
// given fixed page size.
func Open(path string, pageSize int) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()

	var mapping []byte
	if size > 0 {
		mapping, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	return &Iterator{f: f, mapping: mapping, size: size, pageSize: pageSize, bufs: bufpool.New(pageSize)}, nil
}

// Close unmaps the file and closes the underlying descriptor.
func (it *Iterator) Close() error {
	if it.mapping != nil {
		_ = unix.Munmap(it.mapping)
		it.mapping = nil
	}
	return it.f.Close()
}

func (it *Iterator) PageSize() int { return it.pageSize }

func (it *Iterator) MaxBlocks() uint64 {
	return (uint64(it.size) + uint64(it.pageSize) - 1) / uint64(it.pageSize)
}

func (it *Iterator) SeekBlock(n uint64) error {
	it.pageIndex = n
	return nil
}

func (it *Iterator) SeekRaw(off uint64) error {
	it.pageIndex = off / uint64(it.pageSize)
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
	return it.pageIndex * uint64(it.pageSize)
}

func (it *Iterator) PageNumber() uint64 {
	return it.pageIndex
}

func (it *Iterator) Pos0() pos.Position {
	return pos.FromOffset(it.RawOffset())
}

// ReadPage copies the current logical page out of the mmap'd region
// into a pooled, owned buffer and advances the iterator by one page.
// It never returns image.ErrOutOfMemory itself: an out-of-memory
// condition is not representable in Go's allocator model directly, so
// tests inject simulated allocator pressure via a wrapping Iterator
// (flakyIterator in driver_test.go), keeping ReadPage the single point
// where an out-of-memory signal can originate (spec.md §4.4).
func (it *Iterator) ReadPage() (*page.Buffer, error) {
	off := int64(it.RawOffset())
	if off >= it.size {
		return nil, io.EOF
	}

	end := off + int64(it.pageSize)
	if end > it.size {
		end = it.size
	}
	n := int(end - off)

	buf := it.bufs.Get(n)
	copy(buf, it.mapping[off:end])

	p := page.New(it.Pos0(), buf, n, nil, func() { it.bufs.Put(buf) })
	it.pageIndex++
	return p, nil
}

var _ image.Iterator = (*Iterator)(nil)
