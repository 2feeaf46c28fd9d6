// Package image defines the forward-iterator contract the Phase-1
// driver consumes to walk a paged image, either sequentially or via
// random seek in sampling mode. Concrete iterators live in the file
// and mem subpackages.
package image

import (
	"errors"

	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
)

// ErrOutOfMemory is returned by ReadPage when page acquisition failed
// because of allocator pressure. It is distinguished from every other
// read failure so the driver's allocator-retry policy (spec.md §4.4)
// can single it out.
var ErrOutOfMemory = errors.New("image: out of memory acquiring page")

// Iterator is a forward iterator over a paged image.
type Iterator interface {
	// SeekBlock repositions the iterator at the start of block index n
	// (0-based, in units of PageSize bytes from the start of the
	// image), for sampling mode.
	SeekBlock(n uint64) error

	// SeekRaw repositions the iterator at the page containing raw byte
	// offset off, for the opt_offset_start gate.
	SeekRaw(off uint64) error

	// MaxBlocks returns the total number of fixed-size blocks in the
	// image, used to size the sampling plan.
	MaxBlocks() uint64

	// FractionDone returns the iterator's progress through the image
	// in [0, 1], used by the progress reporter in sequential mode.
	FractionDone() float64

	// RawOffset returns the raw byte offset of the current page.
	RawOffset() uint64

	// PageNumber returns the 0-based page index of the current page.
	PageNumber() uint64

	// Pos0 returns the Position of the current page.
	Pos0() pos.Position

	// ReadPage reads the current page and advances the iterator by one
	// page. It returns ErrOutOfMemory if page acquisition failed due to
	// allocator pressure (retryable by the caller), or io.EOF once the
	// image is exhausted.
	ReadPage() (*page.Buffer, error)

	// PageSize returns the fixed logical page size this iterator reads.
	PageSize() int
}
