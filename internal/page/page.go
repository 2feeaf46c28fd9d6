// Package page implements the owned, read-only page buffer ("sbuf")
// that carries a byte region through scanning.
package page

import "github.com/go-forensics/bulkscan/internal/pos"

// Buffer owns a contiguous byte region of length len(Raw), of which the
// leading PageSize bytes are the logical page; the remainder is margin
// that may be read (scanners sometimes need lookahead) but never
// counted toward progress. A Buffer is read-only from the moment it is
// handed to a Work unit: concurrent scanners sharing a page never
// mutate it.
type Buffer struct {
	Pos      pos.Position
	Raw      []byte // bufsize bytes, owned
	PageSize int    // logical page length, <= len(Raw)

	// Parent links a derived page back to the page its scanner read
	// from, or is nil for a leaf page read directly off the image.
	Parent *Buffer

	release func()
}

// New constructs a leaf or derived page buffer. release, if non-nil, is
// invoked exactly once by Release to return pooled memory.
func New(p pos.Position, raw []byte, pageSize int, parent *Buffer, release func()) *Buffer {
	if pageSize > len(raw) {
		pageSize = len(raw)
	}
	return &Buffer{Pos: p, Raw: raw, PageSize: pageSize, Parent: parent, release: release}
}

// Page returns the logical page slice (excludes the margin).
func (b *Buffer) Page() []byte {
	return b.Raw[:b.PageSize]
}

// Margin returns the trailing bytes beyond the logical page, if any.
func (b *Buffer) Margin() []byte {
	return b.Raw[b.PageSize:]
}

// Release must be called exactly once, after every scanner invoked on
// this page has returned. It is a no-op on a second call.
func (b *Buffer) Release() {
	if b.release == nil {
		return
	}
	r := b.release
	b.release = nil
	r()
}
