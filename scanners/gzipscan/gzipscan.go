// Package gzipscan implements a demo Scanner recognizing gzip members
// embedded in a page and recursing into their inflated payload — the
// concrete realization of spec.md §1's example ("a scanner that finds
// a gzip stream submits the inflated payload as a new, derived page").
package gzipscan

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/scan"
)

// Tag is the Position segment name this scanner extends a parent's
// provenance path with, e.g. "12345-GZIP".
const Tag = "GZIP"

// magic is the two-byte gzip member header.
var magic = []byte{0x1f, 0x8b}

// MaxInflate bounds how much a single member may expand to, guarding
// against a crafted page that inflates to an unreasonable size; a
// legitimate derived page larger than this is refused the same way a
// truncated stream is, leaving the depth/content recursion guard in
// the driver to catch any remaining pathological nesting.
const MaxInflate = 64 << 20

// Scanner finds a gzip member anywhere in a page's bytes (margin
// included), inflates it, and recurses the decoded payload as a new
// page.
type Scanner struct{}

// New returns a gzip-member scanner.
func New() *Scanner { return &Scanner{} }

func (Scanner) Name() string { return Tag }

// Scan looks for the first occurrence of the gzip magic bytes anywhere
// in buf.Raw, margin included. If found, it inflates the member that
// starts there and recurses the result, tagged with the member's
// offset; later members in the same page are not searched.
func (s Scanner) Scan(set *scan.Set, phase scan.Phase, buf *page.Buffer) error {
	data := buf.Raw
	idx := bytes.Index(data, magic)
	if idx < 0 {
		return nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data[idx:]))
	if err != nil {
		// Not a complete/valid member at this offset; nothing to recurse.
		return nil
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, MaxInflate+1))
	if err != nil {
		// A truncated or corrupt member: whatever was decoded before
		// the error isn't a trustworthy derived page.
		return nil
	}
	if len(inflated) == 0 {
		return nil
	}
	if len(inflated) > MaxInflate {
		return nil
	}

	childPos := buf.Pos.Extend(Tag, uint64(idx))
	child := page.New(childPos, inflated, len(inflated), buf, nil)
	return set.Recurse(child)
}

var _ scan.Scanner = Scanner{}
