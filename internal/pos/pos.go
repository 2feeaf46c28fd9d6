// Package pos implements the provenance path ("pos0") that tags every
// page and derived page with the chain of offsets and scanner tags that
// produced it.
package pos

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Segment is one element of a Position: either the leading raw image
// offset, or a scanner tag with an optional sub-offset.
type Segment struct {
	Tag    string // empty for the leading offset segment
	Offset uint64
}

func (s Segment) String() string {
	if s.Tag == "" {
		return strconv.FormatUint(s.Offset, 10)
	}
	if s.Offset == 0 {
		return s.Tag
	}
	return s.Tag + "-" + strconv.FormatUint(s.Offset, 10)
}

// Position is an immutable, ordered provenance path. The first segment
// is always the originating image offset; every later segment names the
// scanner that produced the derived buffer it is attached to.
type Position struct {
	segs []Segment
	str  string
}

// FromOffset builds a leaf Position from a raw image byte offset.
func FromOffset(offset uint64) Position {
	return fromSegments([]Segment{{Offset: offset}})
}

func fromSegments(segs []Segment) Position {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.String()
	}
	return Position{segs: segs, str: strings.Join(parts, "-")}
}

// Extend returns a new Position with one additional tag segment
// appended, e.g. "12345" -> "12345-GZIP" or "12345-GZIP-512".
// The receiver is never mutated; extending a Position always yields a
// strictly longer, distinct Position.
func (p Position) Extend(tag string, subOffset uint64) Position {
	next := make([]Segment, len(p.segs)+1)
	copy(next, p.segs)
	next[len(p.segs)] = Segment{Tag: tag, Offset: subOffset}
	return fromSegments(next)
}

// Depth returns the number of tag segments after the leading offset,
// i.e. how many times this Position has been derived via Extend.
func (p Position) Depth() int {
	if len(p.segs) == 0 {
		return 0
	}
	return len(p.segs) - 1
}

// HasPrefix reports whether p was derived from ancestor via zero or
// more Extend calls. Comparison is segment-wise, not a raw string
// prefix check, so offset "9" is not mistaken for a prefix of the
// unrelated leaf position "99".
func (p Position) HasPrefix(ancestor Position) bool {
	if len(ancestor.segs) > len(p.segs) {
		return false
	}
	for i, s := range ancestor.segs {
		if p.segs[i] != s {
			return false
		}
	}
	return true
}

// String returns the full stringified path used for equality, hashing
// and report output.
func (p Position) String() string {
	return p.str
}

// Hash returns a fast, non-cryptographic fingerprint of the stringified
// path, used to key the seen-page set without repeated string compares.
func (p Position) Hash() uint64 {
	return xxhash.Sum64String(p.str)
}

// Zero reports whether this is the unconstructed zero value.
func (p Position) Zero() bool {
	return len(p.segs) == 0
}
