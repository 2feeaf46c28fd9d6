// Package hashstate implements the best-effort rolling whole-image
// SHA-1 described in spec.md §4.5: well-defined only while every
// submitted leaf page has started exactly where the previous one left
// off; a single gap abandons it permanently.
package hashstate

import "crypto/sha1"

// State tracks the incremental SHA-1 over the gap-free prefix of the
// image that has been fed to it so far.
type State struct {
	h    hashWriter
	next uint64
	live bool
}

type hashWriter interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// New returns a fresh, live State starting at offset 0.
func New() *State {
	return &State{h: sha1.New(), next: 0, live: true}
}

// Live reports whether the state has survived every submission so far
// without a gap.
func (s *State) Live() bool {
	return s != nil && s.live
}

// Submit feeds a submitted leaf page's bytes to the hash if, and only
// if, its raw offset equals the expected next offset; any mismatch
// (sampling, opt_offset_start > 0, a skipped page) discards the state
// permanently.
func (s *State) Submit(rawOffset uint64, pageBytes []byte) {
	if s == nil || !s.live {
		return
	}
	if rawOffset != s.next {
		s.live = false
		return
	}
	s.h.Write(pageBytes)
	s.next += uint64(len(pageBytes))
}

// Digest returns the SHA-1 digest of everything fed so far, and
// whether the state is still live. Finalization should only emit the
// digest when the second return value is true.
func (s *State) Digest() ([]byte, bool) {
	if s == nil || !s.live {
		return nil, false
	}
	return s.h.Sum(nil), true
}
