// Package zeroscan implements a trivial demo Scanner that flags long
// runs of zero bytes. It never recurses; it exists to prove
// registration-order invocation (spec.md §4.8) alongside a scanner
// that does, such as scanners/gzipscan, and as a cheap fixture for
// driver-level tests.
package zeroscan

import (
	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/scan"
)

// Name identifies this scanner in diagnostics and report tags.
const Name = "ZERO"

// DefaultMinRun is the shortest all-zero span Scan reports by default.
const DefaultMinRun = 512

// Sink receives one notification per qualifying run found in a page.
// Implementations must be safe for concurrent use: Scan runs on
// whichever worker goroutine is currently scanning the page.
type Sink interface {
	ZeroRun(pos0 string, offset, length int)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) ZeroRun(string, int, int) {}

// Scanner reports contiguous all-zero spans of at least MinRun bytes
// within a page's logical bytes.
type Scanner struct {
	MinRun int
	Sink   Sink
}

// New returns a Scanner reporting to sink, using DefaultMinRun.
func New(sink Sink) *Scanner {
	if sink == nil {
		sink = NopSink{}
	}
	return &Scanner{MinRun: DefaultMinRun, Sink: sink}
}

func (s *Scanner) Name() string { return Name }

// Scan never recurses; it only inspects buf's logical page.
func (s *Scanner) Scan(set *scan.Set, phase scan.Phase, buf *page.Buffer) error {
	minRun := s.MinRun
	if minRun <= 0 {
		minRun = DefaultMinRun
	}

	data := buf.Page()
	runStart := -1
	for i, b := range data {
		if b == 0 {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			s.reportIfLongEnough(buf, runStart, i, minRun)
			runStart = -1
		}
	}
	if runStart >= 0 {
		s.reportIfLongEnough(buf, runStart, len(data), minRun)
	}
	return nil
}

func (s *Scanner) reportIfLongEnough(buf *page.Buffer, start, end, minRun int) {
	if end-start < minRun {
		return
	}
	s.Sink.ZeroRun(buf.Pos.String(), start, end-start)
}

var _ scan.Scanner = (*Scanner)(nil)
