// Package scan implements the scanner-set contract (spec.md §4.8): a
// registry of scanners invoked in registration order against every
// page, with a recurse hook scanners use to submit decoded substructure
// back into the pool.
package scan

import (
	"fmt"
	"sync"

	"github.com/go-forensics/bulkscan/internal/page"
)

// Phase names the stage a scanner is invoked for. Only SCAN is
// currently defined; the field exists so a future phase (e.g. a
// finalize pass) can reuse the same Scanner signature.
type Phase int

const (
	PhaseScan Phase = iota
)

// Scanner is a content recognizer invoked once per page. Implementations
// must be reentrant: the same Scanner instance runs concurrently on
// distinct pages, and recursively (via Recurse) on the same goroutine
// that is currently scanning the parent page.
type Scanner interface {
	// Name identifies the scanner in diagnostics and report tags.
	Name() string

	// Scan inspects buf and may call set.Recurse to submit a derived
	// page it decoded out of buf. Scan must not mutate buf.
	Scan(set *Set, phase Phase, buf *page.Buffer) error
}

// Sink receives diagnostic events the set raises for its scanners (a
// returned error or a captured panic). Implementations must be
// safe for concurrent use: scanners run on distinct worker goroutines.
type Sink interface {
	Exception(name string, posText string, attrs map[string]string)
}

// NopSink discards every diagnostic event.
type NopSink struct{}

func (NopSink) Exception(string, string, map[string]string) {}

// RecurseFunc submits a derived page back into the pool. The driver
// wires the worker pool's SubmitRecursive method in here, behind its
// recursion guard, after construction, avoiding an import cycle
// between scan and queue.
type RecurseFunc func(*page.Buffer) error

// Set is the registry of scanners applied to every page.
type Set struct {
	mu       sync.RWMutex
	scanners []Scanner
	sink     Sink
	recurse  RecurseFunc
}

// NewSet returns an empty Set. Register scanners with Register and
// wire submission with SetRecurseFunc before the first Process call.
func NewSet() *Set {
	return &Set{sink: NopSink{}}
}

// Register appends a scanner to the set. Scanners run in registration
// order (spec.md §4.8).
func (s *Set) Register(sc Scanner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanners = append(s.scanners, sc)
}

// SetDiagnosticSink installs the sink used for exception reporting.
func (s *Set) SetDiagnosticSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink == nil {
		sink = NopSink{}
	}
	s.sink = sink
}

// SetRecurseFunc installs the function Recurse delegates to.
func (s *Set) SetRecurseFunc(fn RecurseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurse = fn
}

// Process synchronously invokes every registered scanner against buf,
// in registration order. An uncaught scanner failure (panic or
// returned error) is captured and logged to the diagnostic sink; it
// never propagates to the caller, per spec.md §4.7 ("uncaught failures
// inside a scanner are captured per-unit ... they never poison the
// worker").
func (s *Set) Process(buf *page.Buffer) {
	s.mu.RLock()
	scanners := make([]Scanner, len(s.scanners))
	copy(scanners, s.scanners)
	s.mu.RUnlock()

	for _, sc := range scanners {
		s.runOne(sc, buf)
	}
}

func (s *Set) runOne(sc Scanner, buf *page.Buffer) {
	defer func() {
		if r := recover(); r != nil {
			s.reportException(sc.Name(), buf, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := sc.Scan(s, PhaseScan, buf); err != nil {
		s.reportException(sc.Name(), buf, err.Error())
	}
}

func (s *Set) reportException(scannerName string, buf *page.Buffer, msg string) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()

	sink.Exception("debug:exception", buf.Pos.String(), map[string]string{
		"name":    scannerName,
		"message": msg,
	})
}

// Recurse transfers ownership of child to a new work unit submitted
// back into the pool. It is the only way a scanner may submit
// additional pages for processing.
func (s *Set) Recurse(child *page.Buffer) error {
	s.mu.RLock()
	fn := s.recurse
	s.mu.RUnlock()

	if fn == nil {
		return fmt.Errorf("scan: Recurse called before SetRecurseFunc")
	}
	return fn(child)
}
