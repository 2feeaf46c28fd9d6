package zeroscan

import (
	"bytes"
	"sync"
	"testing"

	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
	"github.com/go-forensics/bulkscan/internal/scan"
)

type recordingSink struct {
	mu   sync.Mutex
	runs []struct {
		pos0   string
		offset int
		length int
	}
}

func (r *recordingSink) ZeroRun(pos0 string, offset, length int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, struct {
		pos0   string
		offset int
		length int
	}{pos0, offset, length})
}

func TestScanReportsLongZeroRun(t *testing.T) {
	data := append(bytes.Repeat([]byte{0xFF}, 10), make([]byte, 600)...)
	data = append(data, bytes.Repeat([]byte{0xFF}, 10)...)

	sink := &recordingSink{}
	s := New(sink)

	buf := page.New(pos.FromOffset(0), data, len(data), nil, nil)
	set := scan.NewSet()
	if err := s.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(sink.runs))
	}
	if sink.runs[0].offset != 10 || sink.runs[0].length != 600 {
		t.Errorf("run = %+v, want offset=10 length=600", sink.runs[0])
	}
	if sink.runs[0].pos0 != buf.Pos.String() {
		t.Errorf("pos0 = %q, want %q", sink.runs[0].pos0, buf.Pos.String())
	}
}

func TestScanIgnoresShortZeroRun(t *testing.T) {
	data := bytes.Repeat([]byte{0xFF}, 16)
	for i := 4; i < 8; i++ {
		data[i] = 0
	}

	sink := &recordingSink{}
	s := New(sink)

	buf := page.New(pos.FromOffset(0), data, len(data), nil, nil)
	set := scan.NewSet()
	if err := s.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.runs) != 0 {
		t.Errorf("got %d runs, want 0 (run shorter than MinRun)", len(sink.runs))
	}
}

func TestScanNeverRecurses(t *testing.T) {
	data := make([]byte, 1024)

	recursed := false
	set := scan.NewSet()
	set.SetRecurseFunc(func(*page.Buffer) error {
		recursed = true
		return nil
	})

	buf := page.New(pos.FromOffset(0), data, len(data), nil, nil)
	s := New(nil)
	if err := s.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if recursed {
		t.Error("zeroscan must never recurse")
	}
}

func TestScanHandlesTrailingRun(t *testing.T) {
	data := append(bytes.Repeat([]byte{0xAA}, 10), make([]byte, 512)...)

	sink := &recordingSink{}
	s := New(sink)

	buf := page.New(pos.FromOffset(0), data, len(data), nil, nil)
	set := scan.NewSet()
	if err := s.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(sink.runs))
	}
	if sink.runs[0].offset != 10 || sink.runs[0].length != 512 {
		t.Errorf("run = %+v, want offset=10 length=512", sink.runs[0])
	}
}

func TestNewDefaultsNilSinkToNop(t *testing.T) {
	s := New(nil)
	if _, ok := s.Sink.(NopSink); !ok {
		t.Errorf("New(nil).Sink = %T, want NopSink", s.Sink)
	}
}
