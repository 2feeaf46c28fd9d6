package gzipscan

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
	"github.com/go-forensics/bulkscan/internal/scan"
)

func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("gzip.Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip.Close: %v", err)
	}
	return buf.Bytes()
}

func TestScanRecursesInflatedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("forensic-scan-payload "), 200)
	member := gzipBytes(t, payload)

	var recursed *page.Buffer
	set := scan.NewSet()
	set.SetRecurseFunc(func(child *page.Buffer) error {
		recursed = child
		return nil
	})

	buf := page.New(pos.FromOffset(1024), member, len(member), nil, nil)
	sc := New()
	if err := sc.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if recursed == nil {
		t.Fatal("expected Recurse to be called")
	}
	if !bytes.Equal(recursed.Page(), payload) {
		t.Errorf("inflated payload mismatch: got %d bytes, want %d", len(recursed.Page()), len(payload))
	}
	if !recursed.Pos.HasPrefix(buf.Pos) {
		t.Errorf("child Position %q should extend parent %q", recursed.Pos.String(), buf.Pos.String())
	}
	if recursed.Pos.String() == buf.Pos.String() {
		t.Error("child Position must differ from parent")
	}
}

func TestScanIgnoresNonGzipPage(t *testing.T) {
	set := scan.NewSet()
	recursed := false
	set.SetRecurseFunc(func(*page.Buffer) error {
		recursed = true
		return nil
	})

	buf := page.New(pos.FromOffset(0), []byte("plain text, no magic bytes here"), 32, nil, nil)
	sc := New()
	if err := sc.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if recursed {
		t.Error("did not expect Recurse on a non-gzip page")
	}
}

func TestScanIgnoresTruncatedMember(t *testing.T) {
	member := gzipBytes(t, bytes.Repeat([]byte("x"), 4096))
	truncated := member[:len(member)/2]

	set := scan.NewSet()
	recursed := false
	set.SetRecurseFunc(func(*page.Buffer) error {
		recursed = true
		return nil
	})

	buf := page.New(pos.FromOffset(0), truncated, len(truncated), nil, nil)
	sc := New()
	if err := sc.Scan(set, scan.PhaseScan, buf); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if recursed {
		t.Error("did not expect Recurse on a truncated member")
	}
}
