package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestTickRespectsNotifyRate(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, 3, false, false)

	r.Tick("100", 0.1)
	r.Tick("200", 0.2)
	if buf.Len() != 0 {
		t.Fatalf("expected no output before notify rate reached, got %q", buf.String())
	}

	r.Tick("300", 0.3)
	if buf.Len() == 0 {
		t.Fatal("expected output once notify rate reached")
	}
	if !strings.Contains(buf.String(), "300") {
		t.Errorf("expected position in output, got %q", buf.String())
	}
}

func TestTickQuietSuppressed(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, 1, true, false)
	r.Tick("100", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no output in quiet mode, got %q", buf.String())
	}
}

func TestTickSamplingOmitsPercentage(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, 1, false, true)
	r.Tick("42", 0.5)
	if strings.Contains(buf.String(), "%") {
		t.Errorf("expected no percentage text in sampling mode, got %q", buf.String())
	}
}
