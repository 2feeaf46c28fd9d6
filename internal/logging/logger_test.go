package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithPosTagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	pageLogger := logger.WithPos("12345-GZIP-0")
	pageLogger.Warn("recursion refused", "reason", "depth exceeded")

	out := buf.String()
	if !strings.Contains(out, "pos0=12345-GZIP-0") {
		t.Errorf("expected pos0=12345-GZIP-0 in output, got %q", out)
	}
	if !strings.Contains(out, "reason=depth exceeded") {
		t.Errorf("expected trailing attr in output, got %q", out)
	}
}

func TestWithPhaseAndWithPosCompose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	scoped := logger.WithPhase("allocator-retry").WithPos("99")
	scoped.Error("bad_alloc", "retry_count", 2)

	out := buf.String()
	if !strings.Contains(out, "phase=allocator-retry") {
		t.Errorf("expected phase=allocator-retry in output, got %q", out)
	}
	if !strings.Contains(out, "pos0=99") {
		t.Errorf("expected pos0=99 in output, got %q", out)
	}
	if !strings.Contains(out, "retry_count=2") {
		t.Errorf("expected retry_count=2 in output, got %q", out)
	}
}

func TestWithPosDoesNotMutateReceiver(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	_ = root.WithPos("should not stick")
	root.Info("plain message")

	out := buf.String()
	if strings.Contains(out, "pos0=") {
		t.Errorf("root logger must not pick up a derived Logger's pos0, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected nothing logged below the configured level, got %q", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected the Warn line to appear, got %q", buf.String())
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	SetDefault(nil)
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() must return the same Logger instance across calls")
	}
}

func TestSetDefaultReplacesSingleton(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)

	if Default() != custom {
		t.Error("SetDefault must replace the process-wide default logger")
	}

	Default().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected Default() to write through the replaced logger, got %q", buf.String())
	}
}
