package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestInfoIncludesSubsystem(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Info("RuntimeManager", "started %d workloads", 3)

	out := buf.String()
	if !strings.Contains(out, "started 3 workloads") {
		t.Errorf("expected formatted message in output, got %q", out)
	}
	if !strings.Contains(out, "subsystem=RuntimeManager") {
		t.Errorf("expected subsystem attribute in output, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "should be suppressed")
	Info("Test", "should be suppressed too")
	Warn("Test", "should appear")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("expected debug/info to be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("expected warn message in output, got %q", out)
	}
}

func TestErrorIncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", errSentinel{}, "operation failed")

	out := buf.String()
	if !strings.Contains(out, "sentinel") {
		t.Errorf("expected error attribute in output, got %q", out)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "sentinel" }
