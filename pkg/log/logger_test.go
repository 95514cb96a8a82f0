package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level Level, f Formatter, buf *bytes.Buffer, opts ...LoggerOption) Logger {
	all := append([]LoggerOption{WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(buf))}, opts...)
	return NewLogger(all...)
}

func TestTextFormatterIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(InfoLevel, &TextFormatter{}, &buf)
	l.With(Component("sessions")).Info("session started", Int("total", 3), Err(errors.New("boom")))
	out := buf.String()
	for _, want := range []string{"INFO", "session started", "component=sessions", "total=3", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(WarnLevel, &TextFormatter{}, &buf)
	l.Info("hidden")
	l.Debugf("hidden too", "k", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not written")
	}
}

func TestJSONFormatterAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(DebugLevel, &JSONFormatter{}, &buf, WithRedaction("api_key"))
	l.Debug("send", Str("api_key", "secret"), Str("to", "a@example.com"))
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json: %v (%q)", err, buf.String())
	}
	if m["api_key"] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", m["api_key"])
	}
	if m["to"] != "a@example.com" || m["msg"] != "send" || m["level"] != "DEBUG" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestChildLoggerDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	parent := newBufferLogger(InfoLevel, &TextFormatter{}, &buf)
	_ = parent.With(Str("child", "yes"))
	parent.Info("parent")
	if strings.Contains(buf.String(), "child=yes") {
		t.Fatalf("parent picked up child field: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ApplyConfig(&Config{Level: "error", Format: "json", Output: "null"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestStdLoggerBridge(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(InfoLevel, &TextFormatter{}, &buf)
	ToStdLogger(l, WarnLevel).Printf("pebble says %d", 42)
	if !strings.Contains(buf.String(), "WARN") || !strings.Contains(buf.String(), "pebble says 42") {
		t.Fatalf("unexpected: %q", buf.String())
	}
}
