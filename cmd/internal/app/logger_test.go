package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newLogHandler(&buf, "info", "text")).Info("pairing.session.start", "session_id", "abc")
	if !strings.Contains(buf.String(), "msg=pairing.session.start") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "info", "")).Info("pairing.session.start")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "warn", "json")).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record passed a warn-level handler")
	}
}
