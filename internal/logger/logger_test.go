package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestConsoleHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	log := New(&buf, false).With(slog.String("component", "test"))

	log.Debug("hidden")
	log.Info("connect", slog.String("topic", "news"), slog.Group("req", slog.Int("n", 2)))
	log.WithGroup("push").Warn("failed", slog.String("session", "abc"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var testcases = []struct {
		line string
		want []string
	}{
		{lines[0], []string{"| INFO  |", "connect", " component=test", " topic=news", " req.n=2"}},
		{lines[1], []string{"| WARN  |", "failed", " component=test", " push.session=abc"}},
	}
	for _, tc := range testcases {
		for _, w := range tc.want {
			if !strings.Contains(tc.line, w) {
				t.Errorf("line %q: missing %q", tc.line, w)
			}
		}
	}
}

func TestConsoleHandlerDebug(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	New(&buf, true).Debug("visible")
	if !strings.Contains(buf.String(), "| DEBUG | visible") {
		t.Errorf("got %q", buf.String())
	}
}
