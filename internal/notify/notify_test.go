package notify

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/le-tueur/chatvc/internal/config"
	"github.com/le-tueur/chatvc/pkg/logger"
)

func TestLogNotifierWritesAuditLine(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	LogNotifier{}.Notify("%s muted %s", "root", "alice")

	if !strings.Contains(buf.String(), "[audit] root muted alice") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}

func TestNewFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	if _, ok := New(config.TelegramConfig{}).(LogNotifier); !ok {
		t.Fatal("expected log notifier without telegram settings")
	}
	if _, ok := New(config.TelegramConfig{Token: "x"}).(LogNotifier); !ok {
		t.Fatal("expected log notifier without a channel")
	}
}
