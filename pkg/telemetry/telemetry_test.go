package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFieldHelpers(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: logPath})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	zlInfo := logger.WithInstance("inst-1").WithDeployment("dep-1").Zerolog()
	zlInfo.Info().Msg("launched")
	zlWarn := logger.WithError(errors.New("disk full")).Zerolog()
	zlWarn.Warn().Msg("history unavailable")

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		lines = append(lines, entry)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["instance_id"] != "inst-1" || lines[0]["wdeployment"] != "dep-1" {
		t.Errorf("first line fields = %v", lines[0])
	}
	if lines[1]["error"] != "disk full" {
		t.Errorf("second line error = %v", lines[1]["error"])
	}
}

func TestComponentLoggerTag(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: logPath})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	zl := logger.Component("api").Zerolog()
	zl.Info().Msg("request")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "api" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTelemetryContextRoundTrip(t *testing.T) {
	tel, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Fatalf("FromTelemetryContext returned %v", got)
	}
	if got := FromContext(ctx); got != tel.Logger {
		t.Fatal("logger not carried alongside the telemetry instance")
	}
	if got := FromTelemetryContext(context.Background()); got != nil {
		t.Fatalf("expected nil from a bare context, got %v", got)
	}
}

func TestFlushAndShutdown(t *testing.T) {
	tel, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tel.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
