package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"notesync/internal/config"
	"notesync/internal/logging"
	"notesync/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "notesync.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerCallerDependsOnLevel(t *testing.T) {
	tests := []struct {
		level      string
		wantCaller bool
	}{
		{"info", false},
		{"debug", true},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "console.log")
			logger, err := logging.New(logging.Options{
				Format:           "console",
				Level:            tc.level,
				OutputPaths:      []string{logPath},
				ErrorOutputPaths: []string{logPath},
			})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			logger.Info("message")

			content, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("read log file: %v", err)
			}
			if got := strings.Contains(string(content), ".go:"); got != tc.wantCaller {
				t.Fatalf("caller present = %v, want %v: %q", got, tc.wantCaller, content)
			}
		})
	}
}

func TestConsoleLoggerLiftsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithSessionID(context.Background(), "0123456789abcdef")
	ctx = services.WithStep(ctx, "notes")
	ctx = services.WithNoteID(ctx, 7)
	logger = logging.NewComponentLogger(logger, "syncer")
	logging.WithContext(ctx, logger).Info("pushed note", logging.String(logging.FieldRemoteID, "r-1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, fragment := range []string{"INFO [syncer]", "Session 01234567", "Note #7 (notes)", "pushed note", "- remote_id: r-1"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %q in %q", fragment, text)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithStep(ctx, "folders")
	ctx = services.WithNoteID(ctx, 123)
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	want := map[string]any{
		logging.FieldSessionID:     "sess-1",
		logging.FieldStep:          "folders",
		logging.FieldNoteID:        float64(123),
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %v", key, record[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "guard rejected", "guard_rejected", logging.String(logging.FieldImpact, "note deferred"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "guard_rejected" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	if record[logging.FieldImpact] != "note deferred" {
		t.Fatalf("expected caller-provided impact, got %v", record[logging.FieldImpact])
	}
}

func TestNewFromConfigFileCarriesSessionID(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logging.WithSession(logger, "sess-42").Info("pushed folder")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "notesync.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected a JSON line in the log file, got %q", line)
	}
	if !strings.Contains(line, `"session_id":"sess-42"`) {
		t.Fatalf("session id missing from %q", line)
	}
}
