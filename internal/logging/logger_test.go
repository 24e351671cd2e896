package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func decodeJSONLines(t *testing.T, content string) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Debug("debug message")
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "extract")
	logger.Info("object extracted",
		logging.String(logging.FieldInput, "/data/bundles/chars.bundle"),
		logging.String(logging.FieldObject, "hero_walk01"),
		logging.String(logging.FieldDest, "hero/walk01.png"),
	)

	content := readLog(t, logPath)
	header := strings.SplitN(content, "\n", 2)[0]
	if !strings.Contains(header, "INFO [extract] chars.bundle · hero_walk01 - object extracted") {
		t.Fatalf("unexpected header %q", header)
	}
	if !strings.Contains(content, "    - dest: hero/walk01.png") {
		t.Fatalf("expected dest field line, got %q", content)
	}
	if strings.Contains(content, "- input:") {
		t.Fatalf("input should only appear in the subject at info level, got %q", content)
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	records := decodeJSONLines(t, readLog(t, logPath))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["msg"] != "json message" || records[0]["k"] != "v" {
		t.Fatalf("unexpected record %v", records[0])
	}
}

func TestLogFileReceivesJSONCopy(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	filePath := filepath.Join(dir, "nested", "run.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{consolePath},
		FilePath:    filePath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("collision", logging.String(logging.FieldDest, "a.png"))

	if !strings.Contains(readLog(t, consolePath), "WARN") {
		t.Fatal("expected console output")
	}
	records := decodeJSONLines(t, readLog(t, filePath))
	if len(records) != 1 || records[0][logging.FieldDest] != "a.png" {
		t.Fatalf("unexpected file records %v", records)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden") || !strings.Contains(content, "shown") {
		t.Fatalf("expected info level filtering, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "run-xyz")
	ctx = logging.WithInput(ctx, "chars.bundle")
	logging.WithContext(ctx, logger).Info("contextual log")

	records := decodeJSONLines(t, readLog(t, logPath))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0][logging.FieldRunID] != "run-xyz" {
		t.Fatalf("run_id = %v", records[0][logging.FieldRunID])
	}
	if records[0][logging.FieldInput] != "chars.bundle" {
		t.Fatalf("input = %v", records[0][logging.FieldInput])
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := logging.WithRunID(context.Background(), "")
	if _, ok := logging.RunIDFromContext(ctx); ok {
		t.Fatal("empty run id must not be stored")
	}
	if fields := logging.ContextFields(ctx); len(fields) != 0 {
		t.Fatalf("expected no fields, got %v", fields)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "decode failed", "object_failed",
		logging.String(logging.FieldErrorHint, "re-export the bundle"),
		logging.Error(errors.New("boom")),
	)

	records := decodeJSONLines(t, readLog(t, logPath))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	record := records[0]
	if record[logging.FieldEventType] != "object_failed" {
		t.Fatalf("event_type = %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] != "re-export the bundle" {
		t.Fatalf("explicit error_hint must win, got %v", record[logging.FieldErrorHint])
	}
	if record[logging.FieldImpact] == nil {
		t.Fatal("expected default impact field")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 100) {
		t.Fatal("nop logger must not be enabled")
	}
	logging.NewComponentLogger(nil, "x").Info("discarded")
}
