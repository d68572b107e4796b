package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected Level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected Format 'json', got '%s'", cfg.Format)
	}
	if cfg.Directory != "" {
		t.Errorf("expected no log directory, got '%s'", cfg.Directory)
	}
	if !cfg.LogInTerminal {
		t.Error("expected LogInTerminal to be true")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
		wantErr  bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"ERROR", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLoggerWritesLevelFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.LogInTerminal = false

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("dropped")
	logger.Info("compress.succeeded", zap.Int("in", 10))
	logger.Warn("compress.failed")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.ReadFile(filepath.Join(cfg.Directory, "info.log"))
	if err != nil {
		t.Fatalf("read info.log: %v", err)
	}
	if !strings.Contains(string(info), `"msg":"compress.succeeded"`) || !strings.Contains(string(info), `"in":10`) {
		t.Errorf("info.log missing entry: %s", info)
	}
	if strings.Contains(string(info), "compress.failed") || strings.Contains(string(info), "dropped") {
		t.Errorf("info.log contains entries of other levels: %s", info)
	}

	warn, err := os.ReadFile(filepath.Join(cfg.Directory, "warn.log"))
	if err != nil {
		t.Fatalf("read warn.log: %v", err)
	}
	if !strings.Contains(string(warn), "compress.failed") {
		t.Errorf("warn.log missing entry: %s", warn)
	}

	if _, err := os.Stat(filepath.Join(cfg.Directory, "debug.log")); !os.IsNotExist(err) {
		t.Errorf("debug.log should not exist below the configured level")
	}
}

func TestLoggerWithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).Named("compress").With(zap.String("strip", "safe"))

	logger.Infof("done in %dms", 12)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "compress" {
		t.Errorf("expected logger name 'compress', got %q", entries[0].LoggerName)
	}
	if entries[0].Message != "done in 12ms" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if entries[0].ContextMap()["strip"] != "safe" {
		t.Errorf("missing strip field: %v", entries[0].ContextMap())
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("ignored")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on Nop logger: %v", err)
	}
}

func TestContextFunctions(t *testing.T) {
	ctx := SetTraceID(context.Background(), "trace-123")
	ctx = SetRequestID(ctx, "item-4")

	if got := GetTraceID(ctx); got != "trace-123" {
		t.Errorf("GetTraceID() = %q", got)
	}
	if got := GetRequestID(ctx); got != "item-4" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("GetTraceID(empty) = %q", got)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := SetTraceID(context.Background(), "trace-abc")

	WithContext(FromZap(zap.New(core)), ctx).Info("hello")

	fields := logs.All()[0].ContextMap()
	if fields["trace_id"] != "trace-abc" {
		t.Errorf("expected trace_id field, got %v", fields)
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Global()
	SetGlobal(FromZap(zap.New(core)))
	defer SetGlobal(prev)

	FromContext(context.Background()).Info("global")
	if logs.Len() != 1 {
		t.Fatalf("expected global logger to receive entry")
	}

	scoped := Nop()
	if FromContext(ToContext(context.Background(), scoped)) != scoped {
		t.Error("FromContext should return the stored logger")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("nope"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/compress?level=3", nil)
	req = req.WithContext(SetTraceID(req.Context(), "t-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["trace_id"] != "t-1" {
		t.Errorf("request logger should carry trace_id: %v", entries[0].ContextMap())
	}
	last := entries[1]
	if last.Level != zapcore.WarnLevel {
		t.Errorf("4xx should log at warn, got %v", last.Level)
	}
	if last.ContextMap()["status"] != int64(http.StatusUnprocessableEntity) {
		t.Errorf("unexpected status field: %v", last.ContextMap()["status"])
	}
	if last.ContextMap()["bytes"] != int64(4) {
		t.Errorf("unexpected bytes field: %v", last.ContextMap()["bytes"])
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
