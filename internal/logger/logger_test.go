package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit_ReturnsAndInstallsDefault(t *testing.T) {
	lg := Init("test-service", slog.LevelInfo)
	if lg == nil {
		t.Fatal("expected non-nil logger")
	}
	if slog.Default() != lg {
		t.Error("Init should install the logger as process default")
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID on bare context = %q, want empty", got)
	}

	ctx = WithTraceID(ctx, "gbpjpy-1700000000")
	if got := TraceID(ctx); got != "gbpjpy-1700000000" {
		t.Errorf("TraceID = %q, want gbpjpy-1700000000", got)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("GBPJPY", ts)
	if !strings.HasPrefix(tid, "GBPJPY-") {
		t.Errorf("trace id %q should start with the symbol", tid)
	}
	if !strings.HasSuffix(tid, "123456789") {
		t.Errorf("trace id %q should end with the nano timestamp", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	if attrs := LogWithTrace(context.Background()); attrs != nil {
		t.Errorf("no trace id: expected nil attrs, got %v", attrs)
	}

	ctx := WithTraceID(context.Background(), "abc-123")
	attrs := LogWithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %d", len(attrs))
	}
	attr, ok := attrs[0].(slog.Attr)
	if !ok || attr.Value.String() != "abc-123" {
		t.Errorf("attr = %v, want trace_id=abc-123", attrs[0])
	}
}
