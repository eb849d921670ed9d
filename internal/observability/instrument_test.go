package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/servicecall/internal/observability/middleware"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestInstrumentEnrichesRecords(t *testing.T) {
	restoreDefaultLogger(t)

	var buf bytes.Buffer
	shutdown, err := Instrument(context.Background(), Options{
		Level:  slog.LevelInfo,
		Format: "json",
		Output: &buf,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = context.WithValue(ctx, middleware.RequestIDContextKey{}, "req-1")

	slog.DebugContext(ctx, "filtered")
	slog.InfoContext(ctx, "token refreshed", "token_id", "t-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"msg":        "token refreshed",
		"token_id":   "t-1",
		"trace_id":   "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id":    "00f067aa0ba902b7",
		"request_id": "req-1",
	}
	for k, v := range want {
		if record[k] != v {
			t.Errorf("%s = %v, want %s", k, record[k], v)
		}
	}
}

func TestInstrumentWithStdoutExporter(t *testing.T) {
	restoreDefaultLogger(t)

	var buf bytes.Buffer
	shutdown, err := Instrument(context.Background(), Options{
		Level:    slog.LevelInfo,
		Format:   "text",
		Exporter: ExporterStdout,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	slog.Info("hello")
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("msg=hello")) {
		t.Errorf("text output missing record: %q", buf.String())
	}
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	restoreDefaultLogger(t)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "format", opts: Options{Format: "xml"}},
		{name: "exporter", opts: Options{Format: "text", Exporter: "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Instrument(context.Background(), tt.opts); err == nil {
				t.Fatal("Instrument succeeded")
			}
		})
	}
}

func TestFanoutHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "test")

	logger.Debug("detail")
	logger.Warn("problem")

	if !bytes.Contains(debug.Bytes(), []byte("detail")) || !bytes.Contains(debug.Bytes(), []byte("problem")) {
		t.Errorf("debug handler output = %q", debug.String())
	}
	if bytes.Contains(warn.Bytes(), []byte("detail")) || !bytes.Contains(warn.Bytes(), []byte("component=test")) {
		t.Errorf("warn handler output = %q", warn.String())
	}
}
