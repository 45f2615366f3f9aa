package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/config"
)

func TestNew(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "test-svc"})
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "test-svc", Async: true})
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestLoggerAddsServiceAndRequestID(t *testing.T) {
	for _, async := range []bool{false, true} {
		var buf bytes.Buffer
		l, closer := newWithWriter(config.Logging{Level: "info", Service: "crewd", Async: async}, &buf)

		ctx := WithRequestID(context.Background(), "req-42")
		l.InfoContext(ctx, "orchestrated", "crew", 3)
		closer.Close()

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("async=%v: decode log line %q: %v", async, buf.String(), err)
		}
		if rec["service"] != "crewd" {
			t.Errorf("async=%v: service = %v", async, rec["service"])
		}
		if rec["request_id"] != "req-42" {
			t.Errorf("async=%v: request_id = %v", async, rec["request_id"])
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestDetachKeepsRequestIDDropsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-9"))
	cancel()

	d := Detach(ctx)
	if d.Err() != nil {
		t.Fatal("detached context must not be cancelled")
	}
	if RequestID(d) != "req-9" {
		t.Fatalf("expected request ID to survive Detach, got %q", RequestID(d))
	}
}
