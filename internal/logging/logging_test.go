package logging

import (
	"context"
	"testing"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if logger := New(level, "text"); logger == nil {
			t.Errorf("New(%q, text) returned nil", level)
		}
	}
	if logger := New("info", "json"); logger == nil {
		t.Error("New(info, json) returned nil")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID(empty ctx) = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q, want req-123", got)
	}
}

func TestCheckIDRoundTrip(t *testing.T) {
	ctx := WithCheckID(context.Background(), "vrd_abc")
	if got := CheckID(ctx); got != "vrd_abc" {
		t.Errorf("CheckID = %q, want vrd_abc", got)
	}
}

func TestLNeverNil(t *testing.T) {
	ctx := WithCheckID(WithRequestID(context.Background(), "req-1"), "vrd_1")
	if L(ctx) == nil {
		t.Error("L(ctx) returned nil")
	}
	if L(context.Background()) == nil {
		t.Error("L(empty ctx) returned nil")
	}
}
