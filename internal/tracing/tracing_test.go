package tracing

import (
	"context"
	"testing"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing should yield non-recording spans")
	}
	span.End()
}

func TestInitUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}, "test")
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
