package otelx

import (
	"context"
	"testing"

	"github.com/bakkerme/feedcache/internal/config"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), nil, config.OTelEnvConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), nil, config.OTelEnvConfig{Enabled: true, Protocol: "carrier-pigeon"})
	if err == nil {
		t.Fatalf("expected protocol error")
	}
}

func TestEndpointDefaults(t *testing.T) {
	if got := endpoint(config.OTelEnvConfig{}); got != "localhost:4317" {
		t.Fatalf("grpc default: got %q", got)
	}
	if got := endpoint(config.OTelEnvConfig{Protocol: "HTTP"}); got != "localhost:4318" {
		t.Fatalf("http default: got %q", got)
	}
	if got := protocol(config.OTelEnvConfig{Protocol: " http "}); got != protocolHTTP {
		t.Fatalf("expected http alias to normalise, got %q", got)
	}
}

func TestGRPCHostStripsScheme(t *testing.T) {
	host, err := grpcHost("http://collector:4317")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "collector:4317" {
		t.Fatalf("got %q", host)
	}
	if host, _ := grpcHost("collector:4317"); host != "collector:4317" {
		t.Fatalf("bare host changed: %q", host)
	}
}
