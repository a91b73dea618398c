package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Disabled(t *testing.T) {
	inst, err := New(Config{
		ServiceName: "test-service",
		Enabled:     false,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if inst.Metrics() == nil {
		t.Fatal("Metrics() should never be nil")
	}
	if inst.MeterProvider() == nil {
		t.Fatal("MeterProvider() should fall back to a no-op provider")
	}
	if inst.Resource() == nil {
		t.Fatal("Resource() should be populated")
	}

	// Recording against no-op instruments must be safe
	inst.Metrics().SecurityEvents.Add(context.Background(), 1)
	inst.Metrics().SessionDuration.Record(context.Background(), 1.5)
}

func TestNew_DefaultServiceVersion(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
}

func TestNew_EnabledWithoutProviders(t *testing.T) {
	// Enabled but with nothing injected still gets working no-op providers
	inst, err := New(Config{
		ServiceName: "test-service",
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tracer := inst.Tracer("test")
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}
