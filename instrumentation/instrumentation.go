package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// instrumentationName is the scope name used for meters and tracers
	instrumentationName = "github.com/aquaflow/sessionguard"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the consuming service (e.g., "aquaflow-app")
	ServiceName string

	// ServiceVersion is the version of the consuming service
	ServiceVersion string

	// Enabled controls whether instrumentation is active
	// When false, uses no-op providers (zero overhead)
	Enabled bool

	// MeterProvider is the metric provider to use when enabled.
	// If nil, a no-op provider is used. Inject an SDK provider (Prometheus,
	// OTLP, stdout) from the application composition root.
	MeterProvider metric.MeterProvider

	// TracerProvider is the trace provider to use when enabled.
	// If nil, a no-op provider is used.
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	// Metrics holder provides pre-configured metric instruments
	metrics *Metrics

	// Shutdown functions (registered during New() only, not thread-safe after initialization)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
// When cfg.Enabled is false, all providers are no-op and recording is free.
func New(cfg Config) (*Instrumentation, error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = DefaultServiceVersion
	}

	res := cfg.Resource
	if res == nil {
		var err error
		res, err = resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   cfg,
		resource: res,
	}

	if cfg.Enabled && cfg.MeterProvider != nil {
		inst.meterProvider = cfg.MeterProvider
	} else {
		inst.meterProvider = noop.NewMeterProvider()
	}

	if cfg.Enabled && cfg.TracerProvider != nil {
		inst.tracerProvider = cfg.TracerProvider
	} else {
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	metrics, err := newMetrics(inst.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = metrics

	return inst, nil
}

// Metrics returns the pre-configured metric instruments
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Resource returns the OTEL resource describing this service
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// MeterProvider returns the active meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// Tracer returns a tracer with the given name from the active provider
func (i *Instrumentation) Tracer(name string) trace.Tracer {
	return i.tracerProvider.Tracer(name)
}

// Shutdown flushes and shuts down any owned instrumentation components.
// Injected providers are owned by the caller and are not shut down here.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var err error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if shutdownErr := fn(ctx); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
		}
	})
	return err
}
