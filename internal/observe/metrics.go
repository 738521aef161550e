// Package observe provides the OpenTelemetry metric instruments shared by the
// asset pipeline, the library and the tale-store server, plus the HTTP
// middleware that records request latency.
//
// A Prometheus exporter bridge is installed by [InitProvider] so the server
// can expose /metrics. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all TaleWeaver metrics.
const meterName = "github.com/unalkalkan/TaleWeaver"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// AssetDuration tracks backend latency per phase (text, image, audio).
	AssetDuration metric.Float64Histogram

	// AssetRequests counts backend calls. Use with attributes:
	//   attribute.String("phase", ...), attribute.String("status", ...)
	AssetRequests metric.Int64Counter

	// Runs counts finished generation runs by outcome
	// (complete, degraded, failed, superseded).
	Runs metric.Int64Counter

	// ReadyFailsafes counts runs forced ready before their assets resolved.
	ReadyFailsafes metric.Int64Counter

	// ActiveRuns tracks runs whose assets are still resolving.
	ActiveRuns metric.Int64UpDownCounter

	// Reconciles counts library merges by collection kind.
	Reconciles metric.Int64Counter

	// StoreOperations counts tale-store operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	StoreOperations metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// image and narration generation, which routinely take tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssetDuration, err = m.Float64Histogram("taleweaver.asset.duration",
		metric.WithDescription("Latency of backend asset generation by phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("taleweaver.http.request.duration",
		metric.WithDescription("Duration of HTTP requests served by the tale store."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AssetRequests, err = m.Int64Counter("taleweaver.asset.requests",
		metric.WithDescription("Total backend asset requests by phase and status."),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("taleweaver.pipeline.runs",
		metric.WithDescription("Generation runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ReadyFailsafes, err = m.Int64Counter("taleweaver.pipeline.ready_failsafes",
		metric.WithDescription("Runs forced ready by the failsafe timer."),
	); err != nil {
		return nil, err
	}
	if met.Reconciles, err = m.Int64Counter("taleweaver.library.reconciles",
		metric.WithDescription("Library merges by collection kind."),
	); err != nil {
		return nil, err
	}
	if met.StoreOperations, err = m.Int64Counter("taleweaver.store.operations",
		metric.WithDescription("Tale-store operations by op and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRuns, err = m.Int64UpDownCounter("taleweaver.pipeline.active_runs",
		metric.WithDescription("Runs whose assets are still resolving."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAsset records one backend call and its latency
func (m *Metrics) RecordAsset(ctx context.Context, phase, status string, d time.Duration) {
	m.AssetRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("status", status),
		),
	)
	m.AssetDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordRun records a finished run
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReconcile records a library merge
func (m *Metrics) RecordReconcile(ctx context.Context, kind string) {
	m.Reconciles.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordStoreOperation records a tale-store operation
func (m *Metrics) RecordStoreOperation(ctx context.Context, op, status string) {
	m.StoreOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
