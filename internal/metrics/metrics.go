// Package metrics exposes the mirror's pipeline counters over Prometheus,
// via the OpenTelemetry metrics SDK's Prometheus exporter.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counters the pipeline increments as it resolves and
// downloads packages.
type Metrics struct {
	PackagesResolved metric.Int64Counter
	TarballsFetched  metric.Int64Counter
	TarballsCached   metric.Int64Counter
	TarballsFailed   metric.Int64Counter
}

// New registers the pipeline's counters against a fresh Prometheus
// exporter and sets it as the global meter provider.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/git-pkgs/registry-mirror")

	if m.PackagesResolved, err = meter.Int64Counter("packages_resolved_total", metric.WithDescription("Total packages emitted by the resolver")); err != nil {
		return Metrics{}, fmt.Errorf("creating packages_resolved_total counter: %w", err)
	}
	if m.TarballsFetched, err = meter.Int64Counter("tarballs_fetched_total", metric.WithDescription("Total tarballs downloaded from the upstream registry")); err != nil {
		return Metrics{}, fmt.Errorf("creating tarballs_fetched_total counter: %w", err)
	}
	if m.TarballsCached, err = meter.Int64Counter("tarballs_cached_total", metric.WithDescription("Total tarballs skipped because they were already in the tarball cache")); err != nil {
		return Metrics{}, fmt.Errorf("creating tarballs_cached_total counter: %w", err)
	}
	if m.TarballsFailed, err = meter.Int64Counter("tarballs_failed_total", metric.WithDescription("Total tarball downloads that failed")); err != nil {
		return Metrics{}, fmt.Errorf("creating tarballs_failed_total counter: %w", err)
	}

	return m, nil
}

// ListenAndServe starts the /metrics HTTP endpoint. Blocks until the
// server exits.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

// RecordResolve increments the resolved-package counter.
func (m Metrics) RecordResolve(ctx context.Context, n int64) {
	if m.PackagesResolved == nil {
		return
	}
	m.PackagesResolved.Add(ctx, n)
}

// RecordDownload increments the fetched/cached/failed counters for one
// download pass's summary.
func (m Metrics) RecordDownload(ctx context.Context, fetched, cached, failed int64) {
	if m.TarballsFetched != nil {
		m.TarballsFetched.Add(ctx, fetched, metric.WithAttributes(attribute.String("registry", "npm")))
	}
	if m.TarballsCached != nil {
		m.TarballsCached.Add(ctx, cached, metric.WithAttributes(attribute.String("registry", "npm")))
	}
	if m.TarballsFailed != nil {
		m.TarballsFailed.Add(ctx, failed, metric.WithAttributes(attribute.String("registry", "npm")))
	}
}
