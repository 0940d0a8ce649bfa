package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
// Make fields public so they can be accessed from other packages.
type AppMetrics struct {
	TourRequestsTotal    metric.Int64Counter
	CacheHitsTotal       metric.Int64Counter
	RunsCompletedTotal   metric.Int64Counter
	RunsFailedTotal      metric.Int64Counter
	RunsDegradedTotal    metric.Int64Counter
	RunDurationSeconds   metric.Float64Histogram
	SegmentFailuresTotal metric.Int64Counter
	ProviderRetriesTotal metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("TourCast")
		var err error
		m := &AppMetrics{}

		m.TourRequestsTotal, err = meter.Int64Counter(
			"tour_requests_total",
			metric.WithDescription("Total number of tour requests received"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create tour_requests_total: %v", err)
		}

		m.CacheHitsTotal, err = meter.Int64Counter(
			"tour_cache_hits_total",
			metric.WithDescription("Total number of tour requests served from cache"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create tour_cache_hits_total: %v", err)
		}

		m.RunsCompletedTotal, err = meter.Int64Counter(
			"pipeline_runs_completed_total",
			metric.WithDescription("Total number of pipeline runs that reached READY"),
			metric.WithUnit("{run}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create pipeline_runs_completed_total: %v", err)
		}

		m.RunsFailedTotal, err = meter.Int64Counter(
			"pipeline_runs_failed_total",
			metric.WithDescription("Total number of pipeline runs that ended FAILED"),
			metric.WithUnit("{run}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create pipeline_runs_failed_total: %v", err)
		}

		m.RunsDegradedTotal, err = meter.Int64Counter(
			"pipeline_runs_degraded_total",
			metric.WithDescription("Total number of READY runs that lost at least one segment"),
			metric.WithUnit("{run}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create pipeline_runs_degraded_total: %v", err)
		}

		m.RunDurationSeconds, err = meter.Float64Histogram(
			"pipeline_run_duration_seconds",
			metric.WithDescription("End-to-end duration of pipeline runs in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create pipeline_run_duration_seconds: %v", err)
		}

		m.SegmentFailuresTotal, err = meter.Int64Counter(
			"segment_failures_total",
			metric.WithDescription("Total number of per-POI segments that failed permanently"),
			metric.WithUnit("{segment}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create segment_failures_total: %v", err)
		}

		m.ProviderRetriesTotal, err = meter.Int64Counter(
			"provider_retries_total",
			metric.WithDescription("Total number of retried provider calls"),
			metric.WithUnit("{retry}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create provider_retries_total: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
