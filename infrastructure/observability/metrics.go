package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"raffler/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider records draw metrics through OpenTelemetry. Until Initialize
// succeeds every Record call is a no-op.
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	drawsCounter      metric.Int64Counter
	drawDurationHist  metric.Float64Histogram
	payoutsCounter    metric.Int64Counter
	payoutAmountSum   metric.Int64Counter
	contentionCounter metric.Int64Counter
}

func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{config: cfg}
}

// Initialize sets up the meter provider for the configured exporter
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}
	if !mp.config.MetricsEnabled || mp.config.MetricsExporter == "none" {
		log.Info("Metrics export disabled")
		mp.initialized = true
		return nil
	}

	if mp.reader == nil {
		var exporter sdkmetric.Exporter
		var err error
		switch mp.config.MetricsExporter {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
		case "otlp":
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			exporter, err = otlpmetricgrpc.New(dialCtx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.MetricsExporter)
		}
		mp.reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))
		log.WithField("exporter", mp.config.MetricsExporter).Info("Metric exporter configured")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(mp.config.ServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(mp.reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("raffler")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.drawsCounter, err = mp.meter.Int64Counter(DrawsTotal,
		metric.WithDescription("Draw attempts by result"),
		metric.WithUnit("1"))
	if err != nil {
		return fmt.Errorf("failed to create draws counter: %w", err)
	}

	mp.drawDurationHist, err = mp.meter.Float64Histogram(DrawDuration,
		metric.WithDescription("Duration of draw attempts"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("failed to create draw duration histogram: %w", err)
	}

	mp.payoutsCounter, err = mp.meter.Int64Counter(PayoutsTotal,
		metric.WithDescription("Transfer attempts by kind and success"),
		metric.WithUnit("1"))
	if err != nil {
		return fmt.Errorf("failed to create payouts counter: %w", err)
	}

	mp.payoutAmountSum, err = mp.meter.Int64Counter(PayoutAmountTotal,
		metric.WithDescription("Lamports transferred"),
		metric.WithUnit("lamports"))
	if err != nil {
		return fmt.Errorf("failed to create payout amount counter: %w", err)
	}

	mp.contentionCounter, err = mp.meter.Int64Counter(LockContentionTotal,
		metric.WithDescription("Draw attempts skipped because the lock was held"),
		metric.WithUnit("1"))
	if err != nil {
		return fmt.Errorf("failed to create lock contention counter: %w", err)
	}
	return nil
}

func (mp *MetricsProvider) ready() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

func (mp *MetricsProvider) RecordDrawOutcome(ctx context.Context, result, reason string, duration time.Duration) {
	if !mp.ready() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelResult, result),
		attribute.String(LabelReason, reason),
	)
	mp.drawsCounter.Add(ctx, 1, attrs)
	mp.drawDurationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(LabelResult, result)))
}

func (mp *MetricsProvider) RecordPayout(ctx context.Context, kind string, success bool, amount int64) {
	if !mp.ready() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelKind, kind),
		attribute.Bool(LabelSuccess, success),
	)
	mp.payoutsCounter.Add(ctx, 1, attrs)
	if success {
		mp.payoutAmountSum.Add(ctx, amount, metric.WithAttributes(attribute.String(LabelKind, kind)))
	}
}

func (mp *MetricsProvider) RecordLockContention(ctx context.Context) {
	if !mp.ready() {
		return
	}
	mp.contentionCounter.Add(ctx, 1)
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider == nil {
		return nil
	}
	if err := mp.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	mp.initialized = false
	mp.meter = nil
	return nil
}
