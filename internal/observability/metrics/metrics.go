package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes waste pipeline instruments.
type Metrics struct {
	analyses        metric.Int64Counter
	recommendations metric.Int64Counter
	reconciliations metric.Int64Counter
	pickups         metric.Int64Counter
	rewardPoints    metric.Int64Counter
	partnerSyncs    metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "wasteloop"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.analyses, err = meter.Int64Counter("wasteloop_waste_analyses_total"); err != nil {
		return nil, err
	}
	if m.recommendations, err = meter.Int64Counter("wasteloop_waste_recommendations_total"); err != nil {
		return nil, err
	}
	if m.reconciliations, err = meter.Int64Counter("wasteloop_ledger_reconciliations_total"); err != nil {
		return nil, err
	}
	if m.pickups, err = meter.Int64Counter("wasteloop_pickups_total"); err != nil {
		return nil, err
	}
	if m.rewardPoints, err = meter.Int64Counter("wasteloop_reward_points_total"); err != nil {
		return nil, err
	}
	if m.partnerSyncs, err = meter.Int64Counter("wasteloop_partner_syncs_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("wasteloop_rate_limit_denied_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordAnalysis counts one inference run by source (analyze or ingestion) and outcome.
func (m *Metrics) RecordAnalysis(ctx context.Context, source, outcome string, recommendations int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.analyses.Add(ctx, 1, metric.WithAttributes(attrs...))
	if recommendations > 0 {
		m.recommendations.Add(ctx, int64(recommendations), metric.WithAttributes(attrs...))
	}
}

// RecordReconciliation counts merged recommendations by action (insert or increment).
func (m *Metrics) RecordReconciliation(ctx context.Context, action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.reconciliations.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordPickup counts pickup lifecycle events by status.
func (m *Metrics) RecordPickup(ctx context.Context, status string, points int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.pickups.Add(ctx, 1, metric.WithAttributes(attrs...))
	if points > 0 {
		m.rewardPoints.Add(ctx, points)
	}
}

// RecordPartnerSync counts partner calls by operation and outcome.
func (m *Metrics) RecordPartnerSync(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.partnerSyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied counts rejected analyze calls.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// User identifiers and material names are unbounded; keep them out of metric labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":      {},
	"outcome":     {},
	"action":      {},
	"status":      {},
	"operation":   {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes keeps only low-cardinality attribute keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}
