// Package metrics wires OpenTelemetry instruments for the issuance and
// ledger pipelines. When metrics are disabled a noop provider is installed so
// callers never need nil checks.
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

// Metrics exposes application-level instruments.
type Metrics struct {
	issuanceBatches     metric.Int64Counter
	issuanceItems       metric.Int64Counter
	ledgerTransactions  metric.Int64Counter
	attestationsExpired metric.Int64Counter
	renderFailures      metric.Int64Counter
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
		name = "fleetpass"
	}
	meter := provider.Meter(name)

	issuanceBatches, err := meter.Int64Counter("fleetpass_issuance_batches_total")
	if err != nil {
		return nil, err
	}
	issuanceItems, err := meter.Int64Counter("fleetpass_issuance_items_total")
	if err != nil {
		return nil, err
	}
	ledgerTransactions, err := meter.Int64Counter("fleetpass_ledger_transactions_total")
	if err != nil {
		return nil, err
	}
	attestationsExpired, err := meter.Int64Counter("fleetpass_attestations_expired_total")
	if err != nil {
		return nil, err
	}
	renderFailures, err := meter.Int64Counter("fleetpass_document_render_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		issuanceBatches:     issuanceBatches,
		issuanceItems:       issuanceItems,
		ledgerTransactions:  ledgerTransactions,
		attestationsExpired: attestationsExpired,
		renderFailures:      renderFailures,
	}, nil
}

// RecordIssuanceBatch increments issuance batch and item counts by outcome.
func (m *Metrics) RecordIssuanceBatch(ctx context.Context, outcome string, items int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.issuanceBatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	if items > 0 {
		m.issuanceItems.Add(ctx, int64(items), metric.WithAttributes(attrs...))
	}
}

// RecordLedgerTransaction increments ledger transaction counts.
func (m *Metrics) RecordLedgerTransaction(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.ledgerTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAttestationsExpired adds expired counts from a sweep run.
func (m *Metrics) RecordAttestationsExpired(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.attestationsExpired.Add(ctx, count)
}

// RecordRenderFailure increments document render failure counts.
func (m *Metrics) RecordRenderFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.renderFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// allowedLabelKeys bounds metric cardinality. Anything else is dropped.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome": {},
	"kind":    {},
	"reason":  {},
}

// FilterAttributes drops attributes whose keys are not allow-listed.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.AsString() == "" {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
