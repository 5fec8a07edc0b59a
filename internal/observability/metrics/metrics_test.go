package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	assert.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRecordIssuanceBatch_CountsBatchesAndItems(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "fleetpass-test"}, provider)
	assert.NoError(t, err)

	ctx := context.Background()
	m.RecordIssuanceBatch(ctx, "issued", 3)
	m.RecordIssuanceBatch(ctx, "issued", 2)
	m.RecordIssuanceBatch(ctx, "rejected", 4)

	assert.Equal(t, int64(3), counterTotal(t, reader, "fleetpass_issuance_batches_total"))
	assert.Equal(t, int64(9), counterTotal(t, reader, "fleetpass_issuance_items_total"))
}

func TestFilterAttributes_DropsUnknownAndEmpty(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "issued"),
		attribute.String("tenant_id", "12345"),
		attribute.String("kind", ""),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("outcome"), attrs[0].Key)
}
