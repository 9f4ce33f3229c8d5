package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.OrdersCancelled.Inc()
	prom.Metrics.PairsCompleted.Inc()
	prom.Metrics.ActionsBlocked.Inc()
	prom.Metrics.SettlementWins.Inc()
	prom.Metrics.SettlementLosses.Inc()

	assertValue(t, prom.ordersPlaced, 1)
	assertValue(t, prom.ordersFailed, 1)
	assertValue(t, prom.ordersCancelled, 1)
	assertValue(t, prom.pairsCompleted, 1)
	assertValue(t, prom.actionsBlocked, 1)
	assertValue(t, prom.settlementWins, 1)
	assertValue(t, prom.settlementLosses, 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.AggregateUnhedged.Set(12.5)
	prom.Metrics.TotalExposure.Set(40)
	prom.Metrics.TrackedMarkets.Set(3)

	assertValue(t, prom.aggregateUnhedged, 12.5)
	assertValue(t, prom.totalExposure, 40)
	assertValue(t, prom.trackedMarkets, 3)
}

func assertValue(t *testing.T, collector prometheus.Collector, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(collector); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
