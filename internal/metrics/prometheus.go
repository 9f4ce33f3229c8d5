package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "updown_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	ordersCancelled  prometheus.Counter
	pairsCompleted   prometheus.Counter
	actionsBlocked   prometheus.Counter
	settlementWins   prometheus.Counter
	settlementLosses prometheus.Counter

	aggregateUnhedged prometheus.Gauge
	totalExposure     prometheus.Gauge
	trackedMarkets    prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_cancelled_total",
		Help:      "Total number of orders cancelled.",
	})
	pairsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "pairs_completed_total",
		Help:      "Total number of completed two-sided pairs.",
	})
	actionsBlocked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "actions_blocked_total",
		Help:      "Total number of actions blocked by risk or price checks.",
	})
	settlementWins := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "settlement_wins_total",
		Help:      "Total number of settlements closed at a profit.",
	})
	settlementLosses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "settlement_losses_total",
		Help:      "Total number of settlements closed at a loss.",
	})

	aggregateUnhedged := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "aggregate_unhedged",
		Help:      "Unhedged exposure summed across open markets.",
	})
	totalExposure := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "total_exposure",
		Help:      "Total cost basis across open markets.",
	})
	trackedMarkets := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "tracked_markets",
		Help:      "Number of markets currently tracked.",
	})

	registry.MustRegister(
		ordersPlaced, ordersFailed, ordersCancelled, pairsCompleted,
		actionsBlocked, settlementWins, settlementLosses,
		aggregateUnhedged, totalExposure, trackedMarkets,
	)

	m := &Metrics{
		OrdersPlaced:     promCounter{ordersPlaced},
		OrdersFailed:     promCounter{ordersFailed},
		OrdersCancelled:  promCounter{ordersCancelled},
		PairsCompleted:   promCounter{pairsCompleted},
		ActionsBlocked:   promCounter{actionsBlocked},
		SettlementWins:   promCounter{settlementWins},
		SettlementLosses: promCounter{settlementLosses},

		AggregateUnhedged: promGauge{aggregateUnhedged},
		TotalExposure:     promGauge{totalExposure},
		TrackedMarkets:    promGauge{trackedMarkets},
	}

	return &Prometheus{
		Metrics:          m,
		registry:         registry,
		ordersPlaced:     ordersPlaced,
		ordersFailed:     ordersFailed,
		ordersCancelled:  ordersCancelled,
		pairsCompleted:   pairsCompleted,
		actionsBlocked:   actionsBlocked,
		settlementWins:   settlementWins,
		settlementLosses: settlementLosses,

		aggregateUnhedged: aggregateUnhedged,
		totalExposure:     totalExposure,
		trackedMarkets:    trackedMarkets,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
