package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	OrdersPlaced    Counter
	OrdersFailed    Counter
	OrdersCancelled Counter
	PairsCompleted  Counter
	ActionsBlocked  Counter
	SettlementWins  Counter
	SettlementLosses Counter

	AggregateUnhedged Gauge
	TotalExposure     Gauge
	TrackedMarkets    Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		OrdersPlaced:     c,
		OrdersFailed:     c,
		OrdersCancelled:  c,
		PairsCompleted:   c,
		ActionsBlocked:   c,
		SettlementWins:   c,
		SettlementLosses: c,

		AggregateUnhedged: g,
		TotalExposure:     g,
		TrackedMarkets:    g,
	}
}
