package strategy

import (
	"errors"
	"fmt"

	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/ledger"
)

var (
	ErrHardLimit      = errors.New("per-market unhedged exposure at hard limit")
	ErrAggregateLimit = errors.New("aggregate unhedged exposure at limit")
	ErrTotalExposure  = errors.New("total exposure at limit")
	ErrStaleQuote     = errors.New("quote too stale to act on")
)

// RiskLevel classifies one market's unhedged exposure.
type RiskLevel string

const (
	RiskSafe RiskLevel = "SAFE"
	RiskSoft RiskLevel = "SOFT_LIMIT"
	RiskHard RiskLevel = "HARD_LIMIT"
)

// Exposure is the per-market risk picture in the configured unit.
type Exposure struct {
	Imbalance float64
	Hedged    float64
	Unhedged  float64
	TotalCost float64
	Heavy     ledger.Outcome
	Level     RiskLevel
}

// Assess computes the exposure of one market. The unhedged figure is in
// shares, or in dollars at the heavy side's average cost when the risk
// unit is dollars.
func Assess(pos ledger.MarketPosition, cfg config.RiskConfig, unit config.RiskUnit) Exposure {
	imbalance := pos.Imbalance()
	heavy := pos.HeavySide()

	unhedged := imbalance
	if unhedged < 0 {
		unhedged = -unhedged
	}
	if unit == config.RiskUnitDollars {
		unhedged *= pos.Get(heavy).AvgCost()
	}

	level := RiskSafe
	switch {
	case unhedged >= cfg.HardLimit:
		level = RiskHard
	case unhedged >= cfg.SoftLimit:
		level = RiskSoft
	}

	return Exposure{
		Imbalance: imbalance,
		Hedged:    pos.Hedged(),
		Unhedged:  unhedged,
		TotalCost: pos.TotalCost(),
		Heavy:     heavy,
		Level:     level,
	}
}

// Aggregate sums exposure across every open market.
type Aggregate struct {
	Unhedged      float64
	TotalExposure float64
	Markets       int
}

func Aggregated(positions []ledger.MarketPosition, cfg config.RiskConfig, unit config.RiskUnit) Aggregate {
	var agg Aggregate
	for _, pos := range positions {
		exp := Assess(pos, cfg, unit)
		agg.Unhedged += exp.Unhedged
		agg.TotalExposure += exp.TotalCost
		agg.Markets++
	}
	return agg
}

// CheckOpen gates an exposure-increasing order on outcome. Hedge orders
// on the light side pass the per-market hard limit but still respect
// the aggregate ceilings.
func CheckOpen(exp Exposure, agg Aggregate, outcome ledger.Outcome, cfg config.RiskConfig) error {
	if agg.Unhedged >= cfg.MaxAggregateUnhedged {
		return fmt.Errorf("aggregate unhedged %.2f >= %.2f: %w", agg.Unhedged, cfg.MaxAggregateUnhedged, ErrAggregateLimit)
	}
	if cfg.MaxTotalExposure > 0 && agg.TotalExposure >= cfg.MaxTotalExposure {
		return fmt.Errorf("total exposure %.2f >= %.2f: %w", agg.TotalExposure, cfg.MaxTotalExposure, ErrTotalExposure)
	}
	if exp.Level == RiskHard && outcome == exp.Heavy {
		return fmt.Errorf("unhedged %.2f >= hard limit %.2f on %s: %w", exp.Unhedged, cfg.HardLimit, outcome, ErrHardLimit)
	}
	return nil
}
