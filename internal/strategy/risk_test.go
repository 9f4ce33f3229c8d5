package strategy

import (
	"errors"
	"testing"

	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/ledger"
)

func riskConfig() config.RiskConfig {
	return config.RiskConfig{SoftLimit: 10, HardLimit: 20, MaxAggregateUnhedged: 50}
}

func position(up, down float64) ledger.MarketPosition {
	return ledger.MarketPosition{
		Up:   ledger.Position{Shares: up, Cost: up * 0.45},
		Down: ledger.Position{Shares: down, Cost: down * 0.40},
	}
}

func TestAssessLevels(t *testing.T) {
	cfg := riskConfig()
	cases := []struct {
		up, down float64
		want     RiskLevel
	}{
		{5, 0, RiskSafe},
		{9, 0, RiskSafe},
		{10, 0, RiskSoft},
		{19, 0, RiskSoft},
		{20, 0, RiskHard},
		{0, 25, RiskHard},
		{15, 15, RiskSafe},
	}
	for _, tc := range cases {
		exp := Assess(position(tc.up, tc.down), cfg, config.RiskUnitShares)
		if exp.Level != tc.want {
			t.Fatalf("up=%v down=%v: expected %s, got %s", tc.up, tc.down, tc.want, exp.Level)
		}
	}
}

func TestAssessDollarsUnit(t *testing.T) {
	cfg := config.RiskConfig{SoftLimit: 4, HardLimit: 8, MaxAggregateUnhedged: 20}
	// 20 up shares at 0.45 unhedged = $9 -> hard.
	exp := Assess(position(20, 0), cfg, config.RiskUnitDollars)
	if exp.Unhedged != 9 {
		t.Fatalf("expected $9 unhedged, got %v", exp.Unhedged)
	}
	if exp.Level != RiskHard {
		t.Fatalf("expected hard level, got %s", exp.Level)
	}
}

func TestCheckOpenHardLimitBlocksHeavyOnly(t *testing.T) {
	cfg := riskConfig()
	exp := Assess(position(25, 0), cfg, config.RiskUnitShares)
	agg := Aggregate{Unhedged: exp.Unhedged}

	err := CheckOpen(exp, agg, ledger.OutcomeUp, cfg)
	if !errors.Is(err, ErrHardLimit) {
		t.Fatalf("heavy side must be blocked at hard limit, got %v", err)
	}
	if err := CheckOpen(exp, agg, ledger.OutcomeDown, cfg); err != nil {
		t.Fatalf("light-side hedge must pass the hard limit, got %v", err)
	}
}

func TestCheckOpenAggregateBlocksEverything(t *testing.T) {
	cfg := riskConfig()
	exp := Assess(position(5, 0), cfg, config.RiskUnitShares)
	agg := Aggregate{Unhedged: 50}

	for _, outcome := range []ledger.Outcome{ledger.OutcomeUp, ledger.OutcomeDown} {
		err := CheckOpen(exp, agg, outcome, cfg)
		if !errors.Is(err, ErrAggregateLimit) {
			t.Fatalf("aggregate ceiling must block %s, got %v", outcome, err)
		}
	}
}

func TestCheckOpenTotalExposure(t *testing.T) {
	cfg := riskConfig()
	cfg.MaxTotalExposure = 100
	exp := Assess(position(5, 0), cfg, config.RiskUnitShares)

	err := CheckOpen(exp, Aggregate{TotalExposure: 120}, ledger.OutcomeUp, cfg)
	if !errors.Is(err, ErrTotalExposure) {
		t.Fatalf("expected total exposure block, got %v", err)
	}
}

func TestAggregated(t *testing.T) {
	cfg := riskConfig()
	agg := Aggregated([]ledger.MarketPosition{
		position(12, 0),
		position(0, 8),
		position(5, 5),
	}, cfg, config.RiskUnitShares)
	if agg.Unhedged != 20 {
		t.Fatalf("expected aggregate unhedged 20, got %v", agg.Unhedged)
	}
	if agg.Markets != 3 {
		t.Fatalf("expected 3 markets, got %d", agg.Markets)
	}
}
