package strategy

import (
	"time"

	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/market"
)

// Phase is the time-of-window trading regime.
type Phase string

const (
	PhaseAggressiveEntry Phase = "AGGRESSIVE_ENTRY"
	PhaseSelectiveEntry  Phase = "SELECTIVE_ENTRY"
	PhaseHedgeOnly       Phase = "HEDGE_ONLY"
	PhaseFrozen          Phase = "FROZEN"
)

// PhaseAt maps the offset into the window to a phase. The freeze band
// is measured from the window end and wins over everything else.
func PhaseAt(now time.Time, w market.Window, cfg config.StrategyConfig) Phase {
	if w.Remaining(now) <= cfg.FreezeBeforeEnd {
		return PhaseFrozen
	}
	elapsed := w.Elapsed(now)
	if elapsed < cfg.AggressiveCutoff {
		return PhaseAggressiveEntry
	}
	if elapsed < cfg.EntryCutoff {
		return PhaseSelectiveEntry
	}
	return PhaseHedgeOnly
}

// AllowsOpening reports whether new exposure may be opened from idle.
func (p Phase) AllowsOpening() bool {
	return p == PhaseAggressiveEntry || p == PhaseSelectiveEntry
}

// AllowsHedging reports whether imbalance-reducing orders may be placed.
func (p Phase) AllowsHedging() bool {
	return p != PhaseFrozen
}
