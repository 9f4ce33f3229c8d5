package ledger

import (
	"sync"
	"time"
)

type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is the held size and total cost for one outcome.
type Position struct {
	Shares float64 `msgpack:"shares"`
	Cost   float64 `msgpack:"cost"`
}

func (p Position) AvgCost() float64 {
	if p.Shares <= 0 {
		return 0
	}
	return p.Cost / p.Shares
}

// MarketPosition holds both outcome legs of one market.
type MarketPosition struct {
	Up   Position `msgpack:"up"`
	Down Position `msgpack:"down"`
}

func (m MarketPosition) Get(outcome Outcome) Position {
	if outcome == OutcomeDown {
		return m.Down
	}
	return m.Up
}

// Imbalance is up shares minus down shares.
func (m MarketPosition) Imbalance() float64 {
	return m.Up.Shares - m.Down.Shares
}

// Hedged is the share count covered on both sides.
func (m MarketPosition) Hedged() float64 {
	if m.Up.Shares < m.Down.Shares {
		return m.Up.Shares
	}
	return m.Down.Shares
}

// HeavySide is the outcome with more shares; up wins ties.
func (m MarketPosition) HeavySide() Outcome {
	if m.Down.Shares > m.Up.Shares {
		return OutcomeDown
	}
	return OutcomeUp
}

func (m MarketPosition) TotalCost() float64 {
	return m.Up.Cost + m.Down.Cost
}

// Fill is one position change, either observed or synthesized during
// reconciliation.
type Fill struct {
	Market  string
	Outcome Outcome
	Side    Side
	Size    float64
	Price   float64
	Time    time.Time
}

// External is one outcome leg as reported by the exchange.
type External struct {
	Shares   float64
	AvgPrice float64
}

// Ledger tracks per-market positions. All mutation goes through
// ApplyFill and Reconcile under one lock, so concurrent runner and
// reconcile goroutines stay consistent.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*MarketPosition
}

func New() *Ledger {
	return &Ledger{positions: make(map[string]*MarketPosition)}
}

// ApplyFill records a fill. Buys add shares and cost. Sells floor the
// share count at zero and keep the remainder's average cost.
func (l *Ledger) ApplyFill(fill Fill) {
	if fill.Size <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	mp := l.positions[fill.Market]
	if mp == nil {
		mp = &MarketPosition{}
		l.positions[fill.Market] = mp
	}
	pos := mp.Up
	if fill.Outcome == OutcomeDown {
		pos = mp.Down
	}

	switch fill.Side {
	case SideSell:
		avg := pos.AvgCost()
		pos.Shares -= fill.Size
		if pos.Shares <= 0 {
			pos.Shares = 0
			pos.Cost = 0
		} else {
			pos.Cost = avg * pos.Shares
		}
	default:
		pos.Shares += fill.Size
		pos.Cost += fill.Size * fill.Price
	}

	if fill.Outcome == OutcomeDown {
		mp.Down = pos
	} else {
		mp.Up = pos
	}
}

// Reconcile merges an exchange snapshot. Shares only ever go up: the
// merged count is max(local, external), and cost is raised to the
// external basis when the exchange reports more than we saw. Increases
// come back as synthetic fills so callers can account for them.
func (l *Ledger) Reconcile(snapshot map[string]map[Outcome]External, now time.Time) []Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var synthetic []Fill
	for market, outcomes := range snapshot {
		mp := l.positions[market]
		if mp == nil {
			mp = &MarketPosition{}
			l.positions[market] = mp
		}
		for outcome, ext := range outcomes {
			pos := mp.Up
			if outcome == OutcomeDown {
				pos = mp.Down
			}
			if ext.Shares > pos.Shares {
				delta := ext.Shares - pos.Shares
				pos.Shares = ext.Shares
				extCost := ext.Shares * ext.AvgPrice
				if extCost > pos.Cost {
					pos.Cost = extCost
				}
				synthetic = append(synthetic, Fill{
					Market:  market,
					Outcome: outcome,
					Side:    SideBuy,
					Size:    delta,
					Price:   ext.AvgPrice,
					Time:    now,
				})
			}
			if outcome == OutcomeDown {
				mp.Down = pos
			} else {
				mp.Up = pos
			}
		}
	}
	return synthetic
}

func (l *Ledger) Position(market string) (MarketPosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	mp, ok := l.positions[market]
	if !ok {
		return MarketPosition{}, false
	}
	return *mp, true
}

// Release removes a settled market and returns its final position.
func (l *Ledger) Release(market string) MarketPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	mp, ok := l.positions[market]
	if !ok {
		return MarketPosition{}
	}
	delete(l.positions, market)
	return *mp
}

func (l *Ledger) Markets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.positions))
	for market := range l.positions {
		out = append(out, market)
	}
	return out
}
