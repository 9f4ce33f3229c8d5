package strategy

import (
	"errors"
	"fmt"
	"math"

	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
)

var ErrCombinedCap = errors.New("combined price would exceed the cap")

// BidPrice prices a passive entry on one outcome: one tick above the
// best bid, shaved below the ask when the ask has real size, shifted by
// the soft-limit adjustment, clamped to the configured band. Returns 0
// when the book gives nothing to lean on.
func BidPrice(q market.Quote, tick float64, s config.StrategyConfig, level RiskLevel, heavySide bool) float64 {
	if q.BestBid <= 0 {
		return 0
	}
	if tick <= 0 {
		tick = 0.01
	}
	price := q.BestBid + tick
	if q.BestAsk > 0 && q.AskSize >= s.MinAskSize && price > q.BestAsk-s.MinEdge {
		price = q.BestAsk - s.MinEdge
	}
	if level == RiskSoft {
		if heavySide {
			price -= s.SoftAdjust
		} else {
			price += s.SoftAdjust
		}
	}
	if price < s.MinPrice {
		return 0
	}
	if price > s.MaxPrice {
		price = s.MaxPrice
	}
	// Round down so the shave below the ask is never undone.
	return roundDownToTick(price, tick)
}

// HedgeCap is the highest price the second leg may pay while the pair
// still settles profitably: maxCombined minus what the other side cost.
func HedgeCap(maxCombined, otherAvgCost float64) float64 {
	return maxCombined - otherAvgCost
}

// CapHedgePrice lowers price to the hedge cap. An unpayable cap (below
// the price floor) means the pair cannot be completed profitably at all.
func CapHedgePrice(price, otherAvgCost float64, s config.StrategyConfig) (float64, error) {
	cap := HedgeCap(s.MaxCombinedPrice, otherAvgCost)
	if cap < s.MinPrice {
		return 0, fmt.Errorf("hedge cap %.4f below floor %.4f: %w", cap, s.MinPrice, ErrCombinedCap)
	}
	if price > cap {
		price = cap
	}
	return price, nil
}

// OrderSize is the lot to quote: the base lot, shrunk toward zero as the
// market eats through its soft-limit headroom, and never past the
// per-market position ceiling.
func OrderSize(s config.StrategyConfig, r config.RiskConfig, exp Exposure, pos ledger.MarketPosition) float64 {
	size := s.LotSize
	if exp.Level == RiskSoft {
		headroom := (r.HardLimit - exp.Unhedged) / (r.HardLimit - r.SoftLimit)
		if headroom < 0 {
			headroom = 0
		}
		size = math.Max(1, math.Floor(size*headroom))
	}
	if s.MaxPosition > 0 {
		held := pos.Up.Shares + pos.Down.Shares
		if held+size > s.MaxPosition {
			size = s.MaxPosition - held
		}
	}
	if size < 1 {
		return 0
	}
	return size
}

// EntryIntent builds the opening order for one outcome, or reports why
// none should be placed.
func EntryIntent(snap MarketSnapshot, outcome ledger.Outcome, s config.StrategyConfig, r config.RiskConfig, exp Exposure) (OrderIntent, error) {
	q := snap.QuoteFor(outcome)
	if q.Stale(snap.Now, s.QuoteMaxAge) {
		return OrderIntent{}, ErrStaleQuote
	}
	price := BidPrice(q, snap.TickSize, s, exp.Level, outcome == exp.Heavy)
	if price <= 0 {
		return OrderIntent{}, errors.New("no workable entry price")
	}
	size := OrderSize(s, r, exp, snap.Position)
	if size <= 0 {
		return OrderIntent{}, errors.New("position ceiling reached")
	}
	return OrderIntent{Outcome: outcome, Side: ledger.SideBuy, Price: price, Size: size}, nil
}

// HedgeIntent builds the second leg after the first fill. The price is
// capped so the completed pair stays under the combined-price cap.
func HedgeIntent(snap MarketSnapshot, outcome ledger.Outcome, s config.StrategyConfig, r config.RiskConfig, exp Exposure) (OrderIntent, error) {
	q := snap.QuoteFor(outcome)
	if q.Stale(snap.Now, s.QuoteMaxAge) {
		return OrderIntent{}, ErrStaleQuote
	}
	other := ledger.OutcomeUp
	if outcome == ledger.OutcomeUp {
		other = ledger.OutcomeDown
	}
	otherAvg := snap.Position.Get(other).AvgCost()

	price := BidPrice(q, snap.TickSize, s, exp.Level, outcome == exp.Heavy)
	if price <= 0 {
		return OrderIntent{}, errors.New("no workable hedge price")
	}
	price, err := CapHedgePrice(price, otherAvg, s)
	if err != nil {
		return OrderIntent{}, err
	}
	price = roundDownToTick(price, snap.TickSize)
	if price < s.MinPrice {
		return OrderIntent{}, fmt.Errorf("hedge price %.4f below floor: %w", price, ErrCombinedCap)
	}

	size := snap.Position.Get(other).Shares - snap.Position.Get(outcome).Shares
	if size <= 0 {
		return OrderIntent{}, errors.New("nothing to hedge")
	}
	return OrderIntent{Outcome: outcome, Side: ledger.SideBuy, Price: price, Size: size}, nil
}

// ExitIntent crosses the book on the light side to flatten a leftover
// imbalance before resolution. Still capped: an exit that locks in a
// guaranteed overpay is refused.
func ExitIntent(snap MarketSnapshot, s config.StrategyConfig, threshold float64) (OrderIntent, error) {
	imbalance := snap.Position.Imbalance()
	if math.Abs(imbalance) <= threshold {
		return OrderIntent{}, errors.New("imbalance within threshold")
	}
	light := ledger.OutcomeDown
	other := ledger.OutcomeUp
	if imbalance < 0 {
		light = ledger.OutcomeUp
		other = ledger.OutcomeDown
	}
	q := snap.QuoteFor(light)
	if q.Stale(snap.Now, s.QuoteMaxAge) || q.BestAsk <= 0 {
		return OrderIntent{}, ErrStaleQuote
	}
	price, err := CapHedgePrice(q.BestAsk, snap.Position.Get(other).AvgCost(), s)
	if err != nil {
		return OrderIntent{}, err
	}
	return OrderIntent{Outcome: light, Side: ledger.SideBuy, Price: price, Size: math.Abs(imbalance)}, nil
}

func roundDownToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Floor(price/tick+1e-9) * tick
}
