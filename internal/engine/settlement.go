package engine

import (
	"context"
	"fmt"
	"time"

	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
	"updown-hedge-bot/internal/state"
	"updown-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

const (
	settleGrace    = 10 * time.Second
	settleDeadline = 2 * time.Minute
)

func (e *Engine) settleExpired(ctx context.Context, now time.Time) {
	for _, entry := range e.manager.Expired(now, settleGrace) {
		e.settle(ctx, entry, now)
	}
}

// settle resolves one expired window. The winner is read off the final
// book: the side still bid near 1.00 is the one that resolved true. An
// undecided book is retried until the deadline, then the higher bid
// wins the call.
func (e *Engine) settle(ctx context.Context, entry *market.Entry, now time.Time) {
	key := entry.Key()
	upQ, _ := e.board.Quote(entry.Market.UpTokenID)
	downQ, _ := e.board.Quote(entry.Market.DownTokenID)

	winner, decided := winnerFromQuotes(upQ, downQ, e.cfg.Strategy.WinnerBidThreshold)
	estimated := !decided
	if !decided {
		if now.Sub(entry.Window.End()) < settleDeadline {
			return
		}
		winner = fallbackWinner(upQ, downQ)
		e.log.Warn("settlement undecided past deadline, using higher bid",
			zap.String("market", key),
			zap.String("winner", string(winner)),
			zap.Float64("up_bid", upQ.BestBid),
			zap.Float64("down_bid", downQ.BestBid))
	}

	pairs := e.retireRunner(ctx, key)
	pos := e.positions.Release(key)
	if err := ledger.Forget(ctx, e.store, key); err != nil {
		e.log.Warn("ledger forget failed", zap.String("market", key), zap.Error(err))
	}
	e.board.Drop(entry.Market.UpTokenID, entry.Market.DownTokenID)
	e.manager.Evict(key)
	e.mu.Lock()
	delete(e.subscribed, key)
	delete(e.pairsSeen, key)
	delete(e.hardEngaged, key)
	for id, owner := range e.seenTrades {
		if owner == key {
			delete(e.seenTrades, id)
		}
	}
	e.mu.Unlock()

	if pos.TotalCost() <= 0 && pos.Up.Shares <= 0 && pos.Down.Shares <= 0 {
		e.log.Info("window retired flat", zap.String("market", key))
		return
	}

	pnl := pos.Get(winner).Shares - pos.TotalCost()

	e.mu.Lock()
	if pnl >= 0 {
		e.stats.Wins++
	} else {
		e.stats.Losses++
	}
	e.stats.PairsCompleted += pairs
	e.stats.RealizedPnL += pnl
	e.stats.UpdatedAtMS = now.UnixMilli()
	stats := e.stats
	e.mu.Unlock()

	if pnl >= 0 {
		e.metrics.SettlementWins.Inc()
	} else {
		e.metrics.SettlementLosses.Inc()
	}
	if err := state.SaveSessionStats(ctx, e.store, stats); err != nil {
		e.log.Warn("session stats save failed", zap.Error(err))
	}
	e.tsdb.EnqueueSettlement(timescale.Settlement{
		Time:      now,
		Market:    key,
		Winner:    string(winner),
		PnL:       pnl,
		UpCost:    pos.Up.Cost,
		DownCost:  pos.Down.Cost,
		Estimated: estimated,
	})
	e.log.Info("market settled",
		zap.String("market", key),
		zap.String("winner", string(winner)),
		zap.Float64("pnl", pnl),
		zap.Float64("up_shares", pos.Up.Shares),
		zap.Float64("down_shares", pos.Down.Shares),
		zap.Int("pairs", pairs),
		zap.Bool("estimated", estimated))
	msg := fmt.Sprintf("%s settled %s, pnl %.4f (%d pairs)", key, winner, pnl, pairs)
	if estimated {
		msg += " [winner estimated from higher bid]"
	}
	e.sendAlert(ctx, msg)
}

func (e *Engine) retireRunner(ctx context.Context, key string) int {
	e.mu.Lock()
	runner, ok := e.runners[key]
	if ok {
		delete(e.runners, key)
	}
	e.metrics.TrackedMarkets.Set(float64(len(e.runners)))
	e.mu.Unlock()
	if !ok {
		return 0
	}
	runner.Close(ctx)
	return runner.Pairs()
}

func winnerFromQuotes(up, down market.Quote, threshold float64) (ledger.Outcome, bool) {
	if up.BestBid >= threshold && down.BestBid < threshold {
		return ledger.OutcomeUp, true
	}
	if down.BestBid >= threshold && up.BestBid < threshold {
		return ledger.OutcomeDown, true
	}
	return ledger.OutcomeUp, false
}

func fallbackWinner(up, down market.Quote) ledger.Outcome {
	if down.BestBid > up.BestBid {
		return ledger.OutcomeDown
	}
	return ledger.OutcomeUp
}
