package engine

import (
	"context"
	"sort"
	"time"

	"updown-hedge-bot/internal/notify"
	"updown-hedge-bot/internal/strategy"
	"updown-hedge-bot/internal/timescale"
)

func (e *Engine) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Status.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.publishStatus(time.Now().UTC())
		}
	}
}

func (e *Engine) publishStatus(now time.Time) {
	status := e.buildStatus(now)
	if e.console != nil {
		e.console.Render(status)
	}
	e.tsdb.EnqueueExposure(timescale.ExposureSnapshot{
		Time:          now,
		Unhedged:      status.AggregateUnhedged,
		TotalExposure: status.TotalExposure,
		Markets:       len(status.Markets),
	})
}

func (e *Engine) buildStatus(now time.Time) notify.Status {
	agg := e.aggregate()
	runners := e.runnerList()
	e.mu.Lock()
	stats := e.stats
	e.mu.Unlock()

	rows := make([]notify.MarketStatus, 0, len(runners))
	pairs := stats.PairsCompleted
	for _, runner := range runners {
		entry := runner.entry
		pos, _ := e.positions.Position(entry.Key())
		exp := strategy.Assess(pos, e.cfg.Risk, e.cfg.Strategy.RiskUnit)
		phase := strategy.PhaseAt(now, entry.Window, e.cfg.Strategy)
		pairs += runner.Pairs()
		rows = append(rows, notify.MarketStatus{
			Slug:        entry.Key(),
			Phase:       string(phase),
			State:       string(runner.State()),
			UpShares:    pos.Up.Shares,
			UpAvgCost:   pos.Up.AvgCost(),
			DownShares:  pos.Down.Shares,
			DownAvgCost: pos.Down.AvgCost(),
			Unhedged:    exp.Unhedged,
			RiskLevel:   string(exp.Level),
			OpenOrder:   runner.OpenOrderID(),
			Remaining:   entry.Window.Remaining(now),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Slug < rows[j].Slug })

	return notify.Status{
		Time:              now,
		Markets:           rows,
		Wins:              stats.Wins,
		Losses:            stats.Losses,
		PairsCompleted:    pairs,
		RealizedPnL:       stats.RealizedPnL,
		AggregateUnhedged: agg.Unhedged,
		TotalExposure:     agg.TotalExposure,
	}
}
