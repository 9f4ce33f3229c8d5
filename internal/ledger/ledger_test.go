package ledger

import (
	"math"
	"testing"
	"time"
)

func TestApplyFillBuyAccumulates(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 5, Price: 0.45})
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 5, Price: 0.47})

	mp, ok := l.Position("m1")
	if !ok {
		t.Fatalf("expected position")
	}
	if mp.Up.Shares != 10 {
		t.Fatalf("expected 10 shares, got %v", mp.Up.Shares)
	}
	if math.Abs(mp.Up.Cost-4.6) > 1e-9 {
		t.Fatalf("expected cost 4.6, got %v", mp.Up.Cost)
	}
	if math.Abs(mp.Up.AvgCost()-0.46) > 1e-9 {
		t.Fatalf("expected avg 0.46, got %v", mp.Up.AvgCost())
	}
}

func TestApplyFillSellFloorsAtZero(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeDown, Side: SideBuy, Size: 5, Price: 0.40})
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeDown, Side: SideSell, Size: 8, Price: 0.50})

	mp, _ := l.Position("m1")
	if mp.Down.Shares != 0 {
		t.Fatalf("shares must floor at zero, got %v", mp.Down.Shares)
	}
	if mp.Down.Cost != 0 {
		t.Fatalf("cost of an empty position must be zero, got %v", mp.Down.Cost)
	}
}

func TestApplyFillSellKeepsRemainderAvgCost(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 10, Price: 0.40})
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideSell, Size: 4, Price: 0.60})

	mp, _ := l.Position("m1")
	if mp.Up.Shares != 6 {
		t.Fatalf("expected 6 shares, got %v", mp.Up.Shares)
	}
	if math.Abs(mp.Up.AvgCost()-0.40) > 1e-9 {
		t.Fatalf("sell must not move the remainder's avg cost, got %v", mp.Up.AvgCost())
	}
}

func TestReconcileRaisesToExternal(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 7, Price: 0.45})

	fills := l.Reconcile(map[string]map[Outcome]External{
		"m1": {OutcomeUp: {Shares: 10, AvgPrice: 0.46}},
	}, time.Unix(1735690000, 0))

	mp, _ := l.Position("m1")
	if mp.Up.Shares != 10 {
		t.Fatalf("expected shares raised to 10, got %v", mp.Up.Shares)
	}
	if len(fills) != 1 || fills[0].Size != 3 {
		t.Fatalf("expected one synthetic fill of 3, got %#v", fills)
	}
}

func TestReconcileNeverLowers(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 10, Price: 0.45})

	fills := l.Reconcile(map[string]map[Outcome]External{
		"m1": {OutcomeUp: {Shares: 7, AvgPrice: 0.45}},
	}, time.Now())

	mp, _ := l.Position("m1")
	if mp.Up.Shares != 10 {
		t.Fatalf("stale external data must not lower shares, got %v", mp.Up.Shares)
	}
	if math.Abs(mp.Up.Cost-4.5) > 1e-9 {
		t.Fatalf("cost must be untouched, got %v", mp.Up.Cost)
	}
	if len(fills) != 0 {
		t.Fatalf("no synthetic fills expected, got %#v", fills)
	}
}

func TestReconcileNewMarket(t *testing.T) {
	l := New()
	fills := l.Reconcile(map[string]map[Outcome]External{
		"m2": {OutcomeDown: {Shares: 5, AvgPrice: 0.30}},
	}, time.Now())

	mp, ok := l.Position("m2")
	if !ok {
		t.Fatalf("expected position created from snapshot")
	}
	if mp.Down.Shares != 5 || math.Abs(mp.Down.Cost-1.5) > 1e-9 {
		t.Fatalf("unexpected reconciled position: %#v", mp.Down)
	}
	if len(fills) != 1 {
		t.Fatalf("expected one synthetic fill, got %d", len(fills))
	}
}

func TestImbalanceAndHedged(t *testing.T) {
	mp := MarketPosition{
		Up:   Position{Shares: 8, Cost: 3.6},
		Down: Position{Shares: 5, Cost: 2.0},
	}
	if mp.Imbalance() != 3 {
		t.Fatalf("expected imbalance 3, got %v", mp.Imbalance())
	}
	if mp.Hedged() != 5 {
		t.Fatalf("expected hedged 5, got %v", mp.Hedged())
	}
	if mp.HeavySide() != OutcomeUp {
		t.Fatalf("expected up heavy side")
	}
}

func TestRelease(t *testing.T) {
	l := New()
	l.ApplyFill(Fill{Market: "m1", Outcome: OutcomeUp, Side: SideBuy, Size: 5, Price: 0.45})
	mp := l.Release("m1")
	if mp.Up.Shares != 5 {
		t.Fatalf("release must return the final position, got %#v", mp)
	}
	if _, ok := l.Position("m1"); ok {
		t.Fatalf("released market must be gone")
	}
	if empty := l.Release("m1"); empty.Up.Shares != 0 {
		t.Fatalf("double release must return empty position")
	}
}
