package engine

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/exec"
	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
	"updown-hedge-bot/internal/metrics"
	"updown-hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

const flatEpsilon = 1e-9

// Orders places, cancels and inspects exchange orders.
type Orders interface {
	PlaceOrder(ctx context.Context, req rest.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (rest.OrderStatus, error)
}

type workingOrder struct {
	orderID  string
	outcome  ledger.Outcome
	price    float64
	size     float64
	target   float64
	placedAt time.Time
	legStart time.Time
}

// Runner drives one market through the buy-both-sides cycle. There is
// never more than one working order per market, so each tick looks at
// the fresh snapshot and either places, reprices, or abandons that
// order.
type Runner struct {
	key     string
	entry   *market.Entry
	cfg     config.StrategyConfig
	risk    config.RiskConfig
	orders  Orders
	machine *strategy.StateMachine
	metrics *metrics.Metrics
	log     *zap.Logger

	mu    sync.Mutex
	order *workingOrder
	pairs int
}

func NewRunner(entry *market.Entry, cfg config.StrategyConfig, risk config.RiskConfig, orders Orders, m *metrics.Metrics, log *zap.Logger) *Runner {
	return &Runner{
		key:     entry.Key(),
		entry:   entry,
		cfg:     cfg,
		risk:    risk,
		orders:  orders,
		machine: strategy.NewStateMachine(),
		metrics: m,
		log:     log.With(zap.String("market", entry.Key())),
	}
}

func (r *Runner) State() strategy.State {
	return r.machine.Current()
}

func (r *Runner) OpenOrderID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order == nil {
		return ""
	}
	return r.order.orderID
}

func (r *Runner) Owns(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order != nil && r.order.orderID == orderID
}

// Pairs is the number of two-sided pairs completed in this window.
func (r *Runner) Pairs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairs
}

// Close cancels any working order before the runner is retired.
func (r *Runner) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelWorking(ctx, "runner retired")
}

// Tick advances the market one decision step.
func (r *Runner) Tick(ctx context.Context, snap strategy.MarketSnapshot, agg strategy.Aggregate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	phase := strategy.PhaseAt(snap.Now, snap.Window, r.cfg)
	imbalance := snap.Position.Imbalance()

	if phase == strategy.PhaseFrozen {
		r.cancelWorking(ctx, "window frozen")
		switch r.machine.Current() {
		case strategy.StateExiting:
			r.machine.Apply(strategy.EventDone)
		case strategy.StateBiddingUp, strategy.StateBiddingDown:
			r.machine.Apply(strategy.EventAbandon)
		}
		return
	}

	if r.shouldExit(snap, imbalance) {
		r.cancelWorking(ctx, "exit window reached")
		r.machine.Apply(strategy.EventExit)
	}

	exp := strategy.Assess(snap.Position, r.risk, r.cfg.RiskUnit)

	switch r.machine.Current() {
	case strategy.StateExiting:
		r.tickExit(ctx, snap)
	case strategy.StateIdle:
		r.tickIdle(ctx, snap, phase, exp, agg, imbalance)
	case strategy.StateBiddingUp:
		r.tickBidding(ctx, snap, ledger.OutcomeUp, phase, exp, agg)
	case strategy.StateBiddingDown:
		r.tickBidding(ctx, snap, ledger.OutcomeDown, phase, exp, agg)
	}
}

// shouldExit decides whether to preempt the cycle and flatten: too
// little time left to hedge passively and too much imbalance to carry
// into resolution.
func (r *Runner) shouldExit(snap strategy.MarketSnapshot, imbalance float64) bool {
	if r.machine.Current() == strategy.StateExiting {
		return false
	}
	if math.Abs(imbalance) <= r.cfg.ExitImbalanceThreshold {
		return false
	}
	return snap.Window.Remaining(snap.Now) <= r.cfg.FreezeBeforeEnd+r.cfg.RepriceTimeout
}

func (r *Runner) tickIdle(ctx context.Context, snap strategy.MarketSnapshot, phase strategy.Phase, exp strategy.Exposure, agg strategy.Aggregate, imbalance float64) {
	if math.Abs(imbalance) > flatEpsilon {
		if !phase.AllowsHedging() {
			return
		}
		r.startLeg(ctx, snap, lightSide(imbalance), exp, agg, true)
		return
	}
	if !phase.AllowsOpening() {
		return
	}
	r.startLeg(ctx, snap, r.entrySide(snap), exp, agg, false)
}

func (r *Runner) tickBidding(ctx context.Context, snap strategy.MarketSnapshot, outcome ledger.Outcome, phase strategy.Phase, exp strategy.Exposure, agg strategy.Aggregate) {
	if r.order == nil {
		r.resumeLeg(ctx, snap, outcome, phase, exp, agg)
		return
	}
	held := snap.Position.Get(outcome).Shares
	if held+flatEpsilon >= r.order.target {
		r.order = nil
		r.legFilled(ctx, snap, agg)
		return
	}
	stale := snap.Now.Sub(r.order.placedAt) >= r.cfg.RepriceTimeout
	expired := snap.Now.Sub(r.order.legStart) >= r.cfg.AbandonTimeout
	if !stale && !expired {
		return
	}
	if r.workingFilled(ctx) {
		// already matched, the ledger just has not caught up
		r.order.placedAt = snap.Now
		r.order.legStart = snap.Now
		return
	}
	if expired {
		r.cancelWorking(ctx, "abandon timeout")
		r.machine.Apply(strategy.EventAbandon)
		return
	}
	intent, err := r.legIntent(snap, outcome, exp)
	if err != nil {
		r.log.Debug("reprice intent unavailable", zap.Error(err))
		r.cancelWorking(ctx, "reprice timeout")
		return
	}
	if intent.Price <= r.order.price+flatEpsilon {
		bumped, ok := r.bumpPrice(snap, outcome, r.order.price)
		if !ok {
			r.order.placedAt = snap.Now
			return
		}
		intent.Price = bumped
	}
	legStart := r.order.legStart
	r.cancelWorking(ctx, "reprice timeout")
	r.place(ctx, intent, snap.Now, legStart, snap.Position)
}

// workingFilled asks the exchange whether the working order already
// matched in full. A filled order must not be cancelled and re-placed
// while the ledger catches up, or two lots end up resting at once.
func (r *Runner) workingFilled(ctx context.Context) bool {
	status, err := r.orders.OrderStatus(ctx, r.order.orderID)
	if err != nil {
		return false
	}
	matched, err := strconv.ParseFloat(status.SizeMatched, 64)
	if err != nil {
		return false
	}
	return matched+flatEpsilon >= r.order.size
}

// bumpPrice moves a stale bid one tick up, still honoring the price
// band and the combined-price cap. ok=false means the resting price is
// already the best we may quote, so the order should be left alone.
func (r *Runner) bumpPrice(snap strategy.MarketSnapshot, outcome ledger.Outcome, prev float64) (float64, bool) {
	price := prev + snap.TickSize
	if price > r.cfg.MaxPrice+flatEpsilon {
		return 0, false
	}
	if r.isHedgeLeg(snap, outcome) {
		other := ledger.OutcomeUp
		if outcome == ledger.OutcomeUp {
			other = ledger.OutcomeDown
		}
		capped, err := strategy.CapHedgePrice(price, snap.Position.Get(other).AvgCost(), r.cfg)
		if err != nil || capped <= prev+flatEpsilon {
			return 0, false
		}
		price = capped
	}
	return price, true
}

func (r *Runner) tickExit(ctx context.Context, snap strategy.MarketSnapshot) {
	if math.Abs(snap.Position.Imbalance()) <= r.cfg.ExitImbalanceThreshold {
		r.cancelWorking(ctx, "exit complete")
		r.machine.Apply(strategy.EventDone)
		return
	}
	if r.order != nil {
		if snap.Now.Sub(r.order.placedAt) < r.cfg.RepriceTimeout {
			return
		}
		if r.workingFilled(ctx) {
			r.order.placedAt = snap.Now
			return
		}
		r.cancelWorking(ctx, "exit reprice")
	}
	intent, err := strategy.ExitIntent(snap, r.cfg, r.cfg.ExitImbalanceThreshold)
	if err != nil {
		r.log.Warn("exit intent unavailable", zap.Error(err))
		return
	}
	r.place(ctx, intent, snap.Now, snap.Now, snap.Position)
}

// legFilled handles the working order reaching its target. A balanced
// book closes the pair; anything else swings the bid to the light side.
func (r *Runner) legFilled(ctx context.Context, snap strategy.MarketSnapshot, agg strategy.Aggregate) {
	imbalance := snap.Position.Imbalance()
	if math.Abs(imbalance) <= flatEpsilon && snap.Position.Hedged() > 0 {
		r.pairs++
		r.metrics.PairsCompleted.Inc()
		r.machine.Apply(strategy.EventPairDone)
		r.log.Info("pair completed",
			zap.Float64("hedged", snap.Position.Hedged()),
			zap.Float64("total_cost", snap.Position.TotalCost()))
		return
	}
	light := lightSide(imbalance)
	if light == ledger.OutcomeUp {
		r.machine.Apply(strategy.EventBidUp)
	} else {
		r.machine.Apply(strategy.EventBidDown)
	}
	exp := strategy.Assess(snap.Position, r.risk, r.cfg.RiskUnit)
	if err := strategy.CheckOpen(exp, agg, light, r.risk); err != nil {
		r.metrics.ActionsBlocked.Inc()
		r.log.Warn("hedge blocked", zap.Error(err))
		return
	}
	intent, err := strategy.HedgeIntent(snap, light, r.cfg, r.risk, exp)
	if err != nil {
		r.log.Debug("hedge intent unavailable", zap.Error(err))
		return
	}
	r.place(ctx, intent, snap.Now, snap.Now, snap.Position)
}

// resumeLeg re-places the leg the state says we should be working but
// have no order for, after a restart or a failed reprice.
func (r *Runner) resumeLeg(ctx context.Context, snap strategy.MarketSnapshot, outcome ledger.Outcome, phase strategy.Phase, exp strategy.Exposure, agg strategy.Aggregate) {
	hedge := r.isHedgeLeg(snap, outcome)
	if !hedge && !phase.AllowsOpening() {
		r.machine.Apply(strategy.EventAbandon)
		return
	}
	if err := strategy.CheckOpen(exp, agg, outcome, r.risk); err != nil {
		r.metrics.ActionsBlocked.Inc()
		return
	}
	intent, err := r.legIntent(snap, outcome, exp)
	if err != nil {
		r.log.Debug("resume intent unavailable", zap.Error(err))
		return
	}
	r.place(ctx, intent, snap.Now, snap.Now, snap.Position)
}

func (r *Runner) startLeg(ctx context.Context, snap strategy.MarketSnapshot, outcome ledger.Outcome, exp strategy.Exposure, agg strategy.Aggregate, hedge bool) {
	if err := strategy.CheckOpen(exp, agg, outcome, r.risk); err != nil {
		r.metrics.ActionsBlocked.Inc()
		r.log.Debug("leg blocked", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}
	var intent strategy.OrderIntent
	var err error
	if hedge {
		intent, err = strategy.HedgeIntent(snap, outcome, r.cfg, r.risk, exp)
	} else {
		intent, err = strategy.EntryIntent(snap, outcome, r.cfg, r.risk, exp)
	}
	if err != nil {
		r.log.Debug("no leg intent", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}
	if !r.place(ctx, intent, snap.Now, snap.Now, snap.Position) {
		return
	}
	if outcome == ledger.OutcomeUp {
		r.machine.Apply(strategy.EventBidUp)
	} else {
		r.machine.Apply(strategy.EventBidDown)
	}
}

func (r *Runner) legIntent(snap strategy.MarketSnapshot, outcome ledger.Outcome, exp strategy.Exposure) (strategy.OrderIntent, error) {
	if r.isHedgeLeg(snap, outcome) {
		return strategy.HedgeIntent(snap, outcome, r.cfg, r.risk, exp)
	}
	return strategy.EntryIntent(snap, outcome, r.cfg, r.risk, exp)
}

func (r *Runner) isHedgeLeg(snap strategy.MarketSnapshot, outcome ledger.Outcome) bool {
	other := ledger.OutcomeUp
	if outcome == ledger.OutcomeUp {
		other = ledger.OutcomeDown
	}
	return snap.Position.Get(other).Shares > snap.Position.Get(outcome).Shares+flatEpsilon
}

func (r *Runner) place(ctx context.Context, intent strategy.OrderIntent, now, legStart time.Time, pos ledger.MarketPosition) bool {
	req := rest.OrderRequest{
		ClientID: exec.NewClientID(),
		TokenID:  r.tokenFor(intent.Outcome),
		Side:     rest.Side(intent.Side),
		Price:    intent.Price,
		Size:     intent.Size,
		NegRisk:  r.entry.Market.NegRisk,
	}
	orderID, err := r.orders.PlaceOrder(ctx, req)
	if err != nil {
		r.metrics.OrdersFailed.Inc()
		r.log.Warn("order placement failed",
			zap.String("outcome", string(intent.Outcome)),
			zap.Float64("price", intent.Price),
			zap.Float64("size", intent.Size),
			zap.Error(err))
		return false
	}
	r.metrics.OrdersPlaced.Inc()
	r.order = &workingOrder{
		orderID:  orderID,
		outcome:  intent.Outcome,
		price:    intent.Price,
		size:     intent.Size,
		target:   pos.Get(intent.Outcome).Shares + intent.Size,
		placedAt: now,
		legStart: legStart,
	}
	r.log.Info("order placed",
		zap.String("order_id", orderID),
		zap.String("outcome", string(intent.Outcome)),
		zap.String("side", string(intent.Side)),
		zap.Float64("price", intent.Price),
		zap.Float64("size", intent.Size))
	return true
}

func (r *Runner) cancelWorking(ctx context.Context, reason string) {
	if r.order == nil {
		return
	}
	orderID := r.order.orderID
	r.order = nil
	if err := r.orders.CancelOrder(ctx, orderID); err != nil {
		r.log.Warn("cancel failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	r.metrics.OrdersCancelled.Inc()
	r.log.Info("order cancelled", zap.String("order_id", orderID), zap.String("reason", reason))
}

// HandleOrderUpdate reacts to user-channel lifecycle events for the
// working order. A cancellation we did not issue drops the leg back to
// idle so the next tick can start over.
func (r *Runner) HandleOrderUpdate(update market.OrderUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order == nil || update.OrderID != r.order.orderID {
		return
	}
	kind := strings.ToUpper(update.Kind)
	status := strings.ToUpper(update.Status)
	if kind != "CANCELLATION" && status != "CANCELED" && status != "CANCELLED" {
		return
	}
	r.order = nil
	r.log.Info("working order cancelled externally", zap.String("order_id", update.OrderID))
	switch r.machine.Current() {
	case strategy.StateBiddingUp, strategy.StateBiddingDown:
		r.machine.Apply(strategy.EventAbandon)
	}
}

// entrySide picks the first leg of a fresh pair: the cheaper side, so
// less capital rides on the hedge completing.
func (r *Runner) entrySide(snap strategy.MarketSnapshot) ledger.Outcome {
	up, down := snap.UpQuote, snap.DownQuote
	if up.BestBid <= 0 && down.BestBid > 0 {
		return ledger.OutcomeDown
	}
	if down.BestBid <= 0 {
		return ledger.OutcomeUp
	}
	if down.BestBid < up.BestBid {
		return ledger.OutcomeDown
	}
	return ledger.OutcomeUp
}

func (r *Runner) tokenFor(outcome ledger.Outcome) string {
	if outcome == ledger.OutcomeDown {
		return r.entry.Market.DownTokenID
	}
	return r.entry.Market.UpTokenID
}

func lightSide(imbalance float64) ledger.Outcome {
	if imbalance > 0 {
		return ledger.OutcomeDown
	}
	return ledger.OutcomeUp
}
