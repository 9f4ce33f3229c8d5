package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/clob/ws"
	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
	"updown-hedge-bot/internal/metrics"
	"updown-hedge-bot/internal/notify"
	"updown-hedge-bot/internal/state"
	"updown-hedge-bot/internal/strategy"
	"updown-hedge-bot/internal/timescale"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const reconcileInterval = 30 * time.Second

// Exchange is the REST surface the engine needs.
type Exchange interface {
	market.Resolver
	GetBooks(ctx context.Context, tokenIDs []string) ([]rest.Book, error)
	GetPositions(ctx context.Context) ([]rest.Position, error)
}

// Feed is one websocket channel.
type Feed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, sub interface{}) error
	Run(ctx context.Context, handler func(json.RawMessage)) error
}

type Alerter interface {
	Send(ctx context.Context, message string) error
}

type Params struct {
	Config     *config.Config
	Creds      config.Credentials
	Log        *zap.Logger
	Exchange   Exchange
	Orders     Orders
	MarketFeed Feed
	UserFeed   Feed
	Store      state.Store
	Metrics    *metrics.Metrics
	Alerts     Alerter
	Timescale  *timescale.Writer
	Console    *notify.Console
}

// Engine discovers the rolling windows, keeps quotes fresh, and drives
// one runner per tracked market.
type Engine struct {
	cfg        *config.Config
	creds      config.Credentials
	log        *zap.Logger
	exchange   Exchange
	orders     Orders
	marketFeed Feed
	userFeed   Feed
	store      state.Store
	board      *market.Board
	manager    *market.Manager
	positions  *ledger.Ledger
	metrics    *metrics.Metrics
	alerts     Alerter
	tsdb       *timescale.Writer
	console    *notify.Console

	mu          sync.Mutex
	runners     map[string]*Runner
	stats       state.SessionStats
	seenTrades  map[string]string
	subscribed  map[string]bool
	pairsSeen   map[string]int
	hardEngaged map[string]bool
}

func New(p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Exchange == nil || p.Orders == nil {
		return nil, errors.New("exchange and orders clients are required")
	}
	if p.MarketFeed == nil || p.UserFeed == nil {
		return nil, errors.New("market and user feeds are required")
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := p.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:        p.Config,
		creds:      p.Creds,
		log:        log,
		exchange:   p.Exchange,
		orders:     p.Orders,
		marketFeed: p.MarketFeed,
		userFeed:   p.UserFeed,
		store:      p.Store,
		board:      market.NewBoard(),
		manager:    market.NewManager(p.Exchange, log),
		positions:  ledger.New(),
		metrics:    m,
		alerts:     p.Alerts,
		tsdb:       p.Timescale,
		console:    p.Console,
		runners:     make(map[string]*Runner),
		seenTrades:  make(map[string]string),
		subscribed:  make(map[string]bool),
		pairsSeen:   make(map[string]int),
		hardEngaged: make(map[string]bool),
	}, nil
}

func (e *Engine) Run(ctx context.Context) error {
	if restored, err := e.positions.Restore(ctx, e.store); err != nil {
		e.log.Warn("ledger restore failed", zap.Error(err))
	} else if restored > 0 {
		e.log.Info("restored positions", zap.Int("markets", restored))
	}
	if stats, ok, err := state.LoadSessionStats(ctx, e.store); err != nil {
		e.log.Warn("session stats load failed", zap.Error(err))
	} else if ok {
		e.mu.Lock()
		e.stats = stats
		e.mu.Unlock()
	}

	if err := e.marketFeed.Connect(ctx); err != nil {
		return err
	}
	if err := e.userFeed.Connect(ctx); err != nil {
		return err
	}
	auth := ws.UserAuth{APIKey: e.creds.APIKey, Secret: e.creds.APISecret, Passphrase: e.creds.APIPassphrase}
	if err := e.userFeed.Subscribe(ctx, ws.NewUserSubscription(nil, auth)); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.marketFeed.Run(ctx, e.handleMarketFrame) })
	g.Go(func() error { return e.userFeed.Run(ctx, e.handleUserFrame) })
	g.Go(func() error { return e.tickLoop(ctx) })
	g.Go(func() error { return e.reconcileLoop(ctx) })
	if e.cfg.Status.Enabled {
		g.Go(func() error { return e.statusLoop(ctx) })
	}
	return g.Wait()
}

func (e *Engine) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Strategy.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx, time.Now().UTC())
		}
	}
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	e.ensureWindows(ctx, now)
	e.refreshBooks(ctx, now)
	e.runTicks(ctx, now)
	if err := e.positions.Save(ctx, e.store); err != nil {
		e.log.Warn("ledger save failed", zap.Error(err))
	}
	e.settleExpired(ctx, now)
}

// ensureWindows resolves the current window for every asset, and the
// next one once the current window is close to freezing, so the handoff
// never waits on discovery.
func (e *Engine) ensureWindows(ctx context.Context, now time.Time) {
	current := market.CurrentWindow(now, e.cfg.Strategy.WindowLength)
	for _, asset := range e.cfg.Strategy.Assets {
		windows := []market.Window{current}
		if current.Remaining(now) <= 2*e.cfg.Strategy.FreezeBeforeEnd {
			windows = append(windows, current.Next())
		}
		for _, w := range windows {
			entry, err := e.manager.Ensure(ctx, asset, w)
			if err != nil {
				e.log.Warn("window resolve failed", zap.String("slug", w.Slug(asset)), zap.Error(err))
				continue
			}
			e.ensureRunner(entry)
			e.subscribeMarket(ctx, entry)
		}
	}
}

func (e *Engine) ensureRunner(entry *market.Entry) *Runner {
	e.mu.Lock()
	defer e.mu.Unlock()
	if runner, ok := e.runners[entry.Key()]; ok {
		return runner
	}
	runner := NewRunner(entry, e.cfg.Strategy, e.cfg.Risk, e.orders, e.metrics, e.log)
	e.runners[entry.Key()] = runner
	e.metrics.TrackedMarkets.Set(float64(len(e.runners)))
	return runner
}

func (e *Engine) subscribeMarket(ctx context.Context, entry *market.Entry) {
	e.mu.Lock()
	if e.subscribed[entry.Key()] {
		e.mu.Unlock()
		return
	}
	e.subscribed[entry.Key()] = true
	e.mu.Unlock()
	sub := ws.NewMarketSubscription([]string{entry.Market.UpTokenID, entry.Market.DownTokenID})
	if err := e.marketFeed.Subscribe(ctx, sub); err != nil {
		e.log.Warn("market subscribe failed", zap.String("market", entry.Key()), zap.Error(err))
		e.mu.Lock()
		delete(e.subscribed, entry.Key())
		e.mu.Unlock()
	}
}

// refreshBooks polls full snapshots for every tracked token; pushed
// price_change events fill the gaps between polls.
func (e *Engine) refreshBooks(ctx context.Context, now time.Time) {
	entries := e.manager.All()
	tokens := make([]string, 0, len(entries)*2)
	for _, entry := range entries {
		tokens = append(tokens, entry.Market.UpTokenID, entry.Market.DownTokenID)
	}
	if len(tokens) == 0 {
		return
	}
	books, err := e.exchange.GetBooks(ctx, tokens)
	if err != nil {
		e.log.Warn("book refresh failed", zap.Error(err))
		return
	}
	for _, book := range books {
		e.board.ApplyBook(book, now)
	}
}

func (e *Engine) runTicks(ctx context.Context, now time.Time) {
	agg := e.aggregate()
	e.metrics.AggregateUnhedged.Set(agg.Unhedged)
	e.metrics.TotalExposure.Set(agg.TotalExposure)

	for _, runner := range e.runnerList() {
		if now.Before(runner.entry.Window.Start) {
			continue
		}
		runner.Tick(ctx, e.snapshotFor(runner.entry, now), agg)
		e.observeRunner(ctx, runner)
	}
}

// observeRunner reports operator-visible transitions the tick caused: a
// completed pair, or the hard risk limit engaging on this market.
func (e *Engine) observeRunner(ctx context.Context, runner *Runner) {
	key := runner.key
	pos, _ := e.positions.Position(key)
	exp := strategy.Assess(pos, e.cfg.Risk, e.cfg.Strategy.RiskUnit)
	pairs := runner.Pairs()
	hard := exp.Level == strategy.RiskHard

	e.mu.Lock()
	prevPairs := e.pairsSeen[key]
	e.pairsSeen[key] = pairs
	wasHard := e.hardEngaged[key]
	e.hardEngaged[key] = hard
	e.mu.Unlock()

	if pairs > prevPairs {
		e.sendAlert(ctx, fmt.Sprintf("%s pair completed (%d this window)", key, pairs))
	}
	if hard && !wasHard {
		e.log.Warn("hard limit engaged", zap.String("market", key), zap.Float64("unhedged", exp.Unhedged))
		e.sendAlert(ctx, fmt.Sprintf("%s hard limit engaged, unhedged %.2f", key, exp.Unhedged))
	}
}

func (e *Engine) sendAlert(ctx context.Context, msg string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Send(ctx, msg); err != nil {
		e.log.Warn("alert send failed", zap.Error(err))
	}
}

func (e *Engine) runnerList() []*Runner {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Runner, 0, len(e.runners))
	for _, runner := range e.runners {
		out = append(out, runner)
	}
	return out
}

func (e *Engine) aggregate() strategy.Aggregate {
	var open []ledger.MarketPosition
	for _, key := range e.positions.Markets() {
		if pos, ok := e.positions.Position(key); ok {
			open = append(open, pos)
		}
	}
	return strategy.Aggregated(open, e.cfg.Risk, e.cfg.Strategy.RiskUnit)
}

func (e *Engine) snapshotFor(entry *market.Entry, now time.Time) strategy.MarketSnapshot {
	pos, _ := e.positions.Position(entry.Key())
	upQ, _ := e.board.Quote(entry.Market.UpTokenID)
	downQ, _ := e.board.Quote(entry.Market.DownTokenID)
	return strategy.MarketSnapshot{
		Market:    entry.Key(),
		Window:    entry.Window,
		TickSize:  entry.Market.TickSize,
		UpQuote:   upQ,
		DownQuote: downQ,
		Position:  pos,
		Now:       now,
	}
}

func (e *Engine) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.reconcile(ctx, time.Now().UTC())
		}
	}
}

// reconcile folds the exchange's view of our positions into the ledger.
// Fills the user channel missed come back as synthetic fills.
func (e *Engine) reconcile(ctx context.Context, now time.Time) {
	rows, err := e.exchange.GetPositions(ctx)
	if err != nil {
		e.log.Warn("position reconcile failed", zap.Error(err))
		return
	}
	snapshot := make(map[string]map[ledger.Outcome]ledger.External)
	for _, row := range rows {
		key, ok := e.manager.OwnerOf(row.Asset)
		if !ok {
			continue
		}
		entry, ok := e.manager.Get(key)
		if !ok {
			continue
		}
		outcome := ledger.OutcomeUp
		if row.Asset == entry.Market.DownTokenID {
			outcome = ledger.OutcomeDown
		}
		if snapshot[key] == nil {
			snapshot[key] = make(map[ledger.Outcome]ledger.External)
		}
		snapshot[key][outcome] = ledger.External{Shares: row.Size, AvgPrice: row.AvgPrice}
	}
	for _, fill := range e.positions.Reconcile(snapshot, now) {
		e.log.Info("reconciled external fill",
			zap.String("market", fill.Market),
			zap.String("outcome", string(fill.Outcome)),
			zap.Float64("size", fill.Size),
			zap.Float64("price", fill.Price))
		e.tsdb.EnqueueFill(timescale.Fill{
			Time:    fill.Time,
			Market:  fill.Market,
			Outcome: string(fill.Outcome),
			Side:    string(fill.Side),
			Price:   fill.Price,
			Size:    fill.Size,
		})
	}
}

func (e *Engine) handleMarketFrame(raw json.RawMessage) {
	now := time.Now().UTC()
	for _, ev := range market.ParseBookEvents(raw) {
		e.board.ApplyEvent(ev, now)
	}
}

func (e *Engine) handleUserFrame(raw json.RawMessage) {
	trades, updates := market.ParseUserEvents(raw)
	for _, trade := range trades {
		e.applyTrade(trade)
	}
	for _, update := range updates {
		e.routeOrderUpdate(update)
	}
}

// applyTrade records a user-channel fill. The feed re-reports a trade
// as it moves through confirmation, so trades are deduped by id.
func (e *Engine) applyTrade(trade market.UserTrade) {
	fills := e.fillsFromTrade(trade)
	if len(fills) == 0 {
		return
	}
	if trade.TradeID != "" {
		e.mu.Lock()
		if _, seen := e.seenTrades[trade.TradeID]; seen {
			e.mu.Unlock()
			return
		}
		e.seenTrades[trade.TradeID] = fills[0].Market
		e.mu.Unlock()
	}
	for _, fill := range fills {
		e.positions.ApplyFill(fill)
		e.tsdb.EnqueueFill(timescale.Fill{Time: fill.Time, Market: fill.Market, Outcome: string(fill.Outcome), Side: string(fill.Side), Price: fill.Price, Size: fill.Size})
		e.log.Info("fill",
			zap.String("market", fill.Market),
			zap.String("outcome", string(fill.Outcome)),
			zap.String("side", string(fill.Side)),
			zap.Float64("price", fill.Price),
			zap.Float64("size", fill.Size))
	}
}

// fillsFromTrade translates a trade event into our fills. The event's
// side belongs to the taker: when our order is the taker order the side
// applies verbatim, but when one of our resting bids was hit our fill
// is the matching maker_orders fragment, booked on the opposite side.
func (e *Engine) fillsFromTrade(trade market.UserTrade) []ledger.Fill {
	when := trade.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}
	if e.ownsOrder(trade.TakerOrderID) || len(trade.MakerOrders) == 0 {
		if fill, ok := e.resolveFill(trade.AssetID, trade.Side, trade.Price, trade.Size, when); ok {
			return []ledger.Fill{fill}
		}
		return nil
	}
	var fills []ledger.Fill
	for _, maker := range trade.MakerOrders {
		if !e.ownsOrder(maker.OrderID) {
			continue
		}
		asset := maker.AssetID
		if asset == "" {
			asset = trade.AssetID
		}
		side := maker.Side
		if side == "" {
			side = oppositeSide(trade.Side)
		}
		if fill, ok := e.resolveFill(asset, side, maker.Price, maker.Size, when); ok {
			fills = append(fills, fill)
		}
	}
	if len(fills) == 0 {
		e.log.Debug("trade matched none of our working orders", zap.String("trade_id", trade.TradeID))
	}
	return fills
}

func (e *Engine) ownsOrder(orderID string) bool {
	if orderID == "" {
		return false
	}
	for _, runner := range e.runnerList() {
		if runner.Owns(orderID) {
			return true
		}
	}
	return false
}

func (e *Engine) resolveFill(assetID, side string, price, size float64, when time.Time) (ledger.Fill, bool) {
	key, ok := e.manager.OwnerOf(assetID)
	if !ok {
		return ledger.Fill{}, false
	}
	entry, ok := e.manager.Get(key)
	if !ok {
		return ledger.Fill{}, false
	}
	outcome := ledger.OutcomeUp
	if assetID == entry.Market.DownTokenID {
		outcome = ledger.OutcomeDown
	}
	s := ledger.SideBuy
	if strings.EqualFold(side, string(ledger.SideSell)) {
		s = ledger.SideSell
	}
	return ledger.Fill{Market: key, Outcome: outcome, Side: s, Size: size, Price: price, Time: when}, true
}

func oppositeSide(side string) string {
	if strings.EqualFold(side, string(ledger.SideSell)) {
		return string(ledger.SideBuy)
	}
	return string(ledger.SideSell)
}

func (e *Engine) routeOrderUpdate(update market.OrderUpdate) {
	var target *Runner
	e.mu.Lock()
	for _, runner := range e.runners {
		if runner.Owns(update.OrderID) {
			target = runner
			break
		}
	}
	e.mu.Unlock()
	if target != nil {
		target.HandleOrderUpdate(update)
	}
}
