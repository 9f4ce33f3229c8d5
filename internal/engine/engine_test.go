package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
	"updown-hedge-bot/internal/metrics"

	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type stubExchange struct {
	mu        sync.Mutex
	books     []rest.Book
	positions []rest.Position
}

func (s *stubExchange) ResolveMarket(ctx context.Context, slug string) (rest.Market, error) {
	_ = ctx
	return rest.Market{
		ConditionID: "0x" + slug,
		Slug:        slug,
		UpTokenID:   slug + "-up",
		DownTokenID: slug + "-down",
		TickSize:    0.01,
	}, nil
}

func (s *stubExchange) GetBooks(ctx context.Context, tokenIDs []string) ([]rest.Book, error) {
	_ = ctx
	_ = tokenIDs
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books, nil
}

func (s *stubExchange) GetPositions(ctx context.Context) ([]rest.Position, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions, nil
}

type stubFeed struct {
	mu   sync.Mutex
	subs []interface{}
}

func (s *stubFeed) Connect(ctx context.Context) error {
	_ = ctx
	return nil
}

func (s *stubFeed) Subscribe(ctx context.Context, sub interface{}) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return nil
}

func (s *stubFeed) Run(ctx context.Context, handler func(json.RawMessage)) error {
	_ = handler
	<-ctx.Done()
	return ctx.Err()
}

func newTestEngine(t *testing.T, ex *stubExchange, orders Orders) *Engine {
	t.Helper()
	cfg := &config.Config{
		Strategy: testStrategyConfig(),
		Risk:     testRiskConfig(),
		Status:   config.StatusConfig{Enabled: false, Interval: time.Minute},
	}
	eng, err := New(Params{
		Config:     cfg,
		Log:        zap.NewNop(),
		Exchange:   ex,
		Orders:     orders,
		MarketFeed: &stubFeed{},
		UserFeed:   &stubFeed{},
		Store:      newMemoryStore(),
		Metrics:    metrics.NewNoop(),
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng
}

func bookFor(tokenID string, bid, ask string) rest.Book {
	return rest.Book{
		AssetID: tokenID,
		Bids:    []rest.BookLevel{{Price: bid, Size: "50"}},
		Asks:    []rest.BookLevel{{Price: ask, Size: "20"}},
	}
}

func TestEngineTickPlacesEntry(t *testing.T) {
	ex := &stubExchange{}
	orders := &mockOrders{}
	eng := newTestEngine(t, ex, orders)

	now := testWindowStart().Add(10 * time.Second)
	w := market.CurrentWindow(now, 15*time.Minute)
	slug := w.Slug("btc")
	ex.books = []rest.Book{
		bookFor(slug+"-up", "0.46", "0.50"),
		bookFor(slug+"-down", "0.44", "0.48"),
	}

	eng.tick(context.Background(), now)

	if orders.placedCount() != 1 {
		t.Fatalf("expected one entry order, got %d", orders.placedCount())
	}
	placed := orders.lastPlaced()
	if placed.TokenID != slug+"-down" {
		t.Fatalf("expected cheaper down leg first, got %s", placed.TokenID)
	}
	if _, ok := eng.manager.Get(slug); !ok {
		t.Fatalf("expected window %s tracked", slug)
	}
}

func TestEngineAppliesTradeOnce(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	trade := market.UserTrade{
		TradeID: "t1",
		AssetID: entry.Market.UpTokenID,
		Side:    "BUY",
		Price:   0.45,
		Size:    5,
		Time:    w.Start.Add(time.Minute),
	}
	eng.applyTrade(trade)
	eng.applyTrade(trade)

	pos, ok := eng.positions.Position(entry.Key())
	if !ok {
		t.Fatalf("expected position recorded")
	}
	if pos.Up.Shares != 5 {
		t.Fatalf("duplicate trade must apply once, got %v shares", pos.Up.Shares)
	}
	if !closeTo(pos.Up.Cost, 2.25) {
		t.Fatalf("expected cost 2.25, got %v", pos.Up.Cost)
	}
}

func TestEngineMakerFillBooksOurSide(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	key := entry.Key()
	runner := eng.ensureRunner(entry)
	runner.order = &workingOrder{orderID: "our-bid", outcome: ledger.OutcomeUp, price: 0.45, size: 5, target: 10}
	eng.positions.ApplyFill(ledger.Fill{Market: key, Outcome: ledger.OutcomeUp, Side: ledger.SideBuy, Size: 5, Price: 0.45})

	// A taker sold into our resting bid: the event side is the taker's
	// SELL, but our fragment in maker_orders is a BUY.
	eng.applyTrade(market.UserTrade{
		TradeID:      "t-maker",
		TakerOrderID: "counterparty",
		AssetID:      entry.Market.UpTokenID,
		Side:         "SELL",
		Price:        0.45,
		Size:         5,
		Time:         w.Start.Add(time.Minute),
		MakerOrders: []market.MakerFill{
			{OrderID: "our-bid", AssetID: entry.Market.UpTokenID, Side: "BUY", Price: 0.45, Size: 5},
		},
	})

	pos, ok := eng.positions.Position(key)
	if !ok {
		t.Fatalf("expected position recorded")
	}
	if pos.Up.Shares != 10 {
		t.Fatalf("maker fill must book as our buy: want 10 up shares, got %v", pos.Up.Shares)
	}
	if !closeTo(pos.Up.Cost, 4.5) {
		t.Fatalf("expected cost 4.5, got %v", pos.Up.Cost)
	}
}

func TestEngineMakerFillWithoutSideBooksOppositeTaker(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	runner := eng.ensureRunner(entry)
	runner.order = &workingOrder{orderID: "our-bid", outcome: ledger.OutcomeDown, price: 0.30, size: 3, target: 3}

	// Some feeds omit per-maker sides; our fill still runs opposite the
	// taker's SELL.
	eng.applyTrade(market.UserTrade{
		TradeID:      "t-nofield",
		TakerOrderID: "counterparty",
		AssetID:      entry.Market.DownTokenID,
		Side:         "SELL",
		Price:        0.30,
		Size:         3,
		Time:         w.Start.Add(time.Minute),
		MakerOrders: []market.MakerFill{
			{OrderID: "our-bid", Price: 0.30, Size: 3},
		},
	})

	pos, ok := eng.positions.Position(entry.Key())
	if !ok {
		t.Fatalf("expected position recorded")
	}
	if pos.Down.Shares != 3 {
		t.Fatalf("expected 3 down shares, got %v", pos.Down.Shares)
	}
}

func TestEngineTakerFillUsesEventSide(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	runner := eng.ensureRunner(entry)
	runner.order = &workingOrder{orderID: "our-taker", outcome: ledger.OutcomeUp, price: 0.50, size: 4, target: 4}

	eng.applyTrade(market.UserTrade{
		TradeID:      "t-taker",
		TakerOrderID: "our-taker",
		AssetID:      entry.Market.UpTokenID,
		Side:         "BUY",
		Price:        0.50,
		Size:         4,
		Time:         w.Start.Add(time.Minute),
		MakerOrders: []market.MakerFill{
			{OrderID: "counterparty", AssetID: entry.Market.UpTokenID, Side: "SELL", Price: 0.50, Size: 4},
		},
	})

	pos, ok := eng.positions.Position(entry.Key())
	if !ok {
		t.Fatalf("expected position recorded")
	}
	if pos.Up.Shares != 4 {
		t.Fatalf("taker fill must book the event side, got %v shares", pos.Up.Shares)
	}
}

func TestEngineTradeForUnknownTokenIgnored(t *testing.T) {
	eng := newTestEngine(t, &stubExchange{}, &mockOrders{})

	eng.applyTrade(market.UserTrade{TradeID: "t9", AssetID: "stranger", Side: "BUY", Price: 0.5, Size: 3})

	if markets := eng.positions.Markets(); len(markets) != 0 {
		t.Fatalf("unexpected positions: %v", markets)
	}
}

func TestEngineReconcileRaisesPosition(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	eng.positions.ApplyFill(ledger.Fill{Market: entry.Key(), Outcome: ledger.OutcomeUp, Side: ledger.SideBuy, Size: 5, Price: 0.45})

	ex.positions = []rest.Position{{Asset: entry.Market.UpTokenID, Size: 7, AvgPrice: 0.4}}
	eng.reconcile(context.Background(), w.Start.Add(2*time.Minute))

	pos, _ := eng.positions.Position(entry.Key())
	if pos.Up.Shares != 7 {
		t.Fatalf("expected shares raised to 7, got %v", pos.Up.Shares)
	}
	if !closeTo(pos.Up.Cost, 2.8) {
		t.Fatalf("expected cost raised to external basis 2.8, got %v", pos.Up.Cost)
	}
}

func TestEngineBuildStatus(t *testing.T) {
	ex := &stubExchange{}
	eng := newTestEngine(t, ex, &mockOrders{})

	w := market.Window{Start: testWindowStart(), Length: 15 * time.Minute}
	entry, err := eng.manager.Ensure(context.Background(), "btc", w)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	eng.ensureRunner(entry)
	eng.positions.ApplyFill(ledger.Fill{Market: entry.Key(), Outcome: ledger.OutcomeUp, Side: ledger.SideBuy, Size: 5, Price: 0.45})

	status := eng.buildStatus(w.Start.Add(5 * time.Minute))

	if len(status.Markets) != 1 {
		t.Fatalf("expected one status row, got %d", len(status.Markets))
	}
	row := status.Markets[0]
	if row.Slug != entry.Key() {
		t.Fatalf("unexpected slug %s", row.Slug)
	}
	if row.UpShares != 5 || !closeTo(row.UpAvgCost, 0.45) {
		t.Fatalf("unexpected up leg %v @ %v", row.UpShares, row.UpAvgCost)
	}
	if row.Unhedged != 5 {
		t.Fatalf("expected unhedged 5, got %v", row.Unhedged)
	}
	if row.Remaining != 10*time.Minute {
		t.Fatalf("expected 10m remaining, got %v", row.Remaining)
	}
	if !closeTo(status.AggregateUnhedged, 5) {
		t.Fatalf("expected aggregate unhedged 5, got %v", status.AggregateUnhedged)
	}
}
