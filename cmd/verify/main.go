package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/logging"
	"updown-hedge-bot/internal/market"
	"updown-hedge-bot/internal/strategy"
)

const (
	defaultVerifyEnvFile = ".env"
	defaultWindowLength  = 15 * time.Minute
	defaultRESTTimeout   = 10 * time.Second
	defaultClobURL       = "https://clob.polymarket.com"
	defaultGammaURL      = "https://gamma-api.polymarket.com"
	defaultDataURL       = "https://data-api.polymarket.com"
)

// verify resolves the live up/down windows for each asset, prints the
// outcome tokens and top of book, and derives the entry quote the bot
// would place right now. Read-only: nothing is sent to the exchange.
func main() {
	configPath := flag.String("config", "", "optional config path for REST and strategy settings")
	assetsFlag := flag.String("assets", "", "comma-separated assets (overrides config)")
	withNext := flag.Bool("next", false, "also resolve the next window")
	withBooks := flag.Bool("books", true, "fetch order books and derive entry quotes")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	logCfg := config.LoggingConfig{Level: "info"}
	clobURL := defaultClobURL
	gammaURL := defaultGammaURL
	dataURL := defaultDataURL
	timeout := defaultRESTTimeout
	windowLength := defaultWindowLength
	strat := config.StrategyConfig{}
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
		logCfg = cfg.Log
		clobURL = cfg.REST.ClobURL
		gammaURL = cfg.REST.GammaURL
		dataURL = cfg.REST.DataURL
		timeout = cfg.REST.Timeout
		windowLength = cfg.Strategy.WindowLength
		strat = cfg.Strategy
	}
	if strat.LotSize == 0 {
		strat = config.DefaultStrategy()
	}

	assets := splitAssets(*assetsFlag)
	if len(assets) == 0 {
		assets = splitAssets(os.Getenv("UPDOWN_VERIFY_ASSETS"))
	}
	if len(assets) == 0 && cfg != nil {
		assets = cfg.Strategy.Assets
	}
	if len(assets) == 0 {
		fatal(errors.New("no assets: pass -assets, set UPDOWN_VERIFY_ASSETS, or use -config"))
	}

	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	restClient := rest.New(clobURL, gammaURL, dataURL, timeout, 10, rest.Credentials{}, log)
	ctx := context.Background()
	now := time.Now().UTC()
	current := market.CurrentWindow(now, windowLength)

	for _, asset := range assets {
		verifyWindow(ctx, restClient, asset, current, now, strat, *withBooks)
		if *withNext {
			verifyWindow(ctx, restClient, asset, current.Next(), now, strat, *withBooks)
		}
	}
}

func verifyWindow(ctx context.Context, client *rest.Client, asset string, w market.Window, now time.Time, strat config.StrategyConfig, withBooks bool) {
	slug := w.Slug(asset)
	mkt, err := client.ResolveMarket(ctx, slug)
	if err != nil {
		fmt.Printf("%s: resolve failed: %v\n", slug, err)
		return
	}
	fmt.Printf("%s\n", mkt.Slug)
	fmt.Printf("  question:  %s\n", mkt.Question)
	fmt.Printf("  condition: %s\n", mkt.ConditionID)
	fmt.Printf("  up token:  %s\n", mkt.UpTokenID)
	fmt.Printf("  down token:%s\n", mkt.DownTokenID)
	fmt.Printf("  tick=%.3f neg_risk=%v active=%v closed=%v\n", mkt.TickSize, mkt.NegRisk, mkt.Active, mkt.Closed)
	if w.Contains(now) {
		fmt.Printf("  window: %s left, phase %s\n", w.Remaining(now).Round(time.Second), strategy.PhaseAt(now, w, strat))
	} else {
		fmt.Printf("  window: opens in %s\n", w.Start.Sub(now).Round(time.Second))
	}

	if !withBooks {
		return
	}
	books, err := client.GetBooks(ctx, []string{mkt.UpTokenID, mkt.DownTokenID})
	if err != nil {
		fmt.Printf("  books failed: %v\n", err)
		return
	}
	board := market.NewBoard()
	for _, book := range books {
		board.ApplyBook(book, now)
	}
	printQuote(board, "up", mkt.UpTokenID, mkt.TickSize, strat)
	printQuote(board, "down", mkt.DownTokenID, mkt.TickSize, strat)
}

func printQuote(board *market.Board, side, tokenID string, tick float64, strat config.StrategyConfig) {
	q, ok := board.Quote(tokenID)
	if !ok || (q.BestBid == 0 && q.BestAsk == 0) {
		fmt.Printf("  %-4s book empty\n", side)
		return
	}
	bid := strategy.BidPrice(q, tick, strat, strategy.RiskSafe, false)
	fmt.Printf("  %-4s bid=%.3f(%.0f) ask=%.3f(%.0f) -> would quote %.3f x %.1f\n",
		side, q.BestBid, q.BidSize, q.BestAsk, q.AskSize, bid, strat.LotSize)
}

func splitAssets(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
