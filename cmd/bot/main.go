package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"updown-hedge-bot/internal/alerts"
	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/clob/ws"
	"updown-hedge-bot/internal/config"
	"updown-hedge-bot/internal/engine"
	"updown-hedge-bot/internal/exec"
	"updown-hedge-bot/internal/logging"
	"updown-hedge-bot/internal/metrics"
	"updown-hedge-bot/internal/notify"
	"updown-hedge-bot/internal/state/sqlite"
	"updown-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	creds, err := config.LoadCredentials()
	if err != nil {
		log.Error("failed to load credentials", zap.Error(err))
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.State.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("failed to create state dir", zap.Error(err))
			os.Exit(1)
		}
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		log.Error("failed to open state store", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	restClient := rest.New(
		cfg.REST.ClobURL, cfg.REST.GammaURL, cfg.REST.DataURL,
		cfg.REST.Timeout, cfg.REST.RateLimitRPS,
		rest.Credentials{
			Address:    creds.AccountAddress,
			APIKey:     creds.APIKey,
			Secret:     creds.APISecret,
			Passphrase: creds.APIPassphrase,
		},
		log,
	)
	marketFeed := ws.New(cfg.WS.MarketURL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log.Named("ws-market"))
	userFeed := ws.New(cfg.WS.UserURL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log.Named("ws-user"))
	executor := exec.New(restClient, store, log)

	m := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		go serveMetrics(cfg.Metrics.ListenAddr, prom, log)
	}

	tsdb, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Error("failed to connect timescale", zap.Error(err))
		os.Exit(1)
	}
	defer tsdb.Close()

	var console *notify.Console
	if cfg.Status.Enabled {
		console = notify.NewConsole(true)
	}

	eng, err := engine.New(engine.Params{
		Config:     cfg,
		Creds:      creds,
		Log:        log,
		Exchange:   restClient,
		Orders:     executor,
		MarketFeed: marketFeed,
		UserFeed:   userFeed,
		Store:      store,
		Metrics:    m,
		Alerts:     alerts.NewTelegram(cfg.Telegram, log),
		Timescale:  tsdb,
		Console:    console,
	})
	if err != nil {
		log.Error("failed to initialize engine", zap.Error(err))
		os.Exit(1)
	}
	log.Info("engine initialized", zap.Strings("assets", cfg.Strategy.Assets))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tsdb.Start(ctx)

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Error("engine terminated", zap.Error(err))
		os.Exit(1)
	}
}

func serveMetrics(addr string, prom *metrics.Prometheus, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
