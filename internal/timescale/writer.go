package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"updown-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Fill struct {
	Time    time.Time
	Market  string
	Outcome string
	Side    string
	Price   float64
	Size    float64
}

type Settlement struct {
	Time      time.Time
	Market    string
	Winner    string
	PnL       float64
	UpCost    float64
	DownCost  float64
	Estimated bool
}

type ExposureSnapshot struct {
	Time          time.Time
	Unhedged      float64
	TotalExposure float64
	Markets       int
}

type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	fills       chan Fill
	settlements chan Settlement
	exposures   chan ExposureSnapshot
	started     atomic.Bool
	dropFill    atomic.Uint64
	dropSettle  atomic.Uint64
	dropExpo    atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:          db,
		log:         log,
		schema:      schema,
		fills:       make(chan Fill, queueSize),
		settlements: make(chan Settlement, queueSize),
		exposures:   make(chan ExposureSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueFill(fill Fill) {
	if w == nil {
		return
	}
	select {
	case w.fills <- fill:
		return
	default:
		if w.dropFill.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale fill queue full")
		}
	}
}

func (w *Writer) EnqueueSettlement(settlement Settlement) {
	if w == nil {
		return
	}
	select {
	case w.settlements <- settlement:
		return
	default:
		if w.dropSettle.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale settlement queue full")
		}
	}
}

func (w *Writer) EnqueueExposure(snapshot ExposureSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.exposures <- snapshot:
		return
	default:
		if w.dropExpo.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale exposure queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill := <-w.fills:
			w.writeFill(ctx, fill)
		case settlement := <-w.settlements:
			w.writeSettlement(ctx, settlement)
		case snapshot := <-w.exposures:
			w.writeExposure(ctx, snapshot)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		outcome TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL
	)`, w.table("fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		winner TEXT NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		up_cost DOUBLE PRECISION NOT NULL,
		down_cost DOUBLE PRECISION NOT NULL,
		estimated BOOLEAN NOT NULL DEFAULT FALSE
	)`, w.table("settlements"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		unhedged DOUBLE PRECISION NOT NULL,
		total_exposure DOUBLE PRECISION NOT NULL,
		markets INTEGER NOT NULL
	)`, w.table("exposure_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, table := range []string{"fills", "settlements", "exposure_snapshots"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(table))); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", table), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeFill(ctx context.Context, fill Fill) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, outcome, side, price, size
	) VALUES ($1,$2,$3,$4,$5,$6)`, w.table("fills"))
	if _, err := w.db.ExecContext(ctx, query,
		fill.Time,
		fill.Market,
		fill.Outcome,
		fill.Side,
		fill.Price,
		fill.Size,
	); err != nil && w.log != nil {
		w.log.Warn("timescale fill insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSettlement(ctx context.Context, settlement Settlement) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, winner, pnl, up_cost, down_cost, estimated
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("settlements"))
	if _, err := w.db.ExecContext(ctx, query,
		settlement.Time,
		settlement.Market,
		settlement.Winner,
		settlement.PnL,
		settlement.UpCost,
		settlement.DownCost,
		settlement.Estimated,
	); err != nil && w.log != nil {
		w.log.Warn("timescale settlement insert failed", zap.Error(err))
	}
}

func (w *Writer) writeExposure(ctx context.Context, snapshot ExposureSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, unhedged, total_exposure, markets
	) VALUES ($1,$2,$3,$4)`, w.table("exposure_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snapshot.Time,
		snapshot.Unhedged,
		snapshot.TotalExposure,
		snapshot.Markets,
	); err != nil && w.log != nil {
		w.log.Warn("timescale exposure insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
