package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Status    StatusConfig    `yaml:"status"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	ClobURL      string        `yaml:"clob_url"`
	GammaURL     string        `yaml:"gamma_url"`
	DataURL      string        `yaml:"data_url"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
}

type WSConfig struct {
	MarketURL      string        `yaml:"market_url"`
	UserURL        string        `yaml:"user_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type StatusConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// RiskUnit selects whether exposure limits are measured in share counts
// or in unhedged cost dollars.
type RiskUnit string

const (
	RiskUnitShares  RiskUnit = "shares"
	RiskUnitDollars RiskUnit = "dollars"
)

type StrategyConfig struct {
	Assets       []string      `yaml:"assets"`
	WindowLength time.Duration `yaml:"window_length"`
	TickInterval time.Duration `yaml:"tick_interval"`

	LotSize          float64 `yaml:"lot_size"`
	MaxPosition      float64 `yaml:"max_position"`
	MaxCombinedPrice float64 `yaml:"max_combined_price"`
	MinPrice         float64 `yaml:"min_price"`
	MaxPrice         float64 `yaml:"max_price"`
	MinEdge          float64 `yaml:"min_edge"`
	SoftAdjust       float64 `yaml:"soft_adjust"`
	MinAskSize       float64 `yaml:"min_ask_size"`

	RepriceTimeout time.Duration `yaml:"reprice_timeout"`
	AbandonTimeout time.Duration `yaml:"abandon_timeout"`

	AggressiveCutoff time.Duration `yaml:"aggressive_cutoff"`
	EntryCutoff      time.Duration `yaml:"entry_cutoff"`
	FreezeBeforeEnd  time.Duration `yaml:"freeze_before_end"`

	ExitImbalanceThreshold float64       `yaml:"exit_imbalance_threshold"`
	WinnerBidThreshold     float64       `yaml:"winner_bid_threshold"`
	QuoteMaxAge            time.Duration `yaml:"quote_max_age"`

	RiskUnit RiskUnit `yaml:"risk_unit"`
}

type RiskConfig struct {
	SoftLimit            float64 `yaml:"soft_limit"`
	HardLimit            float64 `yaml:"hard_limit"`
	MaxAggregateUnhedged float64 `yaml:"max_aggregate_unhedged"`
	MaxTotalExposure     float64 `yaml:"max_total_exposure"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Credentials are loaded from the environment, never from yaml.
type Credentials struct {
	AccountAddress string
	APIKey         string
	APISecret      string
	APIPassphrase  string
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

// LoadCredentials reads account secrets from the environment. The account
// address must be a hex Ethereum address; everything else is opaque.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		AccountAddress: strings.TrimSpace(os.Getenv("UPDOWN_ACCOUNT_ADDRESS")),
		APIKey:         strings.TrimSpace(os.Getenv("UPDOWN_API_KEY")),
		APISecret:      strings.TrimSpace(os.Getenv("UPDOWN_API_SECRET")),
		APIPassphrase:  strings.TrimSpace(os.Getenv("UPDOWN_API_PASSPHRASE")),
	}
	if creds.AccountAddress == "" {
		return Credentials{}, errors.New("UPDOWN_ACCOUNT_ADDRESS is required")
	}
	if !common.IsHexAddress(creds.AccountAddress) {
		return Credentials{}, fmt.Errorf("UPDOWN_ACCOUNT_ADDRESS is not a valid address: %s", creds.AccountAddress)
	}
	if creds.APIKey == "" {
		return Credentials{}, errors.New("UPDOWN_API_KEY is required")
	}
	return creds, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.ClobURL == "" {
		cfg.REST.ClobURL = "https://clob.polymarket.com"
	}
	if cfg.REST.GammaURL == "" {
		cfg.REST.GammaURL = "https://gamma-api.polymarket.com"
	}
	if cfg.REST.DataURL == "" {
		cfg.REST.DataURL = "https://data-api.polymarket.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.RateLimitRPS == 0 {
		cfg.REST.RateLimitRPS = 10
	}
	if cfg.WS.MarketURL == "" {
		cfg.WS.MarketURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.WS.UserURL == "" {
		cfg.WS.UserURL = "wss://ws-subscriptions-clob.polymarket.com/ws/user"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/updown-hedge-bot.db"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Status.Interval == 0 {
		cfg.Status.Interval = 30 * time.Second
	}
	applyStrategyDefaults(&cfg.Strategy)
	if cfg.Risk.SoftLimit == 0 {
		cfg.Risk.SoftLimit = 10
	}
	if cfg.Risk.HardLimit == 0 {
		cfg.Risk.HardLimit = 20
	}
	if cfg.Risk.MaxAggregateUnhedged == 0 {
		cfg.Risk.MaxAggregateUnhedged = 50
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

// DefaultStrategy returns the strategy defaults used when no config file
// is loaded.
func DefaultStrategy() StrategyConfig {
	var s StrategyConfig
	applyStrategyDefaults(&s)
	return s
}

func applyStrategyDefaults(s *StrategyConfig) {
	if s.WindowLength == 0 {
		s.WindowLength = 15 * time.Minute
	}
	if s.TickInterval == 0 {
		s.TickInterval = 2 * time.Second
	}
	if s.LotSize == 0 {
		s.LotSize = 5
	}
	if s.MaxPosition == 0 {
		s.MaxPosition = 100
	}
	if s.MaxCombinedPrice == 0 {
		s.MaxCombinedPrice = 0.98
	}
	if s.MinPrice == 0 {
		s.MinPrice = 0.05
	}
	if s.MaxPrice == 0 {
		s.MaxPrice = 0.95
	}
	if s.MinEdge == 0 {
		s.MinEdge = 0.01
	}
	if s.SoftAdjust == 0 {
		s.SoftAdjust = 0.01
	}
	if s.MinAskSize == 0 {
		s.MinAskSize = 10
	}
	if s.RepriceTimeout == 0 {
		s.RepriceTimeout = 20 * time.Second
	}
	if s.AbandonTimeout == 0 {
		s.AbandonTimeout = 90 * time.Second
	}
	if s.AggressiveCutoff == 0 {
		s.AggressiveCutoff = 3 * time.Minute
	}
	if s.EntryCutoff == 0 {
		s.EntryCutoff = 7 * time.Minute
	}
	if s.FreezeBeforeEnd == 0 {
		s.FreezeBeforeEnd = time.Minute
	}
	if s.ExitImbalanceThreshold == 0 {
		s.ExitImbalanceThreshold = 1
	}
	if s.WinnerBidThreshold == 0 {
		s.WinnerBidThreshold = 0.8
	}
	if s.QuoteMaxAge == 0 {
		s.QuoteMaxAge = 10 * time.Second
	}
	if s.RiskUnit == "" {
		s.RiskUnit = RiskUnitShares
	}
}

func validate(cfg *Config) error {
	if len(cfg.Strategy.Assets) == 0 {
		return errors.New("strategy.assets must list at least one asset")
	}
	s := cfg.Strategy
	if s.LotSize <= 0 {
		return errors.New("strategy.lot_size must be > 0")
	}
	if s.MaxCombinedPrice <= 0 || s.MaxCombinedPrice >= 1 {
		return errors.New("strategy.max_combined_price must be in (0, 1)")
	}
	if s.MinPrice <= 0 || s.MaxPrice >= 1 || s.MinPrice >= s.MaxPrice {
		return errors.New("strategy price band must satisfy 0 < min < max < 1")
	}
	if s.WinnerBidThreshold <= 0.5 || s.WinnerBidThreshold >= 1 {
		return errors.New("strategy.winner_bid_threshold must be in (0.5, 1)")
	}
	if s.RepriceTimeout >= s.AbandonTimeout {
		return errors.New("strategy.reprice_timeout must be shorter than abandon_timeout")
	}
	if s.AggressiveCutoff+s.FreezeBeforeEnd >= s.WindowLength {
		return errors.New("strategy phase cutoffs exceed the window length")
	}
	if s.EntryCutoff < s.AggressiveCutoff {
		return errors.New("strategy.entry_cutoff must be >= aggressive_cutoff")
	}
	switch s.RiskUnit {
	case RiskUnitShares, RiskUnitDollars:
	default:
		return fmt.Errorf("strategy.risk_unit must be %q or %q", RiskUnitShares, RiskUnitDollars)
	}
	if cfg.Risk.SoftLimit <= 0 || cfg.Risk.HardLimit <= 0 {
		return errors.New("risk.soft_limit and risk.hard_limit must be > 0")
	}
	if cfg.Risk.SoftLimit >= cfg.Risk.HardLimit {
		return errors.New("risk.soft_limit must be below risk.hard_limit")
	}
	if cfg.Risk.MaxAggregateUnhedged < cfg.Risk.HardLimit {
		return errors.New("risk.max_aggregate_unhedged must be >= risk.hard_limit")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
