package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{Strategy: StrategyConfig{Assets: []string{"BTC"}}}
}

func TestStrategyDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Strategy.WindowLength != 15*time.Minute {
		t.Fatalf("expected 15m window default, got %v", cfg.Strategy.WindowLength)
	}
	if cfg.Strategy.LotSize != 5 {
		t.Fatalf("expected lot size default 5, got %v", cfg.Strategy.LotSize)
	}
	if cfg.Strategy.MaxCombinedPrice != 0.98 {
		t.Fatalf("expected max combined price default 0.98, got %v", cfg.Strategy.MaxCombinedPrice)
	}
	if cfg.Strategy.WinnerBidThreshold != 0.8 {
		t.Fatalf("expected winner bid threshold default 0.8, got %v", cfg.Strategy.WinnerBidThreshold)
	}
	if cfg.Strategy.FreezeBeforeEnd != time.Minute {
		t.Fatalf("expected freeze default 1m, got %v", cfg.Strategy.FreezeBeforeEnd)
	}
	if cfg.Strategy.RiskUnit != RiskUnitShares {
		t.Fatalf("expected risk unit default shares, got %q", cfg.Strategy.RiskUnit)
	}
}

func TestRiskDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Risk.SoftLimit <= 0 || cfg.Risk.HardLimit <= cfg.Risk.SoftLimit {
		t.Fatalf("expected ordered risk defaults, got soft=%v hard=%v", cfg.Risk.SoftLimit, cfg.Risk.HardLimit)
	}
	if cfg.Risk.MaxAggregateUnhedged < cfg.Risk.HardLimit {
		t.Fatalf("expected aggregate cap >= hard limit, got %v", cfg.Risk.MaxAggregateUnhedged)
	}
}

func TestValidateRequiresAssets(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing assets")
	}
}

func TestValidateRejectsInvertedTimeouts(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	cfg.Strategy.RepriceTimeout = 2 * time.Minute
	cfg.Strategy.AbandonTimeout = time.Minute
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for reprice >= abandon timeout")
	}
}

func TestValidateRejectsBadCombinedPrice(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	cfg.Strategy.MaxCombinedPrice = 1.2
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for combined price >= 1")
	}
}

func TestValidateRejectsUnknownRiskUnit(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	cfg.Strategy.RiskUnit = "contracts"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown risk unit")
	}
}

func TestValidateTimescaleNeedsDSN(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	cfg.Timescale.Enabled = true
	cfg.Timescale.DSN = " "
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for enabled timescale without dsn")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := []byte(`
log:
  level: debug
strategy:
  assets: [BTC, ETH]
  lot_size: 10
  window_length: 900s
risk:
  soft_limit: 15
  hard_limit: 30
  max_aggregate_unhedged: 60
`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if len(cfg.Strategy.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(cfg.Strategy.Assets))
	}
	if cfg.Strategy.LotSize != 10 {
		t.Fatalf("expected lot size 10, got %v", cfg.Strategy.LotSize)
	}
	if cfg.Strategy.WindowLength != 900*time.Second {
		t.Fatalf("expected 900s window, got %v", cfg.Strategy.WindowLength)
	}
	if cfg.Risk.HardLimit != 30 {
		t.Fatalf("expected hard limit 30, got %v", cfg.Risk.HardLimit)
	}
}

func TestLoadCredentialsValidatesAddress(t *testing.T) {
	t.Setenv("UPDOWN_ACCOUNT_ADDRESS", "not-an-address")
	t.Setenv("UPDOWN_API_KEY", "key")
	if _, err := LoadCredentials(); err == nil {
		t.Fatalf("expected error for invalid address")
	}
	t.Setenv("UPDOWN_ACCOUNT_ADDRESS", "0x52908400098527886E0F7030069857D2E4169EE7")
	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds.APIKey != "key" {
		t.Fatalf("expected api key from env, got %q", creds.APIKey)
	}
}
