package state

import (
	"context"
	"encoding/json"
	"strings"
)

const SessionStatsKey = "engine:session_stats"

// SessionStats accumulates settlement outcomes across restarts.
type SessionStats struct {
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	PairsCompleted int     `json:"pairs_completed"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UpdatedAtMS    int64   `json:"updated_at_ms"`
}

func LoadSessionStats(ctx context.Context, store Store) (SessionStats, bool, error) {
	if store == nil {
		return SessionStats{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, SessionStatsKey)
	if err != nil {
		return SessionStats{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionStats{}, false, nil
	}
	var stats SessionStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return SessionStats{}, false, err
	}
	return stats, true, nil
}

func SaveSessionStats(ctx context.Context, store Store, stats SessionStats) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionStatsKey, string(payload))
}
