package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"updown-hedge-bot/internal/state"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotKeyPrefix = "ledger:"

type snapshot struct {
	Positions map[string]MarketPosition `msgpack:"positions"`
	SavedAtMS int64                     `msgpack:"saved_at_ms"`
}

// Save persists every open position to the kv store, one key per
// market, msgpack-encoded. Settled markets must be released first.
func (l *Ledger) Save(ctx context.Context, store state.Store) error {
	if store == nil {
		return nil
	}
	l.mu.RLock()
	positions := make(map[string]MarketPosition, len(l.positions))
	for market, mp := range l.positions {
		positions[market] = *mp
	}
	l.mu.RUnlock()

	for market, mp := range positions {
		payload, err := msgpack.Marshal(snapshot{
			Positions: map[string]MarketPosition{market: mp},
			SavedAtMS: time.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("encode ledger snapshot %s: %w", market, err)
		}
		key := snapshotKeyPrefix + market
		if err := store.Set(ctx, key, base64.StdEncoding.EncodeToString(payload)); err != nil {
			return fmt.Errorf("save ledger snapshot %s: %w", market, err)
		}
	}
	return nil
}

// Restore loads persisted positions back into the ledger. Existing
// in-memory positions win on conflict.
func (l *Ledger) Restore(ctx context.Context, store state.Store) (int, error) {
	if store == nil {
		return 0, nil
	}
	items, err := store.List(ctx, snapshotKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list ledger snapshots: %w", err)
	}
	restored := 0
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, raw := range items {
		payload, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return restored, fmt.Errorf("decode ledger snapshot %s: %w", key, err)
		}
		var snap snapshot
		if err := msgpack.Unmarshal(payload, &snap); err != nil {
			return restored, fmt.Errorf("unmarshal ledger snapshot %s: %w", key, err)
		}
		for market, mp := range snap.Positions {
			if _, exists := l.positions[market]; exists {
				continue
			}
			copied := mp
			l.positions[market] = &copied
			restored++
		}
	}
	return restored, nil
}

// Forget removes a market's persisted snapshot after settlement.
func Forget(ctx context.Context, store state.Store, market string) error {
	if store == nil {
		return nil
	}
	return store.Delete(ctx, snapshotKeyPrefix+market)
}
