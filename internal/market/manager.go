package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"updown-hedge-bot/internal/clob/rest"

	"go.uber.org/zap"
)

// Resolver looks a market up by slug.
type Resolver interface {
	ResolveMarket(ctx context.Context, slug string) (rest.Market, error)
}

// Entry is a resolved market pinned to its window.
type Entry struct {
	Asset  string
	Window Window
	Market rest.Market
}

func (e *Entry) Key() string {
	return e.Window.Slug(e.Asset)
}

// Manager caches resolved markets per window slug. A market is resolved
// at most once; a failed resolution is retried on the next Ensure call.
type Manager struct {
	resolver Resolver
	log      *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	byToken map[string]string
}

func NewManager(resolver Resolver, log *zap.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		log:      log,
		entries:  make(map[string]*Entry),
		byToken:  make(map[string]string),
	}
}

// Ensure returns the cached entry for the asset/window pair, resolving
// it via discovery on first sight.
func (m *Manager) Ensure(ctx context.Context, asset string, w Window) (*Entry, error) {
	key := w.Slug(asset)
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	resolved, err := m.resolver.ResolveMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ensure %s: %w", key, err)
	}
	entry = &Entry{Asset: asset, Window: w, Market: resolved}

	m.mu.Lock()
	if existing, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.entries[key] = entry
	m.byToken[resolved.UpTokenID] = key
	m.byToken[resolved.DownTokenID] = key
	m.mu.Unlock()

	m.log.Info("market resolved",
		zap.String("market", key),
		zap.String("condition_id", resolved.ConditionID),
		zap.Float64("tick_size", resolved.TickSize))
	return entry, nil
}

func (m *Manager) Get(key string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return entry, ok
}

// OwnerOf maps an outcome token back to its market key.
func (m *Manager) OwnerOf(tokenID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byToken[tokenID]
	return key, ok
}

func (m *Manager) Evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.byToken, entry.Market.UpTokenID)
	delete(m.byToken, entry.Market.DownTokenID)
	delete(m.entries, key)
}

// Expired lists entries whose window closed before the cutoff.
func (m *Manager) Expired(now time.Time, grace time.Duration) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Entry
	for _, entry := range m.entries {
		if now.Sub(entry.Window.End()) > grace {
			out = append(out, entry)
		}
	}
	return out
}

func (m *Manager) All() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry)
	}
	return out
}
