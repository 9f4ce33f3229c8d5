package market

import (
	"sync"
	"time"

	"updown-hedge-bot/internal/clob/rest"
)

// Quote is the top of book for one outcome token.
type Quote struct {
	BestBid   float64
	BestAsk   float64
	BidSize   float64
	AskSize   float64
	UpdatedAt time.Time
}

// Stale reports whether the quote is too old to act on.
func (q Quote) Stale(now time.Time, maxAge time.Duration) bool {
	if q.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(q.UpdatedAt) > maxAge
}

// Board merges polled REST books and pushed ws events into one
// per-token top-of-book view.
type Board struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewBoard() *Board {
	return &Board{quotes: make(map[string]Quote)}
}

func (b *Board) Quote(tokenID string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[tokenID]
	return q, ok
}

// ApplyBook replaces the token's quote from a full REST book snapshot.
func (b *Board) ApplyBook(book rest.Book, now time.Time) {
	q := Quote{UpdatedAt: now}
	for _, level := range book.Bids {
		price, pok := floatFromAny(level.Price)
		size, sok := floatFromAny(level.Size)
		if !pok || !sok || size <= 0 {
			continue
		}
		if price > q.BestBid {
			q.BestBid = price
			q.BidSize = size
		}
	}
	for _, level := range book.Asks {
		price, pok := floatFromAny(level.Price)
		size, sok := floatFromAny(level.Size)
		if !pok || !sok || size <= 0 {
			continue
		}
		if q.BestAsk == 0 || price < q.BestAsk {
			q.BestAsk = price
			q.AskSize = size
		}
	}
	b.mu.Lock()
	b.quotes[book.AssetID] = q
	b.mu.Unlock()
}

// ApplyEvent folds one pushed book event into the board and returns the
// tokens it touched.
func (b *Board) ApplyEvent(ev BookEvent, now time.Time) []string {
	switch ev.Type {
	case EventBook:
		b.ApplyBook(rest.Book{AssetID: ev.AssetID, Bids: ev.Bids, Asks: ev.Asks}, now)
		return []string{ev.AssetID}
	case EventPriceChange:
		b.applyPriceChange(ev, now)
		return []string{ev.AssetID}
	default:
		return nil
	}
}

// applyPriceChange nudges the stored best levels. A change at a better
// price moves the top; a zero-size change at the current top leaves the
// price in place and only refreshes the timestamp, the next snapshot
// corrects it.
func (b *Board) applyPriceChange(ev BookEvent, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.quotes[ev.AssetID]
	for _, ch := range ev.Changes {
		switch ch.Side {
		case "BUY":
			if ch.Size > 0 && ch.Price >= q.BestBid {
				q.BestBid = ch.Price
				q.BidSize = ch.Size
			}
		case "SELL":
			if ch.Size > 0 && (q.BestAsk == 0 || ch.Price <= q.BestAsk) {
				q.BestAsk = ch.Price
				q.AskSize = ch.Size
			}
		}
	}
	q.UpdatedAt = now
	b.quotes[ev.AssetID] = q
}

func (b *Board) Drop(tokenIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range tokenIDs {
		delete(b.quotes, id)
	}
}
