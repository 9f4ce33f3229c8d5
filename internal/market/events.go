package market

import (
	"encoding/json"
	"time"

	"updown-hedge-bot/internal/clob/rest"
)

const (
	EventBook        = "book"
	EventPriceChange = "price_change"
)

// BookEvent is one pushed market-channel event.
type BookEvent struct {
	Type    string
	AssetID string
	Bids    []rest.BookLevel
	Asks    []rest.BookLevel
	Changes []PriceChange
}

type PriceChange struct {
	Price float64
	Side  string
	Size  float64
}

// ParseBookEvents decodes a market-channel frame. Frames carry either a
// single event object or an array of them; unknown event types are
// dropped.
func ParseBookEvents(raw json.RawMessage) []BookEvent {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		items = []map[string]any{single}
	}
	var events []BookEvent
	for _, item := range items {
		ev, ok := parseBookEvent(item)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func parseBookEvent(item map[string]any) (BookEvent, bool) {
	eventType := stringFromAny(item["event_type"])
	assetID := stringFromAny(item["asset_id"])
	if assetID == "" {
		return BookEvent{}, false
	}
	switch eventType {
	case EventBook:
		return BookEvent{
			Type:    EventBook,
			AssetID: assetID,
			Bids:    parseLevels(item["bids"]),
			Asks:    parseLevels(item["asks"]),
		}, true
	case EventPriceChange:
		changes := parseChanges(item["changes"])
		if len(changes) == 0 {
			return BookEvent{}, false
		}
		return BookEvent{Type: EventPriceChange, AssetID: assetID, Changes: changes}, true
	default:
		return BookEvent{}, false
	}
}

func parseLevels(v any) []rest.BookLevel {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	levels := make([]rest.BookLevel, 0, len(items))
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		levels = append(levels, rest.BookLevel{
			Price: stringFromAny(m["price"]),
			Size:  stringFromAny(m["size"]),
		})
	}
	return levels
}

func parseChanges(v any) []PriceChange {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	var changes []PriceChange
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		price, pok := floatFromAny(m["price"])
		size, sok := floatFromAny(m["size"])
		if !pok || !sok {
			continue
		}
		changes = append(changes, PriceChange{
			Price: price,
			Side:  stringFromAny(m["side"]),
			Size:  size,
		})
	}
	return changes
}

// UserTrade is a fill reported on the user channel. Side is the
// taker's side; when one of our resting orders was hit it appears in
// MakerOrders and our fill runs opposite to Side.
type UserTrade struct {
	TradeID      string
	TakerOrderID string
	AssetID      string
	Market       string
	Side         string
	Price        float64
	Size         float64
	Status       string
	Time         time.Time
	MakerOrders  []MakerFill
}

// MakerFill is one maker order fragment matched in a trade.
type MakerFill struct {
	OrderID string
	AssetID string
	Side    string
	Price   float64
	Size    float64
}

// OrderUpdate is an order lifecycle event on the user channel.
type OrderUpdate struct {
	OrderID     string
	AssetID     string
	Market      string
	Kind        string
	Status      string
	SizeMatched float64
}

// ParseUserEvents decodes a user-channel frame into trades and order
// updates.
func ParseUserEvents(raw json.RawMessage) ([]UserTrade, []OrderUpdate) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, nil
		}
		items = []map[string]any{single}
	}
	var trades []UserTrade
	var orders []OrderUpdate
	for _, item := range items {
		switch stringFromAny(item["event_type"]) {
		case "trade":
			if trade, ok := parseUserTrade(item); ok {
				trades = append(trades, trade)
			}
		case "order":
			if update, ok := parseOrderUpdate(item); ok {
				orders = append(orders, update)
			}
		}
	}
	return trades, orders
}

func parseUserTrade(item map[string]any) (UserTrade, bool) {
	price, pok := floatFromAny(item["price"])
	size, sok := floatFromAny(item["size"])
	if !pok || !sok || size <= 0 {
		return UserTrade{}, false
	}
	trade := UserTrade{
		TradeID:      stringFromAny(item["id"]),
		TakerOrderID: stringFromAny(item["taker_order_id"]),
		AssetID:      stringFromAny(item["asset_id"]),
		Market:       stringFromAny(item["market"]),
		Side:         stringFromAny(item["side"]),
		Price:        price,
		Size:         size,
		Status:       stringFromAny(item["status"]),
		MakerOrders:  parseMakerOrders(item["maker_orders"]),
	}
	if ts, ok := floatFromAny(item["match_time"]); ok && ts > 0 {
		trade.Time = time.Unix(int64(ts), 0).UTC()
	}
	if trade.AssetID == "" {
		return UserTrade{}, false
	}
	return trade, true
}

func parseMakerOrders(v any) []MakerFill {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	var makers []MakerFill
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		price, pok := floatFromAny(m["price"])
		size, sok := floatFromAny(m["matched_amount"])
		if !pok || !sok || size <= 0 {
			continue
		}
		makers = append(makers, MakerFill{
			OrderID: stringFromAny(m["order_id"]),
			AssetID: stringFromAny(m["asset_id"]),
			Side:    stringFromAny(m["side"]),
			Price:   price,
			Size:    size,
		})
	}
	return makers
}

func parseOrderUpdate(item map[string]any) (OrderUpdate, bool) {
	update := OrderUpdate{
		OrderID: stringFromAny(item["id"]),
		AssetID: stringFromAny(item["asset_id"]),
		Market:  stringFromAny(item["market"]),
		Kind:    stringFromAny(item["type"]),
		Status:  stringFromAny(item["status"]),
	}
	if update.OrderID == "" {
		return OrderUpdate{}, false
	}
	if matched, ok := floatFromAny(item["size_matched"]); ok {
		update.SizeMatched = matched
	}
	return update, true
}
