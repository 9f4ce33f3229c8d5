package market

import (
	"encoding/json"
	"testing"
)

func TestParseBookEvents(t *testing.T) {
	raw := json.RawMessage(`[
		{"event_type":"book","asset_id":"111","bids":[{"price":"0.45","size":"120"}],"asks":[{"price":"0.47","size":"80"}]},
		{"event_type":"price_change","asset_id":"222","changes":[{"price":"0.52","side":"SELL","size":"30"}]},
		{"event_type":"tick_size_change","asset_id":"333"}
	]`)
	events := ParseBookEvents(raw)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventBook || events[0].AssetID != "111" {
		t.Fatalf("unexpected first event: %#v", events[0])
	}
	if len(events[0].Bids) != 1 || events[0].Bids[0].Price != "0.45" {
		t.Fatalf("unexpected bids: %#v", events[0].Bids)
	}
	if events[1].Type != EventPriceChange {
		t.Fatalf("unexpected second event: %#v", events[1])
	}
	if events[1].Changes[0].Price != 0.52 || events[1].Changes[0].Side != "SELL" {
		t.Fatalf("unexpected change: %#v", events[1].Changes[0])
	}
}

func TestParseBookEventsSingleObject(t *testing.T) {
	raw := json.RawMessage(`{"event_type":"book","asset_id":"111","bids":[],"asks":[]}`)
	events := ParseBookEvents(raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestParseBookEventsGarbage(t *testing.T) {
	if events := ParseBookEvents(json.RawMessage(`"hello"`)); events != nil {
		t.Fatalf("expected nil for non-object frame, got %#v", events)
	}
}

func TestParseUserEvents(t *testing.T) {
	raw := json.RawMessage(`[
		{"event_type":"trade","id":"t1","taker_order_id":"o1","asset_id":"111","market":"0xc0ffee","side":"BUY","price":"0.45","size":"5","status":"MATCHED","match_time":"1735690000"},
		{"event_type":"order","id":"o2","asset_id":"222","market":"0xc0ffee","type":"CANCELLATION","status":"CANCELED","size_matched":"0"}
	]`)
	trades, orders := ParseUserEvents(raw)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	trade := trades[0]
	if trade.TakerOrderID != "o1" || trade.Side != "BUY" || trade.Price != 0.45 || trade.Size != 5 {
		t.Fatalf("unexpected trade: %#v", trade)
	}
	if trade.Time.Unix() != 1735690000 {
		t.Fatalf("unexpected trade time: %v", trade.Time)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order update, got %d", len(orders))
	}
	if orders[0].Kind != "CANCELLATION" || orders[0].OrderID != "o2" {
		t.Fatalf("unexpected order update: %#v", orders[0])
	}
}

func TestParseUserEventsMakerOrders(t *testing.T) {
	raw := json.RawMessage(`[
		{"event_type":"trade","id":"t2","taker_order_id":"o-taker","asset_id":"111","side":"SELL","price":"0.45","size":"5",
		 "maker_orders":[
			{"order_id":"o-mine","asset_id":"111","side":"BUY","price":"0.45","matched_amount":"5"},
			{"order_id":"o-zero","asset_id":"111","price":"0.45","matched_amount":"0"}
		 ]}
	]`)
	trades, _ := ParseUserEvents(raw)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	makers := trades[0].MakerOrders
	if len(makers) != 1 {
		t.Fatalf("zero-amount maker fragments must be dropped, got %#v", makers)
	}
	m := makers[0]
	if m.OrderID != "o-mine" || m.Side != "BUY" || m.Price != 0.45 || m.Size != 5 {
		t.Fatalf("unexpected maker fragment: %#v", m)
	}
}

func TestParseUserEventsRejectsBadTrade(t *testing.T) {
	raw := json.RawMessage(`[{"event_type":"trade","asset_id":"111","price":"0.45","size":"0"}]`)
	trades, _ := ParseUserEvents(raw)
	if len(trades) != 0 {
		t.Fatalf("zero-size trade must be dropped, got %#v", trades)
	}
}
