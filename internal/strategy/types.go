package strategy

import (
	"time"

	"updown-hedge-bot/internal/ledger"
	"updown-hedge-bot/internal/market"
)

type State string

type Event string

const (
	StateIdle        State = "IDLE"
	StateBiddingUp   State = "BIDDING_UP"
	StateBiddingDown State = "BIDDING_DOWN"
	StateExiting     State = "EXITING"
)

const (
	EventBidUp    Event = "BID_UP"
	EventBidDown  Event = "BID_DOWN"
	EventPairDone Event = "PAIR_DONE"
	EventAbandon  Event = "ABANDON"
	EventExit     Event = "EXIT"
	EventDone     Event = "DONE"
)

// MarketSnapshot is everything a tick decision needs about one market.
type MarketSnapshot struct {
	Market   string
	Window   market.Window
	TickSize float64
	UpQuote  market.Quote
	DownQuote market.Quote
	Position ledger.MarketPosition
	Now      time.Time
}

func (s MarketSnapshot) QuoteFor(outcome ledger.Outcome) market.Quote {
	if outcome == ledger.OutcomeDown {
		return s.DownQuote
	}
	return s.UpQuote
}

// OrderIntent is a priced and sized order the runner should place.
type OrderIntent struct {
	Outcome ledger.Outcome
	Side    ledger.Side
	Price   float64
	Size    float64
}
