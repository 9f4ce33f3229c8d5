package rest

import "encoding/json"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Market is the resolved trading surface for one window.
type Market struct {
	ConditionID string
	Slug        string
	Question    string
	UpTokenID   string
	DownTokenID string
	TickSize    float64
	NegRisk     bool
	Active      bool
	Closed      bool
}

// BookLevel is one price level; the API sends decimals as strings.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type Book struct {
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp string      `json:"timestamp"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
}

type bookRequest struct {
	TokenID string `json:"token_id"`
}

// OrderRequest is a limit order submission. ClientID is caller supplied
// and reused on retries so the exchange can dedupe.
type OrderRequest struct {
	ClientID string  `json:"client_id"`
	TokenID  string  `json:"token_id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Type     string  `json:"order_type"`
	NegRisk  bool    `json:"neg_risk"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Error   string `json:"errorMsg"`
}

// OrderStatus mirrors GET /data/order/{id}.
type OrderStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         Side   `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// Position is one row of the data API positions view.
type Position struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	TotalBought  float64 `json:"totalBought"`
	CurPrice     float64 `json:"curPrice"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Redeemable   bool    `json:"redeemable"`
	Slug         string  `json:"slug"`
}

// gammaMarket is the raw row from the gamma /markets endpoint. Token ids
// and outcomes arrive as JSON-encoded arrays inside strings.
type gammaMarket struct {
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	Slug         string      `json:"slug"`
	ClobTokenIDs string      `json:"clobTokenIds"`
	Outcomes     string      `json:"outcomes"`
	TickSize     json.Number `json:"orderPriceMinTickSize"`
	NegRisk      bool        `json:"negRisk"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}
