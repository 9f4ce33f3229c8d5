package ws

// MarketSubscription subscribes to book and price_change events for the
// given outcome tokens.
type MarketSubscription struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

func NewMarketSubscription(tokenIDs []string) MarketSubscription {
	return MarketSubscription{Type: "market", AssetsIDs: tokenIDs}
}

// UserSubscription subscribes to the account's order and trade events.
type UserSubscription struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
	Auth    UserAuth `json:"auth"`
}

type UserAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func NewUserSubscription(conditionIDs []string, auth UserAuth) UserSubscription {
	return UserSubscription{Type: "user", Markets: conditionIDs, Auth: auth}
}
