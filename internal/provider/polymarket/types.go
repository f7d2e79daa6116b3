package polymarket

// API wire types for the public CLOB endpoints.

type marketsPage struct {
	Data       []marketSummary `json:"data"`
	NextCursor string          `json:"next_cursor"`
}

type marketSummary struct {
	ConditionID string `json:"condition_id"`
	MarketSlug  string `json:"market_slug"`
}

type market struct {
	ConditionID string  `json:"condition_id"`
	Question    string  `json:"question"`
	MarketSlug  string  `json:"market_slug"`
	Tokens      []token `json:"tokens"`
}

type token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

type orderBook struct {
	Market  string      `json:"market"`
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
