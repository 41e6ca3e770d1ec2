package api

// ExchangeStatusResponse from GET /exchange/status
type ExchangeStatusResponse struct {
	ExchangeActive      bool   `json:"exchange_active"`
	TradingActive       bool   `json:"trading_active"`
	EstimatedResumeTime string `json:"exchange_estimated_resume_time,omitempty"`
}

// MarketsResponse from GET /markets
type MarketsResponse struct {
	Markets []APIMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// APIMarket represents a market from the Kalshi API.
type APIMarket struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Status      string `json:"status"`
	MarketType  string `json:"market_type"`
	Result      string `json:"result"`

	// Prices in cents
	YesBid    int `json:"yes_bid"`
	YesAsk    int `json:"yes_ask"`
	NoBid     int `json:"no_bid"`
	NoAsk     int `json:"no_ask"`
	LastPrice int `json:"last_price"`

	// Prices as strings (sub-penny)
	YesBidDollars    string `json:"yes_bid_dollars"`
	YesAskDollars    string `json:"yes_ask_dollars"`
	NoBidDollars     string `json:"no_bid_dollars"`
	NoAskDollars     string `json:"no_ask_dollars"`
	LastPriceDollars string `json:"last_price_dollars"`

	// Volume
	Volume       int64 `json:"volume"`
	Volume24h    int64 `json:"volume_24h"`
	OpenInterest int64 `json:"open_interest"`

	// Timestamps (ISO 8601)
	OpenTime       string `json:"open_time"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
	CreatedTime    string `json:"created_time"`

	// Settlement
	SettlementValue        *int    `json:"settlement_value"`
	SettlementValueDollars *string `json:"settlement_value_dollars"`
}

// SingleMarketResponse from GET /markets/{ticker}
type SingleMarketResponse struct {
	Market APIMarket `json:"market"`
}

// OrderbookResponse from GET /markets/{ticker}/orderbook
type OrderbookResponse struct {
	Orderbook APIOrderbook `json:"orderbook"`
}

// APIOrderbook represents the orderbook from the Kalshi API.
type APIOrderbook struct {
	// Levels as [price_cents, quantity] pairs
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`

	// Levels as [price_dollars, quantity] pairs
	YesDollars [][]any `json:"yes_dollars,omitempty"`
	NoDollars  [][]any `json:"no_dollars,omitempty"`
}

// GetMarketsOptions configures a GetMarkets request.
type GetMarketsOptions struct {
	Limit        int
	Cursor       string
	EventTicker  string
	SeriesTicker string
	Tickers      []string
	Status       string
}

// Order sides, actions and types.
const (
	SideYes = "yes"
	SideNo  = "no"

	ActionBuy  = "buy"
	ActionSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// Time in force values.
const (
	TimeInForceFillOrKill        = "fill_or_kill"
	TimeInForceGoodTillCanceled  = "good_till_canceled"
	TimeInForceImmediateOrCancel = "immediate_or_cancel"
)

// CreateOrderRequest is the body of POST /portfolio/orders and one element
// of a batch create.
type CreateOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int64  `json:"count"`
	Type          string `json:"type,omitempty"`

	// Limit price. Set exactly one of the four.
	YesPrice        *int   `json:"yes_price,omitempty"`
	NoPrice         *int   `json:"no_price,omitempty"`
	YesPriceDollars string `json:"yes_price_dollars,omitempty"`
	NoPriceDollars  string `json:"no_price_dollars,omitempty"`

	TimeInForce             string `json:"time_in_force,omitempty"`
	ExpirationTs            *int64 `json:"expiration_ts,omitempty"`
	BuyMaxCost              *int64 `json:"buy_max_cost,omitempty"`
	PostOnly                bool   `json:"post_only,omitempty"`
	ReduceOnly              bool   `json:"reduce_only,omitempty"`
	SelfTradePreventionType string `json:"self_trade_prevention_type,omitempty"`
	OrderGroupID            string `json:"order_group_id,omitempty"`
}

// Order is an order as reported by the API.
type Order struct {
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id,omitempty"`
	ClientOrderID   string `json:"client_order_id,omitempty"`
	Ticker          string `json:"ticker"`
	Side            string `json:"side"`
	Action          string `json:"action"`
	Type            string `json:"type"`
	Status          string `json:"status"` // resting, canceled, executed
	YesPrice        int    `json:"yes_price"`
	NoPrice         int    `json:"no_price"`
	YesPriceDollars string `json:"yes_price_dollars,omitempty"`
	NoPriceDollars  string `json:"no_price_dollars,omitempty"`
	FillCount       int64  `json:"fill_count"`
	RemainingCount  int64  `json:"remaining_count"`
	InitialCount    int64  `json:"initial_count"`
	CreatedTime     string `json:"created_time,omitempty"`
	LastUpdateTime  string `json:"last_update_time,omitempty"`
}

// OrderResponse from POST /portfolio/orders
type OrderResponse struct {
	Order Order `json:"order"`
}

// CancelOrderResponse from DELETE /portfolio/orders/{order_id}
type CancelOrderResponse struct {
	Order     Order `json:"order"`
	ReducedBy int64 `json:"reduced_by"`
}

// BatchOrderError is a per-order failure inside a batch response.
type BatchOrderError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BatchOrderError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// BatchCreateOrdersRequest is the body of POST /portfolio/orders/batched.
type BatchCreateOrdersRequest struct {
	Orders []CreateOrderRequest `json:"orders"`
}

// BatchOrderResult is one element of a batch create response.
type BatchOrderResult struct {
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Order         *Order           `json:"order,omitempty"`
	Error         *BatchOrderError `json:"error,omitempty"`
}

// BatchCreateOrdersResponse from POST /portfolio/orders/batched
type BatchCreateOrdersResponse struct {
	Orders []BatchOrderResult `json:"orders"`
}

// BatchCancelOrdersRequest is the body of DELETE /portfolio/orders/batched.
type BatchCancelOrdersRequest struct {
	IDs []string `json:"ids"`
}

// BatchCancelOrderResult is one element of a batch cancel response.
type BatchCancelOrderResult struct {
	OrderID   string           `json:"order_id,omitempty"`
	Order     *Order           `json:"order,omitempty"`
	ReducedBy int64            `json:"reduced_by,omitempty"`
	Error     *BatchOrderError `json:"error,omitempty"`
}

// BatchCancelOrdersResponse from DELETE /portfolio/orders/batched
type BatchCancelOrdersResponse struct {
	Orders []BatchCancelOrderResult `json:"orders"`
}
