package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Update is one decoded frame, or a message synthesized by the session.
type Update struct {
	Channel    Channel // Empty for session-level messages
	SID        int64   // 0 for session-level messages
	Seq        int64   // 0 when the frame carries no sequence number
	Msg        Message
	ReceivedAt time.Time

	// SeqGap is set when Seq skipped ahead of the previous value for this sid.
	// Detection is best effort; the session never acts on it.
	SeqGap  bool
	GapSize int64
}

// Message is the closed set of payloads an Update can carry.
// Use a Visitor to handle every variant.
type Message interface {
	// Kind returns the wire type, or a local name for synthesized messages.
	Kind() string
	Accept(v Visitor)
	isMessage()
}

// Visitor has one method per Message variant. Adding a variant adds a method,
// so implementations stop compiling until they handle it.
type Visitor interface {
	OrderbookSnapshot(OrderbookSnapshot)
	OrderbookDelta(OrderbookDelta)
	Ticker(Ticker)
	Trade(Trade)
	Fill(Fill)
	MarketPosition(MarketPosition)
	MarketLifecycle(MarketLifecycle)
	RfqCreated(RfqCreated)
	RfqDeleted(RfqDeleted)
	QuoteCreated(QuoteCreated)
	QuoteAccepted(QuoteAccepted)
	Unknown(Unknown)
	Unsubscribed(Unsubscribed)
	Closed(Closed)
	ConnectionLost(ConnectionLost)
}

// Wire message types.
const (
	KindOrderbookSnapshot = "orderbook_snapshot"
	KindOrderbookDelta    = "orderbook_delta"
	KindTicker            = "ticker"
	KindTrade             = "trade"
	KindFill              = "fill"
	KindMarketPosition    = "market_position"
	KindMarketLifecycle   = "market_lifecycle_v2"
	KindRfqCreated        = "rfq_created"
	KindRfqDeleted        = "rfq_deleted"
	KindQuoteCreated      = "quote_created"
	KindQuoteAccepted     = "quote_accepted"

	// Synthesized locally
	KindUnsubscribed   = "unsubscribed"
	KindClosed         = "closed"
	KindConnectionLost = "connection_lost"
)

// kindChannel maps a wire type to its channel, used when the sid is unknown.
var kindChannel = map[string]Channel{
	KindOrderbookSnapshot: ChannelOrderbookDelta,
	KindOrderbookDelta:    ChannelOrderbookDelta,
	KindTicker:            ChannelTicker,
	KindTrade:             ChannelTrade,
	KindFill:              ChannelFill,
	KindMarketPosition:    ChannelMarketPositions,
	KindMarketLifecycle:   ChannelMarketLifecycle,
	KindRfqCreated:        ChannelCommunications,
	KindRfqDeleted:        ChannelCommunications,
	KindQuoteCreated:      ChannelCommunications,
	KindQuoteAccepted:     ChannelCommunications,
}

// PriceLevel is one side of a book level.
type PriceLevel struct {
	Dollars  string // e.g. "0.52" or "0.5250" for subpenny markets
	Quantity int64
}

// Price returns the level price in dollars.
func (l PriceLevel) Price() decimal.Decimal { return Dollars(l.Dollars) }

// OrderbookSnapshot is the full book sent after subscribing to orderbook_delta.
type OrderbookSnapshot struct {
	MarketTicker string
	Yes          []PriceLevel // YES bids
	No           []PriceLevel // NO bids
}

// OrderbookDelta is an incremental change to one price level.
type OrderbookDelta struct {
	MarketTicker  string `json:"market_ticker"`
	Price         int    `json:"price"`
	PriceDollars  string `json:"price_dollars"`
	Delta         int64  `json:"delta"`
	Side          string `json:"side"` // "yes" or "no"
	ClientOrderID string `json:"client_order_id,omitempty"`
	Ts            int64  `json:"ts"`
}

// Ticker is a market price summary.
type Ticker struct {
	MarketTicker       string `json:"market_ticker"`
	Price              int    `json:"price"`
	YesBid             int    `json:"yes_bid"`
	YesAsk             int    `json:"yes_ask"`
	PriceDollars       string `json:"price_dollars"`
	YesBidDollars      string `json:"yes_bid_dollars"`
	YesAskDollars      string `json:"yes_ask_dollars"`
	NoBidDollars       string `json:"no_bid_dollars"`
	Volume             int64  `json:"volume"`
	OpenInterest       int64  `json:"open_interest"`
	DollarVolume       int64  `json:"dollar_volume"`
	DollarOpenInterest int64  `json:"dollar_open_interest"`
	Ts                 int64  `json:"ts"`
}

// Trade is a public execution.
type Trade struct {
	TradeID         string `json:"trade_id"`
	MarketTicker    string `json:"market_ticker"`
	YesPrice        int    `json:"yes_price"`
	NoPrice         int    `json:"no_price"`
	YesPriceDollars string `json:"yes_price_dollars"`
	NoPriceDollars  string `json:"no_price_dollars"`
	Count           int64  `json:"count"`
	TakerSide       string `json:"taker_side"`
	Ts              int64  `json:"ts"`
}

// Fill is an execution against one of the account's orders.
type Fill struct {
	TradeID         string `json:"trade_id"`
	OrderID         string `json:"order_id"`
	MarketTicker    string `json:"market_ticker"`
	IsTaker         bool   `json:"is_taker"`
	Side            string `json:"side"`
	Action          string `json:"action"`
	YesPrice        int    `json:"yes_price"`
	YesPriceDollars string `json:"yes_price_dollars"`
	Count           int64  `json:"count"`
	Ts              int64  `json:"ts"`
	ClientOrderID   string `json:"client_order_id,omitempty"`
	PostPosition    *int64 `json:"post_position,omitempty"`
	PurchasedSide   string `json:"purchased_side,omitempty"`
}

// MarketPosition is an account position change. Monetary fields are centi-cents.
type MarketPosition struct {
	UserID       string `json:"user_id"`
	MarketTicker string `json:"market_ticker"`
	Position     int64  `json:"position"`
	PositionCost int64  `json:"position_cost"`
	RealizedPnl  int64  `json:"realized_pnl"`
	FeesPaid     int64  `json:"fees_paid"`
	Volume       int64  `json:"volume"`
}

// MarketMetadata accompanies a lifecycle "created" event.
type MarketMetadata struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	YesSubtitle   string `json:"yes_subtitle"`
	NoSubtitle    string `json:"no_subtitle"`
	Rules         string `json:"rules"`
	CanCloseEarly bool   `json:"can_close_early"`
	ExpirationTs  int64  `json:"expiration_ts"`
	StrikeType    string `json:"strike_type"`
	StrikeValue   string `json:"strike_value"`
}

// MarketLifecycle reports a market state transition.
type MarketLifecycle struct {
	EventType          string          `json:"event_type"` // created, activated, deactivated, close_date_updated, determined, settled
	MarketTicker       string          `json:"market_ticker"`
	OpenTs             int64           `json:"open_ts,omitempty"`
	CloseTs            int64           `json:"close_ts,omitempty"`
	Result             string          `json:"result,omitempty"`
	DeterminationTs    int64           `json:"determination_ts,omitempty"`
	SettledTs          int64           `json:"settled_ts,omitempty"`
	IsDeactivated      bool            `json:"is_deactivated,omitempty"`
	AdditionalMetadata *MarketMetadata `json:"additional_metadata,omitempty"`
}

// MveLeg is one leg of a multivariate RFQ.
type MveLeg struct {
	EventTicker  string `json:"event_ticker"`
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"`
}

// RfqCreated announces a new request for quote.
type RfqCreated struct {
	ID                  string   `json:"id"`
	CreatorID           string   `json:"creator_id"`
	MarketTicker        string   `json:"market_ticker"`
	EventTicker         string   `json:"event_ticker,omitempty"`
	Contracts           int64    `json:"contracts,omitempty"`
	TargetCost          int64    `json:"target_cost,omitempty"`
	TargetCostDollars   string   `json:"target_cost_dollars,omitempty"`
	MveCollectionTicker string   `json:"mve_collection_ticker,omitempty"`
	MveSelectedLegs     []MveLeg `json:"mve_selected_legs,omitempty"`
	CreatedTs           string   `json:"created_ts"`
}

// RfqDeleted announces a withdrawn request for quote.
type RfqDeleted struct {
	ID           string `json:"id"`
	CreatorID    string `json:"creator_id"`
	MarketTicker string `json:"market_ticker"`
	EventTicker  string `json:"event_ticker,omitempty"`
	DeletedTs    string `json:"deleted_ts"`
}

// QuoteCreated announces a quote on an RFQ.
type QuoteCreated struct {
	QuoteID              string `json:"quote_id"`
	RfqID                string `json:"rfq_id"`
	QuoteCreatorID       string `json:"quote_creator_id"`
	RfqCreatorID         string `json:"rfq_creator_id"`
	MarketTicker         string `json:"market_ticker"`
	EventTicker          string `json:"event_ticker,omitempty"`
	YesBid               int    `json:"yes_bid"`
	NoBid                int    `json:"no_bid"`
	YesBidDollars        string `json:"yes_bid_dollars"`
	NoBidDollars         string `json:"no_bid_dollars"`
	YesContractsOffered  int64  `json:"yes_contracts_offered,omitempty"`
	NoContractsOffered   int64  `json:"no_contracts_offered,omitempty"`
	RfqTargetCost        int64  `json:"rfq_target_cost,omitempty"`
	RfqTargetCostDollars string `json:"rfq_target_cost_dollars,omitempty"`
	CreatedTs            string `json:"created_ts"`
}

// QuoteAccepted announces that a quote was accepted.
type QuoteAccepted struct {
	QuoteID              string `json:"quote_id"`
	RfqID                string `json:"rfq_id"`
	QuoteCreatorID       string `json:"quote_creator_id"`
	RfqCreatorID         string `json:"rfq_creator_id"`
	MarketTicker         string `json:"market_ticker"`
	EventTicker          string `json:"event_ticker,omitempty"`
	YesBid               int    `json:"yes_bid"`
	NoBid                int    `json:"no_bid"`
	YesBidDollars        string `json:"yes_bid_dollars"`
	NoBidDollars         string `json:"no_bid_dollars"`
	YesContractsOffered  int64  `json:"yes_contracts_offered,omitempty"`
	NoContractsOffered   int64  `json:"no_contracts_offered,omitempty"`
	RfqTargetCost        int64  `json:"rfq_target_cost,omitempty"`
	RfqTargetCostDollars string `json:"rfq_target_cost_dollars,omitempty"`
	AcceptedSide         string `json:"accepted_side,omitempty"`
}

// Unknown carries a frame whose type this client does not decode.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

// Unsubscribed is published when the server confirms a subscription is gone.
type Unsubscribed struct {
	Subscription Subscription
}

// Closed is the last update of a session closed by the caller.
type Closed struct {
	Reason string
}

// ConnectionLost is the last update of a session that failed. Snapshot holds
// the subscriptions that were active, for resubscribing on a new session.
type ConnectionLost struct {
	Reason   string
	Snapshot Snapshot
}

func (OrderbookSnapshot) Kind() string { return KindOrderbookSnapshot }
func (OrderbookDelta) Kind() string    { return KindOrderbookDelta }
func (Ticker) Kind() string            { return KindTicker }
func (Trade) Kind() string             { return KindTrade }
func (Fill) Kind() string              { return KindFill }
func (MarketPosition) Kind() string    { return KindMarketPosition }
func (MarketLifecycle) Kind() string   { return KindMarketLifecycle }
func (RfqCreated) Kind() string        { return KindRfqCreated }
func (RfqDeleted) Kind() string        { return KindRfqDeleted }
func (QuoteCreated) Kind() string      { return KindQuoteCreated }
func (QuoteAccepted) Kind() string     { return KindQuoteAccepted }
func (m Unknown) Kind() string         { return m.Type }
func (Unsubscribed) Kind() string      { return KindUnsubscribed }
func (Closed) Kind() string            { return KindClosed }
func (ConnectionLost) Kind() string    { return KindConnectionLost }

func (m OrderbookSnapshot) Accept(v Visitor) { v.OrderbookSnapshot(m) }
func (m OrderbookDelta) Accept(v Visitor)    { v.OrderbookDelta(m) }
func (m Ticker) Accept(v Visitor)            { v.Ticker(m) }
func (m Trade) Accept(v Visitor)             { v.Trade(m) }
func (m Fill) Accept(v Visitor)              { v.Fill(m) }
func (m MarketPosition) Accept(v Visitor)    { v.MarketPosition(m) }
func (m MarketLifecycle) Accept(v Visitor)   { v.MarketLifecycle(m) }
func (m RfqCreated) Accept(v Visitor)        { v.RfqCreated(m) }
func (m RfqDeleted) Accept(v Visitor)        { v.RfqDeleted(m) }
func (m QuoteCreated) Accept(v Visitor)      { v.QuoteCreated(m) }
func (m QuoteAccepted) Accept(v Visitor)     { v.QuoteAccepted(m) }
func (m Unknown) Accept(v Visitor)           { v.Unknown(m) }
func (m Unsubscribed) Accept(v Visitor)      { v.Unsubscribed(m) }
func (m Closed) Accept(v Visitor)            { v.Closed(m) }
func (m ConnectionLost) Accept(v Visitor)    { v.ConnectionLost(m) }

func (OrderbookSnapshot) isMessage() {}
func (OrderbookDelta) isMessage()    {}
func (Ticker) isMessage()            {}
func (Trade) isMessage()             {}
func (Fill) isMessage()              {}
func (MarketPosition) isMessage()    {}
func (MarketLifecycle) isMessage()   {}
func (RfqCreated) isMessage()        {}
func (RfqDeleted) isMessage()        {}
func (QuoteCreated) isMessage()      {}
func (QuoteAccepted) isMessage()     {}
func (Unknown) isMessage()           {}
func (Unsubscribed) isMessage()      {}
func (Closed) isMessage()            {}
func (ConnectionLost) isMessage()    {}

// Terminal reports whether m ends the session's update stream.
func Terminal(m Message) bool {
	switch m.(type) {
	case Closed, ConnectionLost:
		return true
	}
	return false
}

// Dollars parses a *_dollars field. Empty or malformed input yields zero.
func Dollars(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// orderbookSnapshotWire is the msg body of an orderbook_snapshot frame.
// Levels arrive as [price_cents, qty] and [price_dollars, qty] pairs.
type orderbookSnapshotWire struct {
	MarketTicker string          `json:"market_ticker"`
	Yes          [][2]int64      `json:"yes"`
	YesDollars   [][]interface{} `json:"yes_dollars"`
	No           [][2]int64      `json:"no"`
	NoDollars    [][]interface{} `json:"no_dollars"`
}

func (w *orderbookSnapshotWire) levels(cents [][2]int64, dollars [][]interface{}) []PriceLevel {
	if len(dollars) > 0 {
		out := make([]PriceLevel, 0, len(dollars))
		for _, level := range dollars {
			if len(level) < 2 {
				continue
			}
			price, ok := level[0].(string)
			if !ok {
				continue
			}
			qty, ok := level[1].(float64)
			if !ok {
				continue
			}
			out = append(out, PriceLevel{Dollars: price, Quantity: int64(qty)})
		}
		return out
	}
	out := make([]PriceLevel, 0, len(cents))
	for _, level := range cents {
		out = append(out, PriceLevel{
			Dollars:  decimal.New(level[0], -2).StringFixed(2),
			Quantity: level[1],
		})
	}
	return out
}

// decodeMessage decodes the msg body of an update frame of the given type.
func decodeMessage(typ string, raw json.RawMessage) (Message, error) {
	var (
		msg Message
		err error
	)

	switch typ {
	case KindOrderbookSnapshot:
		var w orderbookSnapshotWire
		if err = json.Unmarshal(raw, &w); err == nil {
			msg = OrderbookSnapshot{
				MarketTicker: w.MarketTicker,
				Yes:          w.levels(w.Yes, w.YesDollars),
				No:           w.levels(w.No, w.NoDollars),
			}
		}
	case KindOrderbookDelta:
		msg, err = decodeAs[OrderbookDelta](raw)
	case KindTicker:
		msg, err = decodeAs[Ticker](raw)
	case KindTrade:
		msg, err = decodeAs[Trade](raw)
	case KindFill:
		msg, err = decodeAs[Fill](raw)
	case KindMarketPosition:
		msg, err = decodeAs[MarketPosition](raw)
	case KindMarketLifecycle:
		msg, err = decodeAs[MarketLifecycle](raw)
	case KindRfqCreated:
		msg, err = decodeAs[RfqCreated](raw)
	case KindRfqDeleted:
		msg, err = decodeAs[RfqDeleted](raw)
	case KindQuoteCreated:
		msg, err = decodeAs[QuoteCreated](raw)
	case KindQuoteAccepted:
		msg, err = decodeAs[QuoteAccepted](raw)
	default:
		msg = Unknown{Type: typ, Raw: append(json.RawMessage(nil), raw...)}
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", typ, err)
	}
	return msg, nil
}

func decodeAs[T Message](raw json.RawMessage) (Message, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
