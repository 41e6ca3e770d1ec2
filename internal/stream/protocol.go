package stream

import (
	"encoding/json"
	"fmt"
)

// Command names.
const (
	cmdSubscribe          = "subscribe"
	cmdUnsubscribe        = "unsubscribe"
	cmdUpdateSubscription = "update_subscription"
)

// update_subscription actions.
const (
	actionAddMarkets    = "add_markets"
	actionDeleteMarkets = "delete_markets"
)

// Confirmation frame types.
const (
	typeSubscribed   = "subscribed"
	typeUnsubscribed = "unsubscribed"
	typeOK           = "ok"
	typeError        = "error"
)

// command is a websocket command sent to the server.
type command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// subscribeParams are parameters for a subscribe command.
// A single ticker travels in MarketTicker, several in MarketTickers.
type subscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTicker  string   `json:"market_ticker,omitempty"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// unsubscribeParams are parameters for an unsubscribe command.
type unsubscribeParams struct {
	SIDs []int64 `json:"sids"`
}

// updateSubscriptionParams add or remove markets on an existing sid.
type updateSubscriptionParams struct {
	SIDs          []int64  `json:"sids"`
	MarketTickers []string `json:"market_tickers"`
	Action        string   `json:"action"`
}

func newSubscribeParams(channels []Channel, tickers []string) subscribeParams {
	p := subscribeParams{Channels: make([]string, len(channels))}
	for i, ch := range channels {
		p.Channels[i] = string(ch)
	}
	switch len(tickers) {
	case 0:
	case 1:
		p.MarketTicker = tickers[0]
	default:
		p.MarketTickers = tickers
	}
	return p
}

// frame is any inbound text message. Confirmations carry an id, updates a sid.
type frame struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	SID  int64           `json:"sid"`
	Seq  *int64          `json:"seq,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

// isConfirmation reports whether f answers a command.
func (f *frame) isConfirmation() bool {
	switch f.Type {
	case typeSubscribed, typeUnsubscribed, typeOK:
		return f.ID != 0
	case typeError:
		return true
	}
	return false
}

// subscribedMsg is the msg body of a "subscribed" confirmation.
type subscribedMsg struct {
	Channel string `json:"channel"`
	SID     int64  `json:"sid"`
}

// errorMsg is the msg body of an "error" confirmation.
type errorMsg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &f, nil
}

// confirmedSID returns the sid a confirmation refers to. "subscribed" puts it
// in msg, "ok" and "unsubscribed" at the top level.
func (f *frame) confirmedSID() (int64, string, error) {
	if f.Type == typeSubscribed {
		var m subscribedMsg
		if err := json.Unmarshal(f.Msg, &m); err != nil {
			return 0, "", fmt.Errorf("decode subscribed msg: %w", err)
		}
		return m.SID, m.Channel, nil
	}
	sid := f.SID
	if sid == 0 && len(f.Msg) > 0 {
		var m subscribedMsg
		if json.Unmarshal(f.Msg, &m) == nil {
			sid = m.SID
		}
	}
	return sid, "", nil
}

func (f *frame) commandError() *CommandError {
	var m errorMsg
	if err := json.Unmarshal(f.Msg, &m); err != nil || m.Msg == "" {
		m.Msg = string(f.Msg)
	}
	return &CommandError{RequestID: f.ID, Code: m.Code, Message: m.Msg}
}
