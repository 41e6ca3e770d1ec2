package stream

import (
	"sort"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

// Channel names a websocket data feed.
type Channel string

const (
	ChannelOrderbookDelta  Channel = "orderbook_delta"
	ChannelTicker          Channel = "ticker"
	ChannelTrade           Channel = "trade"
	ChannelMarketLifecycle Channel = "market_lifecycle_v2"
	ChannelFill            Channel = "fill"
	ChannelMarketPositions Channel = "market_positions"
	ChannelCommunications  Channel = "communications"
	ChannelMultivariate    Channel = "multivariate"
)

// TickerPolicy describes how a channel treats market tickers.
type TickerPolicy int

const (
	// TickersRequired marks market-scoped channels: at least one ticker.
	TickersRequired TickerPolicy = iota
	// TickersOptional marks user-scoped channels that accept a ticker filter.
	TickersOptional
	// TickersForbidden marks user-scoped channels that take no tickers.
	TickersForbidden
)

func (p TickerPolicy) String() string {
	switch p {
	case TickersRequired:
		return "required"
	case TickersOptional:
		return "optional"
	case TickersForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

var channelPolicies = map[Channel]TickerPolicy{
	ChannelOrderbookDelta:  TickersRequired,
	ChannelTicker:          TickersRequired,
	ChannelTrade:           TickersRequired,
	ChannelMarketLifecycle: TickersRequired,
	ChannelFill:            TickersOptional,
	ChannelMarketPositions: TickersOptional,
	ChannelCommunications:  TickersForbidden,
	ChannelMultivariate:    TickersForbidden,
}

// Channels returns every known channel in a stable order.
func Channels() []Channel {
	return []Channel{
		ChannelOrderbookDelta,
		ChannelTicker,
		ChannelTrade,
		ChannelMarketLifecycle,
		ChannelFill,
		ChannelMarketPositions,
		ChannelCommunications,
		ChannelMultivariate,
	}
}

// ParseChannel maps a wire name to a Channel.
func ParseChannel(name string) (Channel, error) {
	ch := Channel(name)
	if !ch.Valid() {
		return "", errs.Validation("unknown channel %q", name)
	}
	return ch, nil
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	_, ok := channelPolicies[c]
	return ok
}

// TickerPolicy returns the channel's scoping rule.
func (c Channel) TickerPolicy() TickerPolicy {
	return channelPolicies[c]
}

// MarketScoped reports whether the channel requires tickers.
func (c Channel) MarketScoped() bool {
	return c.Valid() && c.TickerPolicy() == TickersRequired
}

// RequiresAuth reports whether the channel streams account data.
func (c Channel) RequiresAuth() bool {
	switch c {
	case ChannelFill, ChannelMarketPositions, ChannelCommunications:
		return true
	}
	return false
}

// validateTickers checks tickers against the channel's policy and returns them
// sorted with duplicates removed.
func (c Channel) validateTickers(tickers []string) ([]string, error) {
	if !c.Valid() {
		return nil, errs.Validation("unknown channel %q", string(c))
	}

	for _, t := range tickers {
		if t == "" {
			return nil, errs.Validation("channel %s: empty market ticker", c)
		}
	}
	unique := uniqueSorted(tickers)

	switch c.TickerPolicy() {
	case TickersRequired:
		if len(unique) == 0 {
			return nil, errs.Validation("channel %s requires at least one market ticker", c)
		}
	case TickersForbidden:
		if len(unique) > 0 {
			return nil, errs.Validation("channel %s does not accept market tickers", c)
		}
	}
	return unique, nil
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
