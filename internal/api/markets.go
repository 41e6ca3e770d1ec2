package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// maxMarketsPage is the largest page GET /markets serves.
const maxMarketsPage = 1000

func (o GetMarketsOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if o.EventTicker != "" {
		q.Set("event_ticker", o.EventTicker)
	}
	if o.SeriesTicker != "" {
		q.Set("series_ticker", o.SeriesTicker)
	}
	if len(o.Tickers) > 0 {
		q.Set("tickers", strings.Join(o.Tickers, ","))
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	return q
}

// GetMarkets fetches one page of markets.
func (c *Client) GetMarkets(ctx context.Context, opts GetMarketsOptions) (*MarketsResponse, error) {
	var resp MarketsResponse
	if err := c.get(ctx, "/markets", opts.query(), &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	return &resp, nil
}

// ListMarkets follows the cursor until every market matching opts is read.
// opts.Limit and opts.Cursor are ignored.
func (c *Client) ListMarkets(ctx context.Context, opts GetMarketsOptions) ([]APIMarket, error) {
	opts.Limit = maxMarketsPage
	opts.Cursor = ""

	var markets []APIMarket
	for {
		resp, err := c.GetMarkets(ctx, opts)
		if err != nil {
			return nil, err
		}
		markets = append(markets, resp.Markets...)
		if resp.Cursor == "" {
			return markets, nil
		}
		opts.Cursor = resp.Cursor
	}
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*APIMarket, error) {
	var resp SingleMarketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return &resp.Market, nil
}

// GetOrderbook fetches a market's resting bids. depth 0 asks for the full book.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*OrderbookResponse, error) {
	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}

	var resp OrderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", query, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}
	return &resp, nil
}
