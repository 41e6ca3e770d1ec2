package api

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

var (
	minPrice = decimal.Zero
	maxPrice = decimal.NewFromInt(1)
)

// Validate checks an order locally, before it costs any rate budget.
// Errors wrap errs.ErrValidation.
func (r *CreateOrderRequest) Validate() error {
	if r.Ticker == "" {
		return errs.Validation("ticker is required")
	}
	switch r.Side {
	case SideYes, SideNo:
	default:
		return errs.Validation("%s: side must be yes or no, got %q", r.Ticker, r.Side)
	}
	switch r.Action {
	case ActionBuy, ActionSell:
	default:
		return errs.Validation("%s: action must be buy or sell, got %q", r.Ticker, r.Action)
	}
	if r.Count < 1 {
		return errs.Validation("%s: count must be at least 1, got %d", r.Ticker, r.Count)
	}
	switch r.TimeInForce {
	case "", TimeInForceFillOrKill, TimeInForceGoodTillCanceled, TimeInForceImmediateOrCancel:
	default:
		return errs.Validation("%s: unknown time_in_force %q", r.Ticker, r.TimeInForce)
	}

	prices := 0
	for _, cents := range []*int{r.YesPrice, r.NoPrice} {
		if cents == nil {
			continue
		}
		prices++
		if *cents < 1 || *cents > 99 {
			return errs.Validation("%s: price must be between 1 and 99 cents, got %d", r.Ticker, *cents)
		}
	}
	for _, dollars := range []string{r.YesPriceDollars, r.NoPriceDollars} {
		if dollars == "" {
			continue
		}
		prices++
		d, err := decimal.NewFromString(dollars)
		if err != nil {
			return errs.Validation("%s: invalid dollar price %q", r.Ticker, dollars)
		}
		if !d.GreaterThan(minPrice) || !d.LessThan(maxPrice) {
			return errs.Validation("%s: dollar price must be between 0 and 1, got %s", r.Ticker, dollars)
		}
	}
	if prices > 1 {
		return errs.Validation("%s: set only one price field", r.Ticker)
	}

	switch r.Type {
	case "", OrderTypeLimit:
		if prices == 0 {
			return errs.Validation("%s: limit order needs a price", r.Ticker)
		}
	case OrderTypeMarket:
	default:
		return errs.Validation("%s: type must be limit or market, got %q", r.Ticker, r.Type)
	}
	return nil
}
