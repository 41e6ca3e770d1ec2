package stream

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Book sides.
const (
	SideYes = "yes"
	SideNo  = "no"
)

var one = decimal.NewFromInt(1)

// Orderbook maintains one market's book from snapshot and delta updates.
// Both sides hold bids; a YES ask is implied by the best NO bid.
// It is not safe for concurrent use.
type Orderbook struct {
	Ticker string

	yes map[string]bookLevel
	no  map[string]bookLevel
}

type bookLevel struct {
	price decimal.Decimal
	qty   int64
}

// NewOrderbook returns an empty book for ticker.
func NewOrderbook(ticker string) *Orderbook {
	return &Orderbook{
		Ticker: ticker,
		yes:    make(map[string]bookLevel),
		no:     make(map[string]bookLevel),
	}
}

// ApplySnapshot replaces the book.
func (b *Orderbook) ApplySnapshot(s OrderbookSnapshot) error {
	if s.MarketTicker != b.Ticker {
		return fmt.Errorf("snapshot for %s applied to book %s", s.MarketTicker, b.Ticker)
	}
	b.yes = make(map[string]bookLevel, len(s.Yes))
	b.no = make(map[string]bookLevel, len(s.No))
	for _, l := range s.Yes {
		b.set(b.yes, l.Price(), l.Quantity)
	}
	for _, l := range s.No {
		b.set(b.no, l.Price(), l.Quantity)
	}
	return nil
}

// ApplyDelta adjusts one level. A level whose quantity drops to zero or
// below is removed.
func (b *Orderbook) ApplyDelta(d OrderbookDelta) error {
	if d.MarketTicker != b.Ticker {
		return fmt.Errorf("delta for %s applied to book %s", d.MarketTicker, b.Ticker)
	}

	var side map[string]bookLevel
	switch d.Side {
	case SideYes:
		side = b.yes
	case SideNo:
		side = b.no
	default:
		return fmt.Errorf("unknown book side %q", d.Side)
	}

	price := deltaPrice(d)
	key := price.String()
	b.set(side, price, side[key].qty+d.Delta)
	return nil
}

func (b *Orderbook) set(side map[string]bookLevel, price decimal.Decimal, qty int64) {
	key := price.String()
	if qty <= 0 {
		delete(side, key)
		return
	}
	side[key] = bookLevel{price: price, qty: qty}
}

func deltaPrice(d OrderbookDelta) decimal.Decimal {
	if d.PriceDollars != "" {
		return Dollars(d.PriceDollars)
	}
	return decimal.New(int64(d.Price), -2)
}

// Levels returns a side's bids from best to worst.
func (b *Orderbook) Levels(side string) []PriceLevel {
	var m map[string]bookLevel
	switch side {
	case SideYes:
		m = b.yes
	case SideNo:
		m = b.no
	default:
		return nil
	}

	levels := make([]bookLevel, 0, len(m))
	for _, l := range m {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].price.GreaterThan(levels[j].price) })

	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Dollars: l.price.StringFixed(2), Quantity: l.qty}
		if !l.price.Equal(l.price.Round(2)) {
			out[i].Dollars = l.price.String()
		}
	}
	return out
}

// BestYesBid returns the highest YES bid.
func (b *Orderbook) BestYesBid() (PriceLevel, bool) {
	return best(b.Levels(SideYes))
}

// BestNoBid returns the highest NO bid.
func (b *Orderbook) BestNoBid() (PriceLevel, bool) {
	return best(b.Levels(SideNo))
}

// BestYesAsk returns the implied YES ask, one dollar minus the best NO bid.
func (b *Orderbook) BestYesAsk() (decimal.Decimal, bool) {
	l, ok := b.BestNoBid()
	if !ok {
		return decimal.Zero, false
	}
	return one.Sub(l.Price()), true
}

// Spread returns the implied YES ask minus the best YES bid.
func (b *Orderbook) Spread() (decimal.Decimal, bool) {
	bid, ok := b.BestYesBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := b.BestYesAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Sub(bid.Price()), true
}

func best(levels []PriceLevel) (PriceLevel, bool) {
	if len(levels) == 0 {
		return PriceLevel{}, false
	}
	return levels[0], true
}
