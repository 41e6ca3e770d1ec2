package main

import (
	"fmt"
	"sync/atomic"

	"github.com/rickgao/kalshi-trade/internal/stream"
)

// printer writes one console line per update and keeps a local book per
// ticker so deltas can be shown as a top of book.
type printer struct {
	verbose bool
	books   map[string]*stream.Orderbook
	count   atomic.Int64
}

func newPrinter(verbose bool) *printer {
	return &printer{
		verbose: verbose,
		books:   make(map[string]*stream.Orderbook),
	}
}

func (p *printer) book(ticker string) *stream.Orderbook {
	b, ok := p.books[ticker]
	if !ok {
		b = stream.NewOrderbook(ticker)
		p.books[ticker] = b
	}
	return b
}

func (p *printer) top(b *stream.Orderbook) string {
	bid, hasBid := b.BestYesBid()
	ask, hasAsk := b.BestYesAsk()
	switch {
	case hasBid && hasAsk:
		return fmt.Sprintf("bid=%s x%d ask=%s", bid.Dollars, bid.Quantity, ask.StringFixed(2))
	case hasBid:
		return fmt.Sprintf("bid=%s x%d ask=-", bid.Dollars, bid.Quantity)
	case hasAsk:
		return fmt.Sprintf("bid=- ask=%s", ask.StringFixed(2))
	}
	return "empty"
}

func (p *printer) OrderbookSnapshot(s stream.OrderbookSnapshot) {
	p.count.Add(1)
	b := p.book(s.MarketTicker)
	if err := b.ApplySnapshot(s); err != nil {
		fmt.Printf("[BOOK] %s: %v\n", s.MarketTicker, err)
		return
	}
	fmt.Printf("[BOOK] %s snapshot yes=%d no=%d %s\n", s.MarketTicker, len(s.Yes), len(s.No), p.top(b))
}

func (p *printer) OrderbookDelta(d stream.OrderbookDelta) {
	p.count.Add(1)
	b := p.book(d.MarketTicker)
	if err := b.ApplyDelta(d); err != nil {
		fmt.Printf("[BOOK] %s: %v\n", d.MarketTicker, err)
		return
	}
	if p.verbose {
		fmt.Printf("[BOOK] %s %s %+d @ %s %s\n", d.MarketTicker, d.Side, d.Delta, d.PriceDollars, p.top(b))
	}
}

func (p *printer) Ticker(t stream.Ticker) {
	p.count.Add(1)
	fmt.Printf("[TICKER] %s price=%s bid=%s ask=%s vol=%d oi=%d\n",
		t.MarketTicker, t.PriceDollars, t.YesBidDollars, t.YesAskDollars, t.Volume, t.OpenInterest)
}

func (p *printer) Trade(t stream.Trade) {
	p.count.Add(1)
	fmt.Printf("[TRADE] %s %s x%d yes=%s no=%s\n",
		t.MarketTicker, t.TakerSide, t.Count, t.YesPriceDollars, t.NoPriceDollars)
}

func (p *printer) Fill(f stream.Fill) {
	p.count.Add(1)
	fmt.Printf("[FILL] %s order=%s %s %s x%d yes=%s taker=%t\n",
		f.MarketTicker, f.OrderID, f.Action, f.Side, f.Count, f.YesPriceDollars, f.IsTaker)
}

func (p *printer) MarketPosition(m stream.MarketPosition) {
	p.count.Add(1)
	fmt.Printf("[POSITION] %s position=%d cost=%d pnl=%d\n",
		m.MarketTicker, m.Position, m.PositionCost, m.RealizedPnl)
}

func (p *printer) MarketLifecycle(m stream.MarketLifecycle) {
	p.count.Add(1)
	fmt.Printf("[LIFECYCLE] %s %s result=%q\n", m.MarketTicker, m.EventType, m.Result)
}

func (p *printer) RfqCreated(r stream.RfqCreated) {
	p.count.Add(1)
	fmt.Printf("[RFQ] created %+v\n", r)
}

func (p *printer) RfqDeleted(r stream.RfqDeleted) {
	p.count.Add(1)
	fmt.Printf("[RFQ] deleted %+v\n", r)
}

func (p *printer) QuoteCreated(q stream.QuoteCreated) {
	p.count.Add(1)
	fmt.Printf("[QUOTE] created %+v\n", q)
}

func (p *printer) QuoteAccepted(q stream.QuoteAccepted) {
	p.count.Add(1)
	fmt.Printf("[QUOTE] accepted %+v\n", q)
}

func (p *printer) Unknown(u stream.Unknown) {
	p.count.Add(1)
	fmt.Printf("[UNKNOWN] %s %s\n", u.Type, u.Raw)
}

func (p *printer) Unsubscribed(u stream.Unsubscribed) {
	fmt.Printf("[UNSUBSCRIBED] %s sid=%d\n", u.Subscription.Channel, u.Subscription.SID)
}

func (p *printer) Closed(c stream.Closed) {
	fmt.Printf("[CLOSED] %s\n", c.Reason)
}

func (p *printer) ConnectionLost(c stream.ConnectionLost) {
	fmt.Printf("[LOST] %s (%d subscriptions)\n", c.Reason, len(c.Snapshot))
}
