package main

import (
	"testing"
	"time"

	"github.com/rickgao/kalshi-trade/internal/stream"
)

func TestParseChannels(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []stream.Channel
		wantErr bool
	}{
		{"single", "ticker", []stream.Channel{stream.ChannelTicker}, false},
		{"spaces", " ticker , trade ", []stream.Channel{stream.ChannelTicker, stream.ChannelTrade}, false},
		{"empty", " , ", nil, true},
		{"unknown", "ticker,bogus", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChannels(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChannels(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseChannels(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("channel[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPrinterKeepsBook(t *testing.T) {
	p := newPrinter(false)
	p.OrderbookSnapshot(stream.OrderbookSnapshot{
		MarketTicker: "A",
		Yes:          []stream.PriceLevel{{Dollars: "0.40", Quantity: 10}},
		No:           []stream.PriceLevel{{Dollars: "0.55", Quantity: 5}},
	})
	p.OrderbookDelta(stream.OrderbookDelta{MarketTicker: "A", Side: "yes", PriceDollars: "0.41", Delta: 3})

	if got := p.count.Load(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	bid, ok := p.books["A"].BestYesBid()
	if !ok || bid.Dollars != "0.41" {
		t.Errorf("best bid = %+v, %v; want 0.41", bid, ok)
	}
	if got := p.top(p.books["A"]); got != "bid=0.41 x3 ask=0.45" {
		t.Errorf("top = %q", got)
	}
}

func TestReconnectWait(t *testing.T) {
	b := newReconnectBackOff()
	b.RandomizationFactor = 0
	b.Multiplier = 2

	steps := []struct {
		ran  bool
		want time.Duration
	}{
		{false, time.Second},
		{false, 2 * time.Second},
		{false, 4 * time.Second},
		{true, time.Second},
		{false, 2 * time.Second},
		{true, time.Second},
	}
	for i, step := range steps {
		if got := reconnectWait(b, step.ran); got != step.want {
			t.Errorf("step %d (ran=%t): wait = %v, want %v", i, step.ran, got, step.want)
		}
	}
}
