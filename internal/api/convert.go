package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trade/internal/stream"
)

// DollarsToInternal converts a dollar string to internal representation.
// "0.52" -> 52000, "0.5250" -> 52500, "0.52505" -> 52505
// Returns 0 for empty or invalid input.
func DollarsToInternal(dollars string) int {
	dollars = strings.TrimSpace(dollars)
	if dollars == "" {
		return 0
	}

	d, err := decimal.NewFromString(dollars)
	if err != nil {
		return 0
	}

	return int(d.Shift(5).Round(0).IntPart())
}

// CentsToInternal converts cents (int) to internal representation.
// 52 cents -> 52000 internal
func CentsToInternal(cents int) int {
	return cents * 1000
}

// ParseTimestamp parses an ISO 8601 timestamp to microseconds since epoch.
// Returns 0 for empty or invalid input.
func ParseTimestamp(iso string) int64 {
	if iso == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return 0
		}
	}

	return t.UnixMicro()
}

// ToSnapshot converts a REST orderbook into the snapshot shape delivered on
// the orderbook_delta channel, so a stream.Orderbook can be seeded from it.
func (o *OrderbookResponse) ToSnapshot(ticker string) stream.OrderbookSnapshot {
	return stream.OrderbookSnapshot{
		MarketTicker: ticker,
		Yes:          restLevels(o.Orderbook.Yes, o.Orderbook.YesDollars),
		No:           restLevels(o.Orderbook.No, o.Orderbook.NoDollars),
	}
}

func restLevels(cents [][]int, dollars [][]any) []stream.PriceLevel {
	if len(dollars) > 0 {
		out := make([]stream.PriceLevel, 0, len(dollars))
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
			out = append(out, stream.PriceLevel{Dollars: price, Quantity: int64(qty)})
		}
		return out
	}

	out := make([]stream.PriceLevel, 0, len(cents))
	for _, level := range cents {
		if len(level) < 2 {
			continue
		}
		out = append(out, stream.PriceLevel{
			Dollars:  decimal.New(int64(level[0]), -2).StringFixed(2),
			Quantity: int64(level[1]),
		})
	}
	return out
}
