package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

// Tier is an account's API rate-limit tier.
type Tier int

const (
	TierBasic Tier = iota
	TierAdvanced
	TierPremier
	TierPrime
)

var tierNames = [...]string{"basic", "advanced", "premier", "prime"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// WritesPerSecond is the tier's write budget. One created order costs one
// write; one canceled order costs a fifth of one.
func (t Tier) WritesPerSecond() int {
	switch t {
	case TierBasic:
		return 10
	case TierAdvanced:
		return 30
	case TierPremier:
		return 100
	case TierPrime:
		return 400
	}
	return 0
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return 0, errs.Validation("unknown rate limit tier %q", s)
}

// Write costs in tenths of a write.
const (
	createCost = 10
	cancelCost = 2
)

// Config holds the manager's pacing and retry settings.
type Config struct {
	Tier Tier

	// MaxRetries is how many times a rate-limited chunk is resent.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// MinChunkInterval is the least time between two chunk requests.
	MinChunkInterval time.Duration
}

// DefaultConfig returns Config with defaults.
func DefaultConfig() Config {
	return Config{
		Tier:             TierBasic,
		MaxRetries:       3,
		RetryBaseDelay:   100 * time.Millisecond,
		RetryMaxDelay:    10 * time.Second,
		MinChunkInterval: 100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Tier.WritesPerSecond() == 0 {
		return errs.Validation("batch tier %s is not supported", c.Tier)
	}
	if c.MaxRetries < 0 {
		return errs.Validation("batch max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 {
		return errs.Validation("batch retry base delay must be positive")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return errs.Validation("batch retry max delay %s is below base delay %s", c.RetryMaxDelay, c.RetryBaseDelay)
	}
	if c.MinChunkInterval < 0 {
		return errs.Validation("batch min chunk interval must be non-negative")
	}
	return nil
}

// Outcome is the result for one input item. Exactly one of Order and Err is
// set for a create; a cancel may carry ReducedBy alongside Order.
type Outcome struct {
	Index int

	// Request is the submitted order, with its client_order_id filled in.
	// Unset for cancels.
	Request api.CreateOrderRequest

	// OrderID is the order a cancel targeted, or the id of a placed order.
	OrderID   string
	Order     *api.Order
	ReducedBy int64
	Err       error
}

// OK reports whether the item succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Result is aligned index-for-index with the input.
type Result []Outcome

// Succeeded counts successful outcomes.
func (r Result) Succeeded() int {
	n := 0
	for _, o := range r {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the failed outcomes in input order.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// RejectedError is a per-order rejection inside an otherwise successful
// batch response.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "order rejected: " + e.Message
	}
	return fmt.Sprintf("order rejected: %s: %s", e.Code, e.Message)
}

func (e *RejectedError) Unwrap() error { return errs.ErrAPI }

// RateLimitExhaustedError is set on every order of a chunk that was still
// rate limited after all retries.
type RateLimitExhaustedError struct {
	Attempts int
	Err      error // last 429
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitExhaustedError) Unwrap() []error {
	return []error{errs.ErrRateLimitExhausted, e.Err}
}
