package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/kalshi-trade/internal/api"
)

// pacer spaces chunk requests to fit the tier's write budget. Costs are in
// tenths of a write. The bucket holds at least one full chunk of creates so
// WaitN never asks for more than the burst.
type pacer struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	minInterval time.Duration
	last        time.Time
}

func newPacer(tier Tier, minInterval time.Duration) *pacer {
	perSecond := tier.WritesPerSecond() * createCost
	burst := max(perSecond, api.MaxBatchSize*createCost)
	return &pacer{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		minInterval: minInterval,
	}
}

// wait blocks until a request of the given cost may be sent.
func (p *pacer) wait(ctx context.Context, cost int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if d := p.minInterval - time.Since(p.last); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if err := p.limiter.WaitN(ctx, cost); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The limiter refuses waits that would outlast the deadline.
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	p.last = time.Now()
	return nil
}
