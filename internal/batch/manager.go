package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

// OrderAPI is the REST surface the manager drives. *api.Client satisfies it.
type OrderAPI interface {
	BatchCreateOrders(ctx context.Context, orders []api.CreateOrderRequest) (*api.BatchCreateOrdersResponse, error)
	BatchCancelOrders(ctx context.Context, orderIDs []string) (*api.BatchCancelOrdersResponse, error)
}

// Manager submits and cancels orders in chunks, one chunk at a time.
// A Manager is safe for concurrent use; concurrent calls share one pacing
// budget.
type Manager struct {
	orders OrderAPI
	cfg    Config
	pacer  *pacer
	logger *slog.Logger
}

// New creates a Manager. Invalid configuration is rejected here.
func New(orders OrderAPI, cfg Config, logger *slog.Logger) (*Manager, error) {
	if orders == nil {
		return nil, errs.Validation("batch manager needs an order API")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		orders: orders,
		cfg:    cfg,
		pacer:  newPacer(cfg.Tier, cfg.MinChunkInterval),
		logger: logger,
	}, nil
}

// Submit places orders. The Result is aligned with orders. Orders that fail
// validation are never sent, and orders without a client_order_id get a
// random one so they can be reconciled later.
//
// The returned error is non-nil only when ctx ended before every order was
// sent; the unsent orders carry the same error.
func (m *Manager) Submit(ctx context.Context, orders []api.CreateOrderRequest) (Result, error) {
	result := make(Result, len(orders))
	pending := make([]int, 0, len(orders))
	for i, o := range orders {
		if o.ClientOrderID == "" {
			o.ClientOrderID = uuid.NewString()
		}
		result[i] = Outcome{Index: i, Request: o}
		if err := o.Validate(); err != nil {
			result[i].Err = fmt.Errorf("order %d: %w", i, err)
			continue
		}
		pending = append(pending, i)
	}

	send := func(ctx context.Context, chunk []int) error {
		reqs := make([]api.CreateOrderRequest, len(chunk))
		for j, i := range chunk {
			reqs[j] = result[i].Request
		}
		resp, err := m.orders.BatchCreateOrders(ctx, reqs)
		if err != nil {
			return err
		}
		for j, i := range chunk {
			if j >= len(resp.Orders) {
				result[i].Err = fmt.Errorf("%w: batch response has no result for order %d", errs.ErrAPI, i)
				continue
			}
			r := resp.Orders[j]
			switch {
			case r.Error != nil:
				result[i].Err = &RejectedError{Code: r.Error.Code, Message: r.Error.Message}
			case r.Order != nil:
				result[i].Order = r.Order
				result[i].OrderID = r.Order.OrderID
			default:
				result[i].Err = fmt.Errorf("%w: empty batch result for order %d", errs.ErrAPI, i)
			}
		}
		return nil
	}

	err := m.dispatch(ctx, "create", pending, createCost, result, send)
	return result, err
}

// Cancel cancels orders by id with the same chunking, pacing and retry
// rules as Submit.
func (m *Manager) Cancel(ctx context.Context, orderIDs []string) (Result, error) {
	result := make(Result, len(orderIDs))
	pending := make([]int, 0, len(orderIDs))
	for i, id := range orderIDs {
		result[i] = Outcome{Index: i, OrderID: id}
		if id == "" {
			result[i].Err = errs.Validation("order %d: order id is required", i)
			continue
		}
		pending = append(pending, i)
	}

	send := func(ctx context.Context, chunk []int) error {
		ids := make([]string, len(chunk))
		for j, i := range chunk {
			ids[j] = orderIDs[i]
		}
		resp, err := m.orders.BatchCancelOrders(ctx, ids)
		if err != nil {
			return err
		}
		for j, i := range chunk {
			if j >= len(resp.Orders) {
				result[i].Err = fmt.Errorf("%w: batch response has no result for order %s", errs.ErrAPI, ids[j])
				continue
			}
			r := resp.Orders[j]
			if r.Error != nil {
				result[i].Err = &RejectedError{Code: r.Error.Code, Message: r.Error.Message}
				continue
			}
			result[i].Order = r.Order
			result[i].ReducedBy = r.ReducedBy
		}
		return nil
	}

	err := m.dispatch(ctx, "cancel", pending, cancelCost, result, send)
	return result, err
}

// dispatch sends pending in chunks of at most api.MaxBatchSize. A failed
// chunk marks only its own items; later chunks still go out.
func (m *Manager) dispatch(ctx context.Context, op string, pending []int, unitCost int, result Result, send func(context.Context, []int) error) error {
	for start := 0; start < len(pending); start += api.MaxBatchSize {
		chunk := pending[start:min(start+api.MaxBatchSize, len(pending))]

		if err := ctx.Err(); err != nil {
			markAll(result, pending[start:], err)
			return err
		}

		err := m.sendChunk(ctx, op, chunk, unitCost*len(chunk), send)
		if err == nil {
			m.logger.Debug("batch chunk sent", "op", op, "first", chunk[0], "size", len(chunk))
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			markAll(result, pending[start:], ctxErr)
			return ctxErr
		}

		m.logger.Warn("batch chunk failed", "op", op, "first", chunk[0], "size", len(chunk), "error", err)
		markAll(result, chunk, err)
	}
	return nil
}

// sendChunk sends one chunk, resending it with capped exponential backoff
// while the server answers 429. Other errors are returned at once.
func (m *Manager) sendChunk(ctx context.Context, op string, chunk []int, cost int, send func(context.Context, []int) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryBaseDelay
	b.MaxInterval = m.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	maxAttempts := m.cfg.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := m.pacer.wait(ctx, cost); err != nil {
			return err
		}

		err := send(ctx, chunk)
		if err == nil {
			return nil
		}
		if !api.IsRateLimited(err) {
			return err
		}
		if attempt >= maxAttempts {
			return &RateLimitExhaustedError{Attempts: attempt, Err: err}
		}

		delay := b.NextBackOff()
		m.logger.Warn("batch chunk rate limited, retrying",
			"op", op,
			"first", chunk[0],
			"attempt", attempt,
			"backoff", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func markAll(result Result, idx []int, err error) {
	for _, i := range idx {
		result[i].Err = err
	}
}
