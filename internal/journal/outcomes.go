package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/batch"
)

// Ops recorded in order_outcomes.op.
const (
	OpCreate = "create"
	OpCancel = "cancel"
)

// Statuses written for items that never became an order.
const (
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// OutcomeRecorder writes batch results to order_outcomes.
type OutcomeRecorder struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewOutcomeRecorder creates an OutcomeRecorder.
func NewOutcomeRecorder(db DB, logger *slog.Logger) *OutcomeRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeRecorder{db: db, logger: logger, now: time.Now}
}

type outcomeRow struct {
	RecordedAt    int64
	Op            string
	Index         int
	ClientOrderID string
	OrderID       string
	Ticker        string
	Side          string
	Action        string
	Count         int64
	Price         int
	Status        string
	ReducedBy     int64
	ErrorCode     string
	Error         string
}

// Record writes one row per outcome and returns how many were new.
func (r *OutcomeRecorder) Record(ctx context.Context, op string, result batch.Result) (inserted int, err error) {
	if len(result) == 0 {
		return 0, nil
	}

	at := r.now().UnixMicro()
	b := &pgx.Batch{}
	for _, o := range result {
		row := transformOutcome(at, op, o)
		b.Queue(`
			INSERT INTO order_outcomes (recorded_at, op, idx, client_order_id, order_id, ticker, side, action, count, price, status, reduced_by, error_code, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (op, client_order_id, order_id) DO NOTHING
		`, row.RecordedAt, row.Op, row.Index, row.ClientOrderID, row.OrderID, row.Ticker, row.Side, row.Action, row.Count, row.Price, row.Status, row.ReducedBy, row.ErrorCode, row.Error)
	}

	start := time.Now()
	conflicts, err := execBatch(ctx, r.db, b)
	if err != nil {
		return 0, fmt.Errorf("record %s outcomes: %w", op, err)
	}

	r.logger.Debug("recorded outcomes",
		"op", op,
		"count", len(result),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return len(result) - conflicts, nil
}

func transformOutcome(at int64, op string, o batch.Outcome) outcomeRow {
	row := outcomeRow{
		RecordedAt:    at,
		Op:            op,
		Index:         o.Index,
		ClientOrderID: o.Request.ClientOrderID,
		OrderID:       o.OrderID,
		Ticker:        o.Request.Ticker,
		Side:          o.Request.Side,
		Action:        o.Request.Action,
		Count:         o.Request.Count,
		Price:         requestPrice(o.Request),
		ReducedBy:     o.ReducedBy,
	}

	if o.Order != nil {
		row.Status = o.Order.Status
		if row.Ticker == "" {
			row.Ticker = o.Order.Ticker
		}
		if row.Side == "" {
			row.Side = o.Order.Side
			row.Action = o.Order.Action
		}
	}

	if o.Err != nil {
		row.Status = StatusFailed
		row.Error = o.Err.Error()
		var rej *batch.RejectedError
		if errors.As(o.Err, &rej) {
			row.Status = StatusRejected
			row.ErrorCode = rej.Code
		}
	}
	return row
}

// requestPrice returns the limit price in hundred-thousandths, or 0 for a
// market order.
func requestPrice(r api.CreateOrderRequest) int {
	switch {
	case r.YesPrice != nil:
		return api.CentsToInternal(*r.YesPrice)
	case r.NoPrice != nil:
		return api.CentsToInternal(*r.NoPrice)
	case r.YesPriceDollars != "":
		return api.DollarsToInternal(r.YesPriceDollars)
	default:
		return api.DollarsToInternal(r.NoPriceDollars)
	}
}
