package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/broadcast"
	"github.com/rickgao/kalshi-trade/internal/stream"
)

// FillWriterConfig configures fill batching.
type FillWriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultFillWriterConfig returns FillWriterConfig with defaults.
func DefaultFillWriterConfig() FillWriterConfig {
	return FillWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// FillWriter consumes fill updates from a session and writes them to the
// fills table. Other updates are ignored.
type FillWriter struct {
	cfg    FillWriterConfig
	logger *slog.Logger

	// Input from the session broadcaster
	input *broadcast.Receiver[stream.Update]

	// Database
	db DB

	// Batching
	batch       []fillRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewFillWriter creates a new FillWriter.
func NewFillWriter(
	cfg FillWriterConfig,
	input *broadcast.Receiver[stream.Update],
	db DB,
	logger *slog.Logger,
) *FillWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultFillWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFillWriterConfig().FlushInterval
	}
	return &FillWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]fillRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming updates and writing fills.
func (w *FillWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("fill writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes what is left.
func (w *FillWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping fill writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("fill writer stopped")
	case <-ctx.Done():
		w.logger.Warn("fill writer stop timed out")
	}

	// Final flush outlives the writer context.
	w.flushWith(ctx)
	return nil
}

// Stats returns current metrics.
func (w *FillWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads updates until the writer stops or the session ends.
func (w *FillWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		u, err := w.input.Recv(w.ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			if errors.As(err, &lagged) {
				w.logger.Warn("fill writer lagged", "dropped", lagged.N)
				w.batchMu.Lock()
				w.metrics.Lagged += int64(lagged.N)
				w.batchMu.Unlock()
				continue
			}
			// Context cancelled or session closed
			return
		}
		w.handleUpdate(u)
	}
}

// flushLoop periodically flushes the batch.
func (w *FillWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *FillWriter) handleUpdate(u stream.Update) {
	fill, ok := u.Msg.(stream.Fill)
	if !ok {
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, transformFill(u, fill))
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

type fillRow struct {
	TradeID       string
	ExchangeTs    int64 // microseconds
	ReceivedAt    int64 // microseconds
	OrderID       string
	ClientOrderID string
	Ticker        string
	Side          string
	Action        string
	IsTaker       bool
	YesPrice      int
	Count         int64
	SID           int64
}

func transformFill(u stream.Update, f stream.Fill) fillRow {
	price := api.DollarsToInternal(f.YesPriceDollars)
	if f.YesPriceDollars == "" {
		price = api.CentsToInternal(f.YesPrice)
	}
	return fillRow{
		TradeID:       f.TradeID,
		ExchangeTs:    f.Ts * int64(time.Second/time.Microsecond),
		ReceivedAt:    u.ReceivedAt.UnixMicro(),
		OrderID:       f.OrderID,
		ClientOrderID: f.ClientOrderID,
		Ticker:        f.MarketTicker,
		Side:          f.Side,
		Action:        f.Action,
		IsTaker:       f.IsTaker,
		YesPrice:      price,
		Count:         f.Count,
		SID:           u.SID,
	}
}

func (w *FillWriter) flush() {
	w.flushWith(w.ctx)
}

// flushWith writes the current batch to the database.
func (w *FillWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	rows := w.batch
	w.batch = make([]fillRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO fills (trade_id, exchange_ts, received_at, order_id, client_order_id, ticker, side, action, is_taker, yes_price, count, sid)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (trade_id) DO NOTHING
		`, r.TradeID, r.ExchangeTs, r.ReceivedAt, r.OrderID, r.ClientOrderID, r.Ticker, r.Side, r.Action, r.IsTaker, r.YesPrice, r.Count, r.SID)
	}

	conflicts, err := execBatch(ctx, w.db, b)
	if err != nil {
		w.logger.Error("fill insert failed", "error", err, "count", len(rows))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed fills",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}
