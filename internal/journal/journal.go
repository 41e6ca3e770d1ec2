package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Schema creates the journal tables.
const Schema = `
CREATE TABLE IF NOT EXISTS order_outcomes (
	recorded_at     BIGINT NOT NULL,
	op              TEXT   NOT NULL,
	idx             INT    NOT NULL,
	client_order_id TEXT   NOT NULL,
	order_id        TEXT   NOT NULL,
	ticker          TEXT   NOT NULL,
	side            TEXT   NOT NULL,
	action          TEXT   NOT NULL,
	count           BIGINT NOT NULL,
	price           INT    NOT NULL,
	status          TEXT   NOT NULL,
	reduced_by      BIGINT NOT NULL,
	error_code      TEXT   NOT NULL,
	error           TEXT   NOT NULL,
	PRIMARY KEY (op, client_order_id, order_id)
);

CREATE TABLE IF NOT EXISTS fills (
	trade_id        TEXT    PRIMARY KEY,
	exchange_ts     BIGINT  NOT NULL,
	received_at     BIGINT  NOT NULL,
	order_id        TEXT    NOT NULL,
	client_order_id TEXT    NOT NULL,
	ticker          TEXT    NOT NULL,
	side            TEXT    NOT NULL,
	action          TEXT    NOT NULL,
	is_taker        BOOLEAN NOT NULL,
	yes_price       INT     NOT NULL,
	count           BIGINT  NOT NULL,
	sid             BIGINT  NOT NULL
);
`

// EnsureSchema creates the journal tables if they are missing.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Metrics counts journal writes.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Lagged    int64 // fills missed because the receiver fell behind
}

// execBatch sends a queued batch and counts rows that hit a conflict.
func execBatch(ctx context.Context, db DB, batch *pgx.Batch) (conflicts int, err error) {
	results := db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
