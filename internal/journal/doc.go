// Package journal records batch order outcomes and account fills to
// PostgreSQL.
//
// Tables:
//   - order_outcomes: one row per Submit or Cancel item
//   - fills: one row per fill received on the fill channel
//
// Writes are append-only and use pgx.Batch with ON CONFLICT DO NOTHING.
// Prices are stored as integer hundred-thousandths (0-100,000 = $0.00-$1.00).
package journal
