// Package api provides the Kalshi REST client used alongside the streaming
// session: market data reads and order writes, including the batched order
// endpoints.
//
// REST endpoints:
//   - Production: https://api.elections.kalshi.com/trade-api/v2
//   - Demo: https://demo-api.kalshi.co/trade-api/v2
//
// Reads are retried with backoff on 5xx and 429. Order writes are sent
// exactly once; callers decide whether a failed write may be resent.
package api
