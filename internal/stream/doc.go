// Package stream implements a Kalshi websocket session.
//
// A Session owns one connection and a single run loop that:
//   - Writes every command and control frame
//   - Correlates subscribe/update/unsubscribe confirmations by request id
//   - Keeps the authoritative set of active subscriptions
//   - Fans decoded updates out to any number of receivers
//   - Declares the connection lost after a heartbeat timeout
//
// A session never reconnects. When it is lost, the final update is a
// ConnectionLost carrying the subscriptions that were active; pass that
// snapshot to Handle.Resubscribe on a new session to recover.
//
// Channels:
//   - Market data: orderbook_delta, ticker, trade, market_lifecycle_v2 (tickers required)
//   - User data: fill, market_positions (tickers optional)
//   - Global: communications, multivariate (no tickers)
package stream
