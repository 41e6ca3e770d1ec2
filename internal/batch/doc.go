// Package batch places and cancels orders in bulk against the batched order
// endpoints.
//
// Input is split into chunks of at most 20 in input order. Chunks are sent
// one at a time through a pacer sized to the account's rate-limit tier. A
// chunk answered with 429 is resent with capped exponential backoff; no
// other chunk waits on its retries beyond the shared pacing clock. Every
// call returns a Result aligned with its input, one Outcome per item.
package batch
