package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/kalshi-trade/internal/broadcast"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

// Handle is a cheap, copyable reference to a session. Every method is safe
// for concurrent use; commands are serialized by the session's run loop.
type Handle struct {
	s *Session
}

// Subscribe subscribes ch to tickers, merging into an existing subscription
// when the channel is already active. Only tickers not yet subscribed are
// sent to the server; if there are none, no command is sent.
func (h Handle) Subscribe(ctx context.Context, ch Channel, tickers ...string) (Subscription, error) {
	if !ch.Valid() {
		return Subscription{}, errs.Validation("unknown channel %q", ch)
	}
	tickers, err := ch.validateTickers(tickers)
	if err != nil {
		return Subscription{}, err
	}

	res, err := h.call(ctx, request{kind: reqMerge, channels: []Channel{ch}, tickers: tickers})
	if err != nil {
		return Subscription{}, err
	}
	if len(res.subs) == 0 {
		return Subscription{}, fmt.Errorf("%w: no confirmation for %s", errs.ErrAPI, ch)
	}
	return res.subs[0], nil
}

// SubscribeChannels subscribes several inactive channels in one command.
// The call fails if any channel is rejected; channels the server confirmed
// remain subscribed and show up in Subscriptions.
func (h Handle) SubscribeChannels(ctx context.Context, channels []Channel, tickers []string) ([]Subscription, error) {
	if len(channels) == 0 {
		return nil, errs.Validation("at least one channel is required")
	}

	seen := make(map[Channel]struct{}, len(channels))
	var normalized []string
	for i, ch := range channels {
		if !ch.Valid() {
			return nil, errs.Validation("unknown channel %q", ch)
		}
		if _, dup := seen[ch]; dup {
			return nil, errs.Validation("channel %s listed twice", ch)
		}
		seen[ch] = struct{}{}

		t, err := ch.validateTickers(tickers)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			normalized = t
		}
	}

	res, err := h.call(ctx, request{kind: reqSubscribeChannels, channels: channels, tickers: normalized})
	if err != nil {
		return nil, err
	}
	return res.subs, nil
}

// Unsubscribe removes tickers from ch. Removing every remaining ticker
// unsubscribes the channel entirely. Tickers that are not subscribed are
// ignored; an empty list is a no-op.
func (h Handle) Unsubscribe(ctx context.Context, ch Channel, tickers ...string) error {
	if len(tickers) == 0 {
		return nil
	}
	tickers = uniqueSorted(tickers)
	_, err := h.call(ctx, request{kind: reqRemove, channels: []Channel{ch}, tickers: tickers})
	return err
}

// UnsubscribeAll drops the whole subscription on ch.
func (h Handle) UnsubscribeAll(ctx context.Context, ch Channel) error {
	_, err := h.call(ctx, request{kind: reqRemoveAll, channels: []Channel{ch}})
	return err
}

// Subscriptions returns a copy of the active subscription set.
func (h Handle) Subscriptions(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := h.enqueue(ctx, request{kind: reqSnapshot, snapshot: reply}); err != nil {
		return nil, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-h.s.done:
		return nil, h.s.terminalErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resubscribe replays snap on this session, one channel at a time. It is
// meant for a fresh session after the previous one was lost; sids from
// snap are ignored.
func (h Handle) Resubscribe(ctx context.Context, snap Snapshot) ([]Subscription, error) {
	out := make([]Subscription, 0, len(snap))
	for _, ch := range snap.Channels() {
		sub, err := h.Subscribe(ctx, ch, snap.Tickers(ch)...)
		if err != nil {
			return out, fmt.Errorf("resubscribe %s: %w", ch, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Updates attaches a new receiver to the update stream.
func (h Handle) Updates() *broadcast.Receiver[Update] {
	return h.s.Updates()
}

// State returns the session's lifecycle state.
func (h Handle) State() State {
	return h.s.State()
}

// Close shuts the session down. See Session.Close.
func (h Handle) Close(ctx context.Context) error {
	return h.s.Close(ctx)
}

func (h Handle) enqueue(ctx context.Context, req request) error {
	select {
	case h.s.requests <- req:
		return nil
	case <-h.s.done:
		return h.s.terminalErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call hands req to the run loop and waits for its result.
func (h Handle) call(ctx context.Context, req request) (commandResult, error) {
	req.reply = make(chan commandResult, 1)
	if err := h.enqueue(ctx, req); err != nil {
		return commandResult{}, err
	}

	timer := time.NewTimer(h.s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case res := <-req.reply:
		return res, res.err
	case <-timer.C:
		return commandResult{}, fmt.Errorf("%w: command not confirmed within %s", errs.ErrTimeout, h.s.cfg.CommandTimeout)
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	case <-h.s.done:
		// The run loop resolves pending commands before exiting
		select {
		case res := <-req.reply:
			return res, res.err
		default:
			return commandResult{}, h.s.terminalErr()
		}
	}
}
