package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kalshi-trade/internal/broadcast"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

const pingPayload = "heartbeat"

type requestKind int

const (
	reqMerge requestKind = iota
	reqSubscribeChannels
	reqRemove
	reqRemoveAll
	reqSnapshot
	reqClose
)

// request is sent from a Handle to the run loop.
type request struct {
	kind     requestKind
	channels []Channel
	tickers  []string
	reason   string
	reply    chan commandResult
	snapshot chan Snapshot
}

// inbound is a frame or heartbeat event forwarded by the reader goroutine.
type inbound struct {
	data      []byte
	at        time.Time
	heartbeat bool
}

// connectionHealth tracks liveness. Only the run loop mutates it.
type connectionHealth struct {
	lastSeen     time.Time
	lastPing     time.Time
	pingInterval time.Duration
	timeout      time.Duration
}

func (h *connectionHealth) seen(at time.Time) {
	if at.After(h.lastSeen) {
		h.lastSeen = at
	}
}

func (h *connectionHealth) expired(now time.Time) bool {
	return now.Sub(h.lastSeen) > h.timeout
}

func (h *connectionHealth) pingDue(now time.Time) bool {
	return now.Sub(h.lastPing) >= h.pingInterval
}

// checkInterval is how often the run loop evaluates health.
func (h *connectionHealth) checkInterval() time.Duration {
	d := h.timeout / 4
	if h.pingInterval < d {
		d = h.pingInterval
	}
	if d < 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	return d
}

// Session is a live websocket connection and the run loop that owns it.
type Session struct {
	cfg    Config
	logger *slog.Logger
	conn   *websocket.Conn

	requests chan request
	inbound  chan inbound
	readErr  chan error
	quit     chan struct{} // closed when the run loop starts shutting down
	done     chan struct{} // closed after the run loop exits

	updates *broadcast.Broadcaster[Update]
	state   atomic.Int32
	err     error // set before done is closed

	// Owned by the run loop
	subs     *subscriptionState
	dispatch *dispatcher
	health   connectionHealth
	lastSeq  map[int64]int64
	fatal    error

	// busy maps a channel to the command in flight for it. Requests for a
	// busy channel wait in waiting and are replayed once it settles.
	busy    map[Channel]int64
	waiting map[Channel][]request
}

func newSession(cfg Config, conn *websocket.Conn, logger *slog.Logger) *Session {
	now := time.Now()
	s := &Session{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		requests: make(chan request),
		inbound:  make(chan inbound, 64),
		readErr:  make(chan error, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		updates:  broadcast.New[Update](cfg.BufferSize),
		subs:     newSubscriptionState(),
		dispatch: newDispatcher(cfg.CommandTimeout),
		health: connectionHealth{
			lastSeen:     now,
			lastPing:     now,
			pingInterval: cfg.PingInterval,
			timeout:      cfg.HeartbeatTimeout,
		},
		lastSeq: make(map[int64]int64),
		busy:    make(map[Channel]int64),
		waiting: make(map[Channel][]request),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// Handle returns a caller handle. Handles are values and may be copied freely.
func (s *Session) Handle() Handle {
	return Handle{s: s}
}

// Updates attaches a new receiver to the session's update stream.
func (s *Session) Updates() *broadcast.Receiver[Update] {
	return s.updates.Subscribe()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the run loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while the session runs or after a caller close, and a
// *ConnectionLostError after a failure.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close shuts the session down gracefully and waits for the run loop to exit.
// Pending commands fail with ErrConnectionClosed.
func (s *Session) Close(ctx context.Context) error {
	select {
	case s.requests <- request{kind: reqClose, reason: "closed by caller"}:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalErr is what calls on a finished session return.
func (s *Session) terminalErr() error {
	if s.err != nil {
		return s.err
	}
	return fmt.Errorf("%w: session is closed", errs.ErrConnectionClosed)
}

// start launches the reader and the run loop.
func (s *Session) start() {
	s.conn.SetPingHandler(func(data string) error {
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("failed to answer ping", "error", err)
		}
		s.forward(inbound{at: time.Now(), heartbeat: true})
		return nil
	})
	s.conn.SetPongHandler(func(string) error {
		s.forward(inbound{at: time.Now(), heartbeat: true})
		return nil
	})

	s.state.Store(int32(StateOpen))
	go s.readLoop()
	go s.run()
}

func (s *Session) forward(in inbound) {
	select {
	case s.inbound <- in:
	case <-s.quit:
	}
}

// readLoop is the only reader of the socket.
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.readErr <- err:
			case <-s.quit:
			}
			return
		}
		s.forward(inbound{data: data, at: time.Now()})
	}
}

// run is the single writer of the socket, the subscription state and the
// dispatcher. It never restarts.
func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.health.checkInterval())
	defer ticker.Stop()

	s.logger.Info("stream session started", "url", s.cfg.URL)

	for {
		select {
		case req := <-s.requests:
			if req.kind == reqClose {
				s.shutdown(req.reason, false)
				return
			}
			s.handleRequest(req)

		case in := <-s.inbound:
			s.health.seen(in.at)
			if !in.heartbeat {
				s.handleFrame(in)
			}

		case err := <-s.readErr:
			s.shutdown(describeReadError(err), true)
			return

		case now := <-ticker.C:
			if s.health.expired(now) {
				s.logger.Warn("no heartbeat received, connection stale",
					"last_seen", s.health.lastSeen,
					"timeout", s.health.timeout,
				)
				s.shutdown("heartbeat timeout", true)
				return
			}
			if s.health.pingDue(now) {
				s.health.lastPing = now
				deadline := now.Add(s.cfg.WriteTimeout)
				if err := s.conn.WriteControl(websocket.PingMessage, []byte(pingPayload), deadline); err != nil {
					s.fail(fmt.Errorf("send ping: %w", err))
				}
			}
			timeoutErr := fmt.Errorf("%w: command abandoned", errs.ErrTimeout)
			for _, p := range s.dispatch.sweep(now, timeoutErr) {
				s.logger.Debug("dropped unconfirmed command", "id", p.id, "cmd", p.kind)
				s.release(p)
			}
		}

		if s.fatal != nil {
			s.shutdown(s.fatal.Error(), true)
			return
		}
	}
}

// fail marks the connection broken. The run loop shuts down after the
// current event.
func (s *Session) fail(err error) {
	if s.fatal == nil {
		s.fatal = err
	}
}

// shutdown publishes the termination update, fails pending commands and
// releases the socket.
func (s *Session) shutdown(reason string, lost bool) {
	close(s.quit)
	snap := s.subs.snapshot()

	if lost {
		s.state.Store(int32(StateLost))
		lostErr := &ConnectionLostError{Reason: reason, Snapshot: snap}
		n := s.dispatch.failAll(lostErr) + s.failWaiting(lostErr)
		s.err = lostErr
		s.updates.Publish(Update{Msg: ConnectionLost{Reason: reason, Snapshot: snap}, ReceivedAt: time.Now()})
		s.logger.Warn("stream session lost",
			"reason", reason,
			"subscriptions", len(snap),
			"pending_failed", n,
		)
	} else {
		s.state.Store(int32(StateClosing))
		closedErr := fmt.Errorf("%w: %s", errs.ErrConnectionClosed, reason)
		n := s.dispatch.failAll(closedErr) + s.failWaiting(closedErr)
		s.updates.Publish(Update{Msg: Closed{Reason: reason}, ReceivedAt: time.Now()})
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		if err := s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
			s.logger.Debug("failed to send close frame", "error", err)
		}
		s.logger.Info("stream session closed",
			"reason", reason,
			"subscriptions", len(snap),
			"pending_failed", n,
		)
	}

	s.conn.Close()
	s.subs.clear()
	s.updates.Close()
	s.state.Store(int32(StateClosed))
}

func describeReadError(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return fmt.Sprintf("server closed connection: %d %s", closeErr.Code, closeErr.Text)
		}
		return fmt.Sprintf("server closed connection: %d", closeErr.Code)
	}
	return fmt.Sprintf("read: %v", err)
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// send registers p and writes its command.
func (s *Session) send(p *pendingCommand) {
	id := s.dispatch.register(p, time.Now())

	var cmd command
	switch p.kind {
	case kindSubscribe:
		cmd = command{ID: id, Cmd: cmdSubscribe, Params: newSubscribeParams(p.channels, p.tickers)}
	case kindAddMarkets, kindDeleteMarkets:
		cmd = command{ID: id, Cmd: cmdUpdateSubscription, Params: updateSubscriptionParams{
			SIDs:          []int64{p.sid},
			MarketTickers: p.tickers,
			Action:        p.kind.String(),
		}}
	case kindUnsubscribe:
		cmd = command{ID: id, Cmd: cmdUnsubscribe, Params: unsubscribeParams{SIDs: []int64{p.sid}}}
	}

	if err := s.writeJSON(cmd); err != nil {
		s.dispatch.remove(id)
		p.resolve(commandResult{err: errs.Connect("write command", err)})
		s.fail(fmt.Errorf("write command: %w", err))
		return
	}
	for _, ch := range p.channels {
		s.busy[ch] = id
	}

	s.logger.Debug("command sent",
		"id", id,
		"cmd", p.kind,
		"channels", p.channels,
		"sid", p.sid,
		"tickers", len(p.tickers),
	)
}

func (s *Session) handleRequest(req request) {
	if req.kind != reqSnapshot && s.park(req) {
		return
	}

	switch req.kind {
	case reqSnapshot:
		req.snapshot <- s.subs.snapshot()
	case reqMerge:
		s.merge(req)
	case reqSubscribeChannels:
		s.subscribeChannels(req)
	case reqRemove:
		s.remove(req)
	case reqRemoveAll:
		s.removeAll(req)
	}
}

// park queues req behind the command in flight on any of its channels.
func (s *Session) park(req request) bool {
	for _, ch := range req.channels {
		if _, ok := s.busy[ch]; ok {
			s.waiting[ch] = append(s.waiting[ch], req)
			return true
		}
	}
	return false
}

// release marks p's channels idle and replays the requests waiting on them.
// A replayed request sees the state p left behind, so a merge queued behind
// a fresh subscribe becomes add_markets on the confirmed sid.
func (s *Session) release(p *pendingCommand) {
	for _, ch := range p.channels {
		if s.busy[ch] == p.id {
			delete(s.busy, ch)
		}
	}
	for _, ch := range p.channels {
		for s.fatal == nil && len(s.waiting[ch]) > 0 {
			if _, ok := s.busy[ch]; ok {
				break
			}
			req := s.waiting[ch][0]
			s.waiting[ch] = s.waiting[ch][1:]
			if len(s.waiting[ch]) == 0 {
				delete(s.waiting, ch)
			}
			s.handleRequest(req)
		}
	}
}

// failWaiting answers every parked request with err.
func (s *Session) failWaiting(err error) int {
	n := 0
	for ch, reqs := range s.waiting {
		for _, req := range reqs {
			select {
			case req.reply <- commandResult{err: err}:
			default:
			}
			n++
		}
		delete(s.waiting, ch)
	}
	return n
}

// merge subscribes ch or adds the missing tickers to its existing sid.
func (s *Session) merge(req request) {
	ch := req.channels[0]

	e, ok := s.subs.get(ch)
	if !ok {
		s.send(&pendingCommand{
			kind:     kindSubscribe,
			expected: 1,
			channels: []Channel{ch},
			tickers:  req.tickers,
			reply:    req.reply,
		})
		return
	}

	current := e.subscription(ch)
	// An unfiltered user channel already covers every market
	if len(current.Tickers) == 0 && ch.TickerPolicy() != TickersRequired {
		req.reply <- commandResult{subs: []Subscription{current}}
		return
	}

	added := e.missing(req.tickers)
	if len(added) == 0 {
		req.reply <- commandResult{subs: []Subscription{current}}
		return
	}

	s.send(&pendingCommand{
		kind:     kindAddMarkets,
		expected: 1,
		channels: []Channel{ch},
		sid:      e.sid,
		tickers:  added,
		reply:    req.reply,
	})
}

// subscribeChannels sends one subscribe spanning every requested channel.
func (s *Session) subscribeChannels(req request) {
	for _, ch := range req.channels {
		if _, ok := s.subs.get(ch); ok {
			req.reply <- commandResult{err: errs.Validation("channel %s is already subscribed", ch)}
			return
		}
	}
	s.send(&pendingCommand{
		kind:     kindSubscribe,
		expected: len(req.channels),
		channels: req.channels,
		tickers:  req.tickers,
		reply:    req.reply,
	})
}

// remove drops tickers from ch, unsubscribing it when none would remain.
func (s *Session) remove(req request) {
	ch := req.channels[0]

	e, ok := s.subs.get(ch)
	if !ok {
		req.reply <- commandResult{err: errs.Validation("not subscribed to channel %s", ch)}
		return
	}

	drop := e.present(req.tickers)
	if len(drop) == 0 {
		req.reply <- commandResult{subs: []Subscription{e.subscription(ch)}}
		return
	}

	remaining := e.without(drop)
	switch {
	case len(remaining) == 0:
		s.send(&pendingCommand{kind: kindUnsubscribe, expected: 1, channels: []Channel{ch}, sid: e.sid, reply: req.reply})
	case !s.cfg.DisablePartialUpdates:
		s.send(&pendingCommand{kind: kindDeleteMarkets, expected: 1, channels: []Channel{ch}, sid: e.sid, tickers: drop, reply: req.reply})
	default:
		s.send(&pendingCommand{
			kind:     kindUnsubscribe,
			expected: 1,
			channels: []Channel{ch},
			sid:      e.sid,
			reply:    req.reply,
			followUp: &pendingCommand{
				kind:     kindSubscribe,
				expected: 1,
				channels: []Channel{ch},
				tickers:  remaining,
			},
		})
	}
}

func (s *Session) removeAll(req request) {
	ch := req.channels[0]
	e, ok := s.subs.get(ch)
	if !ok {
		req.reply <- commandResult{err: errs.Validation("not subscribed to channel %s", ch)}
		return
	}
	s.send(&pendingCommand{kind: kindUnsubscribe, expected: 1, channels: []Channel{ch}, sid: e.sid, reply: req.reply})
}

func (s *Session) handleFrame(in inbound) {
	f, err := decodeFrame(in.data)
	if err != nil {
		s.logger.Warn("failed to decode frame", "error", err, "size", len(in.data))
		return
	}

	if f.isConfirmation() {
		s.handleConfirmation(f)
		return
	}
	s.handleUpdate(f, in.at)
}

func (s *Session) handleConfirmation(f *frame) {
	p, ok := s.dispatch.lookup(f.ID)
	if !ok {
		if f.Type == typeError {
			cerr := f.commandError()
			s.logger.Warn("server error", "id", f.ID, "code", cerr.Code, "msg", cerr.Message)
		} else {
			s.logger.Debug("confirmation for unknown command", "id", f.ID, "type", f.Type)
		}
		return
	}

	switch f.Type {
	case typeSubscribed:
		sid, name, err := f.confirmedSID()
		if err != nil {
			p.record(nil, err)
			break
		}
		ch := Channel(name)
		tickers := p.tickers
		if ch.TickerPolicy() == TickersForbidden {
			tickers = nil
		}
		sub := s.subs.put(ch, sid, tickers)
		s.logger.Info("subscribed", "channel", ch, "sid", sid, "tickers", len(sub.Tickers))
		p.record(&sub, nil)

	case typeOK:
		var (
			sub     Subscription
			applied bool
		)
		switch p.kind {
		case kindAddMarkets:
			sub, applied = s.subs.addTickers(p.sid, p.tickers)
		case kindDeleteMarkets:
			sub, applied = s.subs.removeTickers(p.sid, p.tickers)
		}
		if !applied {
			p.record(nil, fmt.Errorf("%w: sid %d no longer subscribed", errs.ErrAPI, p.sid))
			break
		}
		s.logger.Debug("subscription updated", "channel", sub.Channel, "sid", sub.SID, "action", p.kind, "tickers", len(sub.Tickers))
		p.record(&sub, nil)

	case typeUnsubscribed:
		sid := f.SID
		if sid == 0 {
			sid = p.sid
		}
		if sub, ok := s.subs.removeSID(sid); ok {
			delete(s.lastSeq, sid)
			s.updates.Publish(Update{Channel: sub.Channel, SID: sid, Msg: Unsubscribed{Subscription: sub}, ReceivedAt: time.Now()})
			s.logger.Info("unsubscribed", "channel", sub.Channel, "sid", sid)
		}
		p.record(nil, nil)

	case typeError:
		cerr := f.commandError()
		s.logger.Warn("command rejected", "id", f.ID, "cmd", p.kind, "code", cerr.Code, "msg", cerr.Message)
		p.record(nil, cerr)
		p.resolve(commandResult{err: cerr})
	}

	if !p.complete() {
		return
	}
	s.dispatch.remove(p.id)

	switch {
	case p.resolved:
	case p.err != nil:
		p.resolve(commandResult{err: p.err})
	case p.followUp != nil:
		next := p.followUp
		next.reply = p.reply
		s.send(next)
	default:
		p.resolve(commandResult{subs: p.results})
	}
	s.release(p)
}

func (s *Session) handleUpdate(f *frame, receivedAt time.Time) {
	msg, err := decodeMessage(f.Type, f.Msg)
	if err != nil {
		s.logger.Warn("failed to decode update", "type", f.Type, "sid", f.SID, "error", err)
		return
	}

	ch, ok := s.subs.channelFor(f.SID)
	if !ok {
		ch = kindChannel[f.Type]
	}

	u := Update{
		Channel:    ch,
		SID:        f.SID,
		Msg:        msg,
		ReceivedAt: receivedAt,
	}
	if f.Seq != nil {
		u.Seq = *f.Seq
		u.SeqGap, u.GapSize = s.checkSequence(f.SID, u.Seq)
	}

	s.updates.Publish(u)
}

// checkSequence records seq for sid and reports a forward gap.
func (s *Session) checkSequence(sid, seq int64) (bool, int64) {
	last, ok := s.lastSeq[sid]
	s.lastSeq[sid] = seq
	if !ok || seq <= last+1 {
		return false, 0
	}

	gap := seq - last - 1
	s.logger.Warn("sequence gap detected",
		"sid", sid,
		"expected", last+1,
		"got", seq,
		"gap", gap,
	)
	return true, gap
}
