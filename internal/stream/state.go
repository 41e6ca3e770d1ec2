package stream

import "sort"

// Subscription is an active channel subscription on a live session.
type Subscription struct {
	Channel Channel
	SID     int64    // Server-assigned, valid only for the owning session
	Tickers []string // Sorted, unique; empty for unfiltered user channels
}

// HasTicker reports whether ticker is part of the subscription.
func (s Subscription) HasTicker(ticker string) bool {
	i := sort.SearchStrings(s.Tickers, ticker)
	return i < len(s.Tickers) && s.Tickers[i] == ticker
}

// Snapshot is a point-in-time copy of every active subscription.
type Snapshot map[Channel]Subscription

// Channels returns the subscribed channels in sorted order.
func (s Snapshot) Channels() []Channel {
	out := make([]Channel, 0, len(s))
	for ch := range s {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tickers returns the tickers subscribed on ch.
func (s Snapshot) Tickers(ch Channel) []string {
	return s[ch].Tickers
}

// subscriptionState is owned by the run loop. Nothing else touches it.
type subscriptionState struct {
	byChannel map[Channel]*subEntry
	bySID     map[int64]Channel
}

type subEntry struct {
	sid     int64
	tickers map[string]struct{}
}

func newSubscriptionState() *subscriptionState {
	return &subscriptionState{
		byChannel: make(map[Channel]*subEntry),
		bySID:     make(map[int64]Channel),
	}
}

func (s *subscriptionState) get(ch Channel) (*subEntry, bool) {
	e, ok := s.byChannel[ch]
	return e, ok
}

func (s *subscriptionState) channelFor(sid int64) (Channel, bool) {
	ch, ok := s.bySID[sid]
	return ch, ok
}

// put records a confirmed subscribe, replacing any previous entry for ch.
func (s *subscriptionState) put(ch Channel, sid int64, tickers []string) Subscription {
	if old, ok := s.byChannel[ch]; ok {
		delete(s.bySID, old.sid)
	}
	e := &subEntry{sid: sid, tickers: make(map[string]struct{}, len(tickers))}
	for _, t := range tickers {
		e.tickers[t] = struct{}{}
	}
	s.byChannel[ch] = e
	s.bySID[sid] = ch
	return e.subscription(ch)
}

func (s *subscriptionState) addTickers(sid int64, tickers []string) (Subscription, bool) {
	ch, ok := s.bySID[sid]
	if !ok {
		return Subscription{}, false
	}
	e := s.byChannel[ch]
	for _, t := range tickers {
		e.tickers[t] = struct{}{}
	}
	return e.subscription(ch), true
}

func (s *subscriptionState) removeTickers(sid int64, tickers []string) (Subscription, bool) {
	ch, ok := s.bySID[sid]
	if !ok {
		return Subscription{}, false
	}
	e := s.byChannel[ch]
	for _, t := range tickers {
		delete(e.tickers, t)
	}
	return e.subscription(ch), true
}

func (s *subscriptionState) removeSID(sid int64) (Subscription, bool) {
	ch, ok := s.bySID[sid]
	if !ok {
		return Subscription{}, false
	}
	sub := s.byChannel[ch].subscription(ch)
	delete(s.bySID, sid)
	delete(s.byChannel, ch)
	return sub, true
}

func (s *subscriptionState) snapshot() Snapshot {
	out := make(Snapshot, len(s.byChannel))
	for ch, e := range s.byChannel {
		out[ch] = e.subscription(ch)
	}
	return out
}

func (s *subscriptionState) clear() {
	s.byChannel = make(map[Channel]*subEntry)
	s.bySID = make(map[int64]Channel)
}

// subscription copies the entry so callers never alias the live set.
func (e *subEntry) subscription(ch Channel) Subscription {
	sub := Subscription{Channel: ch, SID: e.sid}
	if len(e.tickers) > 0 {
		sub.Tickers = make([]string, 0, len(e.tickers))
		for t := range e.tickers {
			sub.Tickers = append(sub.Tickers, t)
		}
		sort.Strings(sub.Tickers)
	}
	return sub
}

// missing returns the tickers not yet in the entry.
func (e *subEntry) missing(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		if _, ok := e.tickers[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// present returns the tickers already in the entry.
func (e *subEntry) present(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		if _, ok := e.tickers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// without returns the entry's tickers minus removing, sorted.
func (e *subEntry) without(removing []string) []string {
	drop := make(map[string]struct{}, len(removing))
	for _, t := range removing {
		drop[t] = struct{}{}
	}
	var out []string
	for t := range e.tickers {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
