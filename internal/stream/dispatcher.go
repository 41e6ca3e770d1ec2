package stream

import (
	"time"
)

type commandKind int

const (
	kindSubscribe commandKind = iota
	kindAddMarkets
	kindDeleteMarkets
	kindUnsubscribe
)

func (k commandKind) String() string {
	switch k {
	case kindSubscribe:
		return cmdSubscribe
	case kindAddMarkets:
		return actionAddMarkets
	case kindDeleteMarkets:
		return actionDeleteMarkets
	case kindUnsubscribe:
		return cmdUnsubscribe
	default:
		return "unknown"
	}
}

// commandResult is delivered once per caller request.
type commandResult struct {
	subs []Subscription
	err  error
}

// pendingCommand tracks one outgoing command until every expected
// confirmation has arrived.
type pendingCommand struct {
	id       int64
	kind     commandKind
	expected int
	received int

	channels []Channel // channels the command touches
	sid      int64     // add/delete markets, unsubscribe
	tickers  []string  // subscribe tickers, or the markets being added/removed

	results  []Subscription
	err      error // first error confirmation
	resolved bool
	reply    chan commandResult // buffered, len 1
	deadline time.Time

	// followUp is issued with the same reply once this command succeeds.
	followUp *pendingCommand
}

// record counts one confirmation and reports whether all have arrived.
func (p *pendingCommand) record(sub *Subscription, err error) bool {
	p.received++
	if err != nil && p.err == nil {
		p.err = err
	}
	if sub != nil {
		p.results = append(p.results, *sub)
	}
	return p.complete()
}

func (p *pendingCommand) complete() bool {
	return p.received >= p.expected
}

// resolve replies to the caller at most once.
func (p *pendingCommand) resolve(res commandResult) {
	if p.resolved {
		return
	}
	p.resolved = true
	select {
	case p.reply <- res:
	default:
	}
}

// dispatcher correlates confirmations with commands by request id.
// It is owned by the run loop.
type dispatcher struct {
	nextID  int64
	timeout time.Duration
	pending map[int64]*pendingCommand
}

func newDispatcher(timeout time.Duration) *dispatcher {
	return &dispatcher{
		timeout: timeout,
		pending: make(map[int64]*pendingCommand),
	}
}

// register assigns the next request id.
func (d *dispatcher) register(p *pendingCommand, now time.Time) int64 {
	d.nextID++
	p.id = d.nextID
	p.deadline = now.Add(d.timeout)
	d.pending[p.id] = p
	return p.id
}

func (d *dispatcher) lookup(id int64) (*pendingCommand, bool) {
	p, ok := d.pending[id]
	return p, ok
}

func (d *dispatcher) remove(id int64) {
	delete(d.pending, id)
}

func (d *dispatcher) len() int {
	return len(d.pending)
}

// failAll resolves every pending command with err and forgets them.
func (d *dispatcher) failAll(err error) int {
	n := len(d.pending)
	for id, p := range d.pending {
		p.resolve(commandResult{err: err})
		delete(d.pending, id)
	}
	return n
}

// sweep drops commands whose caller has long since timed out.
// Confirmations for them after this point are ignored.
func (d *dispatcher) sweep(now time.Time, err error) []*pendingCommand {
	var dropped []*pendingCommand
	for id, p := range d.pending {
		if now.After(p.deadline.Add(d.timeout)) {
			p.resolve(commandResult{err: err})
			delete(d.pending, id)
			dropped = append(dropped, p)
		}
	}
	return dropped
}
