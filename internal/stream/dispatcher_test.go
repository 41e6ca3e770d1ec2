package stream

import (
	"errors"
	"testing"
	"time"
)

func TestDispatcher_RegisterAssignsIncreasingIDs(t *testing.T) {
	d := newDispatcher(time.Second)
	now := time.Now()

	var last int64
	for i := 0; i < 5; i++ {
		id := d.register(&pendingCommand{expected: 1, reply: make(chan commandResult, 1)}, now)
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
	if last != 5 || d.len() != 5 {
		t.Errorf("last id = %d, len = %d; want 5, 5", last, d.len())
	}

	p, ok := d.lookup(3)
	if !ok || p.id != 3 {
		t.Errorf("lookup(3) = %+v, %v", p, ok)
	}
	if !p.deadline.Equal(now.Add(time.Second)) {
		t.Errorf("deadline = %s, want now+1s", p.deadline)
	}
	d.remove(3)
	if _, ok := d.lookup(3); ok {
		t.Error("lookup after remove succeeded")
	}
}

func TestPendingCommand_RecordAndResolve(t *testing.T) {
	p := &pendingCommand{expected: 2, reply: make(chan commandResult, 1)}

	errFirst := errors.New("first")
	if p.record(&Subscription{SID: 1}, nil) {
		t.Fatal("complete after one of two confirmations")
	}
	if !p.record(nil, errFirst) {
		t.Fatal("incomplete after two confirmations")
	}
	if !errors.Is(p.err, errFirst) || len(p.results) != 1 {
		t.Errorf("err = %v results = %v", p.err, p.results)
	}

	p.resolve(commandResult{err: p.err})
	p.resolve(commandResult{}) // ignored

	res := <-p.reply
	if !errors.Is(res.err, errFirst) {
		t.Errorf("reply err = %v, want first", res.err)
	}
	select {
	case extra := <-p.reply:
		t.Errorf("second reply delivered: %+v", extra)
	default:
	}
}

func TestDispatcher_FailAll(t *testing.T) {
	d := newDispatcher(time.Second)
	replies := make([]chan commandResult, 3)
	for i := range replies {
		replies[i] = make(chan commandResult, 1)
		d.register(&pendingCommand{expected: 1, reply: replies[i]}, time.Now())
	}

	boom := errors.New("boom")
	if n := d.failAll(boom); n != 3 {
		t.Errorf("failAll = %d, want 3", n)
	}
	for i, r := range replies {
		if res := <-r; !errors.Is(res.err, boom) {
			t.Errorf("reply %d err = %v", i, res.err)
		}
	}
	if d.len() != 0 {
		t.Errorf("len = %d after failAll", d.len())
	}
}

func TestDispatcher_Sweep(t *testing.T) {
	d := newDispatcher(100 * time.Millisecond)
	start := time.Now()

	old := &pendingCommand{expected: 1, reply: make(chan commandResult, 1)}
	fresh := &pendingCommand{expected: 1, reply: make(chan commandResult, 1)}
	d.register(old, start)
	d.register(fresh, start.Add(150*time.Millisecond))

	dropped := d.sweep(start.Add(250*time.Millisecond), errors.New("abandoned"))
	if len(dropped) != 1 || dropped[0].id != old.id {
		t.Fatalf("dropped %d commands, want only %d", len(dropped), old.id)
	}
	if _, ok := d.lookup(fresh.id); !ok {
		t.Error("fresh command swept")
	}
}
