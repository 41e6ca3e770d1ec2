// Package broadcast fans values out to any number of independent receivers.
//
// Each receiver owns a fixed-size ring buffer. Publish never blocks: when a
// receiver's ring is full the oldest entry is overwritten and the receiver's
// next Recv reports how many values it missed.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Recv once the broadcaster is closed and the
	// receiver's buffer is drained, or after the receiver is detached.
	ErrClosed = errors.New("broadcast closed")

	// ErrLagged matches any *LaggedError.
	ErrLagged = errors.New("receiver lagged")
)

// LaggedError reports values dropped from a receiver since its last read.
type LaggedError struct {
	N uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged: %d messages dropped", e.N)
}

func (e *LaggedError) Unwrap() error { return ErrLagged }

// Broadcaster distributes published values to every attached receiver.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	capacity  int
	receivers map[*Receiver[T]]struct{}
	closed    bool
	published uint64
}

// New creates a broadcaster whose receivers buffer up to capacity values.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		capacity:  capacity,
		receivers: make(map[*Receiver[T]]struct{}),
	}
}

// Subscribe attaches a new receiver. It observes values published after this call.
// Subscribing to a closed broadcaster returns a receiver that is already closed.
func (b *Broadcaster[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{
		parent: b,
		buf:    make([]T, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		r.closed = true
		return r
	}
	b.receivers[r] = struct{}{}
	return r
}

// Publish delivers v to every receiver without blocking.
// Returns false if the broadcaster is closed.
func (b *Broadcaster[T]) Publish(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.published++
	for r := range b.receivers {
		r.push(v)
	}
	return true
}

// Close stops delivery. Receivers can still drain what they hold.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for r := range b.receivers {
		r.close()
	}
	b.receivers = nil
}

// Len returns the number of attached receivers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receivers)
}

// Stats returns broadcaster statistics.
func (b *Broadcaster[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Receivers: len(b.receivers), Published: b.published, Closed: b.closed}
}

// Stats contains broadcaster statistics.
type Stats struct {
	Receivers int
	Published uint64
	Closed    bool
}

func (b *Broadcaster[T]) detach(r *Receiver[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.receivers, r)
}

// Receiver is one consumer's view of a Broadcaster.
// A Receiver must not be shared between goroutines that call Recv concurrently.
type Receiver[T any] struct {
	parent *Broadcaster[T]

	mu       sync.Mutex
	buf      []T
	head     int // read position
	count    int
	lagged   uint64
	dropped  uint64
	closed   bool
	detached bool
	notify   chan struct{}
}

// push must be called with the parent lock held.
func (r *Receiver[T]) push(v T) {
	r.mu.Lock()
	capacity := len(r.buf)
	if r.count == capacity {
		// Drop oldest
		r.head = (r.head + 1) % capacity
		r.count--
		r.lagged++
		r.dropped++
	}
	r.buf[(r.head+r.count)%capacity] = v
	r.count++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Receiver[T]) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Recv returns the next value, blocking until one is available.
//
// After drops it returns a *LaggedError once, then resumes with the oldest
// value still buffered. It returns ErrClosed when nothing more will arrive and
// ctx.Err() if ctx ends first.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, ok, err := r.tryRecv()
		if ok {
			return v, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-r.notify:
		}
	}
}

// TryRecv returns the next value without blocking.
// ok is false when the buffer is empty and the receiver is still open.
func (r *Receiver[T]) TryRecv() (v T, ok bool, err error) {
	return r.tryRecv()
}

func (r *Receiver[T]) tryRecv() (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.detached {
		return zero, true, ErrClosed
	}
	if r.lagged > 0 {
		n := r.lagged
		r.lagged = 0
		return zero, true, &LaggedError{N: n}
	}
	if r.count > 0 {
		v := r.buf[r.head]
		r.buf[r.head] = zero // Clear reference for GC
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		return v, true, nil
	}
	if r.closed {
		return zero, true, ErrClosed
	}
	return zero, false, nil
}

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns the total number of values this receiver has missed.
func (r *Receiver[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close detaches the receiver. Other receivers are unaffected.
func (r *Receiver[T]) Close() {
	r.parent.detach(r)

	r.mu.Lock()
	r.detached = true
	r.closed = true
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.count = 0
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}
