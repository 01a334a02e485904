// Package bus is the in-process command bus shared by every session and the
// persistence worker.
//
// Every subscriber owns a bounded ring buffer. Publish appends to all of them
// under a single lock, so subscribers observe one global order. A subscriber
// that falls more than its capacity behind loses its oldest commands and is
// told so through a LaggedError on the next receive; the publisher is never
// blocked.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"canvas-server/core"
)

// DefaultCapacity is the number of undelivered commands kept per subscriber.
const DefaultCapacity = 16

var (
	// ErrClosed is returned once the bus is gone (or the subscription was
	// closed) and no buffered command is left.
	ErrClosed = errors.New("bus: closed")
	// ErrEmpty is returned by TryRecv when nothing is pending.
	ErrEmpty = errors.New("bus: no command pending")
	// ErrLagged matches every *LaggedError.
	ErrLagged = errors.New("bus: subscriber lagged")
)

// LaggedError reports how many commands a slow subscriber missed. It is not
// fatal: the next receive continues with the oldest retained command.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, %d commands skipped", e.Skipped)
}

func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}

type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscription]struct{}
	closed   bool
}

// New creates a bus whose subscribers buffer up to capacity commands each.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Capacity returns the per-subscriber buffer size.
func (b *Bus) Capacity() int {
	return b.capacity
}

// Publish delivers cmd to every live subscriber. It never blocks on a
// subscriber and silently does nothing when there are none.
func (b *Bus) Publish(cmd core.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(cmd)
	}
}

// Subscribe returns a new cursor that sees only commands published after
// this call returns.
func (b *Bus) Subscribe() *Subscription {
	s := newSubscription(b, b.capacity)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.disconnect()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disconnects every subscriber. Buffered commands remain readable;
// after them receivers get ErrClosed. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.disconnect()
	}
	b.subs = nil
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}
