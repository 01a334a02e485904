package bus

import (
	"context"
	"sync"

	"canvas-server/core"
)

// Subscription is one consumer's view of the bus. A Subscription is meant to
// be drained by a single goroutine.
type Subscription struct {
	bus   *Bus
	ready chan struct{}

	mu           sync.Mutex
	buf          []core.Command
	head         int
	n            int
	skipped      uint64
	disconnected bool
	closed       bool
}

func newSubscription(b *Bus, capacity int) *Subscription {
	return &Subscription{
		bus:   b,
		ready: make(chan struct{}, 1),
		buf:   make([]core.Command, capacity),
	}
}

// Ready is signalled whenever a receive may make progress: a command, a lag
// report or the close of the bus is pending. Callers select on it and then
// call TryRecv.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// TryRecv returns the next pending command without blocking. It returns
// ErrEmpty when nothing is pending, a *LaggedError when commands were
// dropped since the previous receive, and ErrClosed once the bus is closed
// and the buffer is drained.
func (s *Subscription) TryRecv() (core.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.Command{}, ErrClosed
	}
	if s.skipped > 0 {
		skipped := s.skipped
		s.skipped = 0
		s.rearm()
		return core.Command{}, &LaggedError{Skipped: skipped}
	}
	if s.n == 0 {
		if s.disconnected {
			s.signal()
			return core.Command{}, ErrClosed
		}
		return core.Command{}, ErrEmpty
	}

	cmd := s.buf[s.head]
	s.buf[s.head] = core.Command{}
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	s.rearm()
	return cmd, nil
}

// Recv blocks until a command, a lag report or closure is available, or ctx
// is done.
func (s *Subscription) Recv(ctx context.Context) (core.Command, error) {
	for {
		cmd, err := s.TryRecv()
		if err != ErrEmpty {
			return cmd, err
		}

		select {
		case <-ctx.Done():
			return core.Command{}, ctx.Err()
		case <-s.ready:
		}
	}
}

// Close drops the subscription from the bus. Pending commands are discarded.
func (s *Subscription) Close() {
	s.bus.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	clear(s.buf)
	s.n = 0
	s.skipped = 0
	s.signal()
}

// Len returns the number of buffered commands.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *Subscription) push(cmd core.Command) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.n == len(s.buf) {
		// full: overwrite the oldest
		s.buf[s.head] = core.Command{}
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.skipped++
	}
	s.buf[(s.head+s.n)%len(s.buf)] = cmd
	s.n++
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription) disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
	s.signal()
}

// rearm keeps Ready signalled while more work is pending. Caller holds mu.
func (s *Subscription) rearm() {
	if s.n > 0 || s.skipped > 0 || s.disconnected {
		s.signal()
	}
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
