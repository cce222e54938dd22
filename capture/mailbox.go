package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Mailbox is a single-slot, latest-wins hand-off between a producer and
// one consumer.
//
// Put never blocks. A frame still pending when the next one arrives is
// released and counted as a drop, so a slow consumer always sees the newest
// frame and the producer never waits on it.
type Mailbox struct {
	mu      sync.Mutex
	pending *Frame
	notify  chan struct{}

	drops       atomic.Uint64
	published   atomic.Uint64
	interrupted atomic.Bool
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Put publishes f, replacing and releasing any pending frame.
func (m *Mailbox) Put(f *Frame) {
	m.mu.Lock()
	old := m.pending
	m.pending = f
	m.mu.Unlock()

	if old != nil {
		m.drops.Add(1)
		old.Release()
	}
	m.published.Add(1)

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take removes the pending frame without waiting. It returns nil when
// nothing is pending.
func (m *Mailbox) Take() *Frame {
	m.mu.Lock()
	f := m.pending
	m.pending = nil
	m.mu.Unlock()
	return f
}

// Wait returns the pending frame, waiting up to timeout or until ctx is
// done for one to arrive. It returns nil if none arrived.
func (m *Mailbox) Wait(ctx context.Context, timeout time.Duration) *Frame {
	if f := m.Take(); f != nil {
		return f
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-m.notify:
			if f := m.Take(); f != nil {
				return f
			}
			if m.interrupted.Swap(false) {
				return nil
			}
		case <-timer.C:
			return m.Take()
		case <-ctx.Done():
			return nil
		}
	}
}

// Interrupt wakes a consumer blocked in Wait without publishing a frame.
func (m *Mailbox) Interrupt() {
	m.interrupted.Store(true)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Clear releases the pending frame, if any.
func (m *Mailbox) Clear() {
	if f := m.Take(); f != nil {
		f.Release()
	}
}

// Drops returns how many frames were replaced before being taken.
func (m *Mailbox) Drops() uint64 { return m.drops.Load() }

// Published returns how many frames were put.
func (m *Mailbox) Published() uint64 { return m.published.Load() }
