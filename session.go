package pushserver

import (
	"context"
	"sync"
	"time"
)

// DeliveryState is the attachment state of a Session.
type DeliveryState int

const (
	// Detached sessions have no live transport; messages only enqueue.
	Detached DeliveryState = iota
	// Attached sessions have a transport ready to receive pushes.
	Attached
)

func (s DeliveryState) String() string {
	if s == Attached {
		return "ATTACHED"
	}
	return "DETACHED"
}

// Session is a named mailbox holding the ordered queue of published but not yet
// delivered messages for one logical client.
//
// The queue and the attachment state share one lock. At most one drain is in
// flight per session at any time.
type Session struct {
	id       string
	maxQueue int
	created  time.Time

	mu           sync.Mutex
	messages     []Message
	transport    Transport
	draining     bool
	retired      bool
	lastActivity time.Time
	delivered    uint64
	dropped      uint64
	changed      chan struct{} // closed and replaced whenever the queue length changes
}

func newSession(id string, maxQueue int, now time.Time) *Session {
	return &Session{
		id:           id,
		maxQueue:     maxQueue,
		created:      now,
		lastActivity: now,
		changed:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Created returns when the session was first referenced.
func (s *Session) Created() time.Time {
	return s.created
}

// Messages returns a snapshot of the queued messages in publish order. It does
// not drain the queue.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of queued messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// State reports whether a transport is attached.
func (s *Session) State() DeliveryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() DeliveryState {
	if s.transport != nil {
		return Attached
	}
	return Detached
}

// LastActivity returns the last time the client was confirmed alive.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Dropped returns how many messages were discarded by the overflow policy.
func (s *Session) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Delivered returns how many messages were accepted by a transport.
func (s *Session) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Enqueue appends msg to the tail of the queue. It always succeeds; when the
// queue is at capacity the oldest message is dropped and overflowed is true.
func (s *Session) Enqueue(msg Message) (overflowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

// Drain atomically removes and returns all queued messages in FIFO order.
func (s *Session) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked()
}

// WaitFor blocks until cond holds for the current queue length or ctx is done.
func (s *Session) WaitFor(ctx context.Context, cond func(n int) bool) error {
	for {
		s.mu.Lock()
		n, ch := len(s.messages), s.changed
		s.mu.Unlock()
		if cond(n) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitEmpty blocks until the queue is empty or ctx is done.
func (s *Session) WaitEmpty(ctx context.Context) error {
	return s.WaitFor(ctx, func(n int) bool { return n == 0 })
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

func (s *Session) appendLocked(msg Message) (overflowed bool) {
	s.messages = append(s.messages, msg)
	overflowed = s.trimLocked()
	s.notifyLocked()
	return overflowed
}

func (s *Session) takeLocked() []Message {
	if len(s.messages) == 0 {
		return nil
	}
	out := s.messages
	s.messages = nil
	s.notifyLocked()
	return out
}

// requeueLocked puts msgs back at the head of the queue, ahead of anything
// published since they were drained.
func (s *Session) requeueLocked(msgs []Message) (overflowed bool) {
	if len(msgs) == 0 {
		return false
	}
	q := make([]Message, 0, len(msgs)+len(s.messages))
	q = append(q, msgs...)
	q = append(q, s.messages...)
	s.messages = q
	overflowed = s.trimLocked()
	s.notifyLocked()
	return overflowed
}

func (s *Session) trimLocked() bool {
	if s.maxQueue <= 0 || len(s.messages) <= s.maxQueue {
		return false
	}
	over := len(s.messages) - s.maxQueue
	s.dropped += uint64(over)
	s.messages = append(s.messages[:0:0], s.messages[over:]...)
	return true
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// reclaimableLocked reports whether the session may be retired at now.
func (s *Session) reclaimableLocked(now time.Time, grace time.Duration) bool {
	return len(s.messages) == 0 &&
		s.transport == nil &&
		!s.draining &&
		now.Sub(s.lastActivity) > grace
}
