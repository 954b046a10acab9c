package pushserver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/azer/debug"
)

// Transport is the capability a live client connection offers the
// DeliveryCoordinator. Implementations are supplied by the transport layer.
//
// Push hands msgs to the connection in order and returns how many were
// accepted. A short count must come with a non-nil error; the rest are
// re-queued for the next attach. Push must honor ctx and not block past it.
//
// Transports are compared by identity, so implementations should be pointer
// types.
type Transport interface {
	Push(ctx context.Context, msgs []Message) (delivered int, err error)
}

// DeliveryCoordinator moves messages from session queues to attached
// transports.
//
// Every message is queued before any push is attempted, so a push racing with
// a detach cannot lose it. A failed push is not retried: the session reverts to
// DETACHED and the next Attach redelivers.
type DeliveryCoordinator struct {
	sessions *SessionManager
	timeout  time.Duration
	log      *slog.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func newDeliveryCoordinator(conf config, sessions *SessionManager) *DeliveryCoordinator {
	return &DeliveryCoordinator{
		sessions: sessions,
		timeout:  conf.PushTimeout,
		log:      conf.Logger,
	}
}

// Deliver enqueues msg for sessionID and pushes immediately if the session is
// attached. Unknown or retired sessions are skipped.
func (dc *DeliveryCoordinator) Deliver(sessionID string, msg Message) {
	s, ok := dc.sessions.GetPushSession(sessionID)
	if !ok {
		debug.Debug("skipping delivery to unknown session " + sessionID)
		return
	}

	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return
	}
	overflowed := s.appendLocked(msg)
	s.mu.Unlock()

	if overflowed {
		dc.overflow(s)
	}
	dc.flush(s)
}

// Attach binds t to the session, creating the session on first reference, and
// pushes anything already queued. A previously attached transport is replaced.
func (dc *DeliveryCoordinator) Attach(sessionID string, t Transport) *Session {
	for {
		s := dc.sessions.GetOrCreateSession(sessionID)
		s.mu.Lock()
		if s.retired {
			s.mu.Unlock()
			continue
		}
		if s.transport != nil && s.transport != t {
			debug.Debug("replacing transport for session " + sessionID)
		}
		s.transport = t
		s.mu.Unlock()

		dc.log.Debug("transport attached", slog.String("session", sessionID))
		dc.flush(s)
		return s
	}
}

// Detach marks the session DETACHED regardless of which transport is attached.
// Messages stay queued for the next Attach. It reports whether a transport was
// attached.
func (dc *DeliveryCoordinator) Detach(sessionID string) bool {
	return dc.detach(sessionID, nil)
}

// detach clears the session's transport. When t is non-nil, only that exact
// transport is detached, so a late close from a replaced connection does not
// detach its successor.
func (dc *DeliveryCoordinator) detach(sessionID string, t Transport) bool {
	s, ok := dc.sessions.GetPushSession(sessionID)
	if !ok {
		return false
	}
	s.mu.Lock()
	attached := s.transport != nil && (t == nil || s.transport == t)
	if attached {
		s.transport = nil
	}
	s.mu.Unlock()
	s.touch(dc.sessions.now())

	if attached {
		dc.log.Debug("transport detached", slog.String("session", sessionID))
	}
	return attached
}

// Requeue returns msgs that a transport accepted but never wrote to the wire to
// the head of the session queue, then pushes again if a transport is attached.
//
// It is meant for transports that buffer between Push and the wire. The SSE
// connection writes synchronously and never needs it.
func (dc *DeliveryCoordinator) Requeue(sessionID string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	s, ok := dc.sessions.GetPushSession(sessionID)
	if !ok {
		dc.log.Warn("dropping messages for retired session",
			slog.String("session", sessionID), slog.Int("count", len(msgs)))
		return
	}
	s.mu.Lock()
	overflowed := s.requeueLocked(msgs)
	s.mu.Unlock()
	if overflowed {
		dc.overflow(s)
	}
	dc.flush(s)
}

// flush drains s and pushes to its transport until the queue is empty, the
// session detaches, or a push fails. If another flush already holds the
// session's drain, flush returns at once; the holder picks up new messages.
func (dc *DeliveryCoordinator) flush(s *Session) {
	s.mu.Lock()
	if s.draining || s.transport == nil || len(s.messages) == 0 {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for {
		t := s.transport
		batch := s.takeLocked()
		s.mu.Unlock()

		n, err := dc.push(t, batch)

		s.mu.Lock()
		if n > len(batch) {
			n = len(batch)
		}
		s.delivered += uint64(n)
		dc.delivered.Add(uint64(n))

		if err == nil && n < len(batch) {
			err = errors.New("transport accepted a partial batch without error")
		}
		if err != nil {
			overflowed := s.requeueLocked(batch[n:])
			if s.transport == t {
				s.transport = nil
			}
			s.draining = false
			s.mu.Unlock()

			dc.failed.Add(1)
			dc.log.Warn("delivery attempt failed",
				slog.String("session", s.id),
				slog.Any("err", &DeliveryError{SessionID: s.id, Delivered: n, Undelivered: len(batch) - n, Err: err}))
			if overflowed {
				dc.overflow(s)
			}
			return
		}

		if s.transport == nil || len(s.messages) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
	}
}

func (dc *DeliveryCoordinator) push(t Transport, batch []Message) (int, error) {
	ctx := context.Background()
	if dc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dc.timeout)
		defer cancel()
	}
	return t.Push(ctx, batch)
}

func (dc *DeliveryCoordinator) overflow(s *Session) {
	dc.dropped.Add(1)
	dc.log.Warn("dropped oldest queued message",
		slog.String("session", s.id),
		slog.Any("err", ErrQueueOverflow))
}

// Delivered returns the number of messages accepted by transports.
func (dc *DeliveryCoordinator) Delivered() uint64 { return dc.delivered.Load() }

// Failed returns the number of failed delivery attempts.
func (dc *DeliveryCoordinator) Failed() uint64 { return dc.failed.Load() }

// Overflows returns the number of overflow events across all sessions.
func (dc *DeliveryCoordinator) Overflows() uint64 { return dc.dropped.Load() }
