package pushserver

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/azer/debug"
	"github.com/google/uuid"
)

// SessionManager is the process-wide registry of push sessions. It exclusively
// owns every Session; topics refer to sessions by id only.
//
// Sessions are never removed when a transport disconnects. A background sweep
// retires a session only once its queue is empty, no transport is attached, and
// it has been idle for longer than the grace period.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxQueue int
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
	onRetire func(id string)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func newSessionManager(conf config) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		maxQueue: conf.MaxQueueLength,
		grace:    conf.GracePeriod,
		interval: conf.SweepInterval,
		now:      conf.now,
		log:      conf.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// NewSessionID returns a fresh random session identifier for transports that
// arrive without one.
func (sm *SessionManager) NewSessionID() string {
	return uuid.NewString()
}

// GetOrCreateSession returns the session for id, creating and registering it
// on first reference. Concurrent callers racing on the same id all receive the
// same instance. The session's activity time is refreshed.
func (sm *SessionManager) GetOrCreateSession(id string) *Session {
	now := sm.now()

	sm.mu.RLock()
	s, ok := sm.sessions[id]
	if ok {
		s.touch(now)
	}
	sm.mu.RUnlock()
	if ok {
		return s
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok {
		s.touch(now)
		return s
	}
	s = newSession(id, sm.maxQueue, now)
	sm.sessions[id] = s
	debug.Debug("new push session registered: " + id)
	return s
}

// GetPushSession looks up a session without creating or touching it.
func (sm *SessionManager) GetPushSession(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Touch records that the client behind id is alive. It returns false when no
// such session exists.
func (sm *SessionManager) Touch(id string) bool {
	s, ok := sm.GetPushSession(id)
	if ok {
		s.touch(sm.now())
	}
	return ok
}

// Len returns the number of registered sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Sessions returns a snapshot of all registered sessions, oldest first.
func (sm *SessionManager) Sessions() []*Session {
	sm.mu.RLock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	sm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].created.Before(out[j].created)
	})
	return out
}

// Sweep retires every reclaimable session and returns how many were removed.
// It is called periodically by the background sweeper but is safe to invoke
// directly.
//
// onRetire runs before the registry lock is released, so a client
// reconnecting under a retired id gets a new session only after the old
// subscriptions are gone. onRetire must not call back into the SessionManager.
func (sm *SessionManager) Sweep() int {
	now := sm.now()
	var retired []string

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.sessions {
		s.mu.Lock()
		if s.reclaimableLocked(now, sm.grace) {
			s.retired = true
			delete(sm.sessions, id)
			retired = append(retired, id)
		}
		s.mu.Unlock()
	}

	for _, id := range retired {
		sm.log.Debug("push session retired", slog.String("session", id))
		if sm.onRetire != nil {
			sm.onRetire(id)
		}
	}
	return len(retired)
}

// start launches the background sweeper. A non-positive interval disables it.
func (sm *SessionManager) start() {
	sm.startOnce.Do(func() {
		if sm.interval <= 0 {
			close(sm.done)
			return
		}
		go sm.run()
	})
}

func (sm *SessionManager) run() {
	defer close(sm.done)
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := sm.Sweep(); n > 0 {
				sm.log.Info("reclaimed idle push sessions", slog.Int("count", n))
			}
		case <-sm.stop:
			return
		}
	}
}

// shutdown stops the sweeper and releases every session.
func (sm *SessionManager) shutdown() {
	sm.stopOnce.Do(func() {
		close(sm.stop)
		sm.startOnce.Do(func() { close(sm.done) })
		<-sm.done

		sm.mu.Lock()
		for id, s := range sm.sessions {
			s.mu.Lock()
			s.retired = true
			s.transport = nil
			s.messages = nil
			s.notifyLocked()
			s.mu.Unlock()
			delete(sm.sessions, id)
		}
		sm.mu.Unlock()
	})
}
