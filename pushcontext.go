package pushserver

import (
	"log/slog"
	"sync"
	"time"
)

// PushContext composes the topic registry, the session registry and the
// delivery coordinator. It is the single entry point the transport layer uses
// to subscribe, publish, attach and detach.
//
// Create one per process with New and hand it to collaborators explicitly;
// Lookup exists for code that cannot be given a handle.
type PushContext struct {
	topics   *TopicsContext
	sessions *SessionManager
	delivery *DeliveryCoordinator

	log         *slog.Logger
	startupTime time.Time
	closeOnce   sync.Once
}

// New creates a PushContext and starts its session sweeper.
func New(opts ...Option) (*PushContext, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		if err := opt(&conf); err != nil {
			return nil, err
		}
	}

	sessions := newSessionManager(conf)
	delivery := newDeliveryCoordinator(conf, sessions)
	topics := newTopicsContext(conf, delivery)
	sessions.onRetire = func(id string) { topics.UnsubscribeAll(id) }

	p := &PushContext{
		topics:      topics,
		sessions:    sessions,
		delivery:    delivery,
		log:         conf.Logger,
		startupTime: conf.now(),
	}
	sessions.start()
	return p, nil
}

// TopicsContext returns the topic registry.
func (p *PushContext) TopicsContext() *TopicsContext {
	return p.topics
}

// SessionManager returns the session registry.
func (p *PushContext) SessionManager() *SessionManager {
	return p.sessions
}

// DeliveryCoordinator returns the coordinator bridging topics and transports.
func (p *PushContext) DeliveryCoordinator() *DeliveryCoordinator {
	return p.delivery
}

// Subscribe creates the session for sessionID if needed and subscribes it to
// every key. It stops at the first key that was never created.
func (p *PushContext) Subscribe(sessionID string, keys ...TopicKey) error {
	p.sessions.GetOrCreateSession(sessionID)
	for _, key := range keys {
		if err := p.topics.Subscribe(key, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// OnConnectionOpen is called by the transport layer when a push-capable
// connection for sessionID becomes ready. Queued messages are pushed at once.
func (p *PushContext) OnConnectionOpen(sessionID string, t Transport) *Session {
	p.log.Debug("connection open", slog.String("session", sessionID))
	return p.delivery.Attach(sessionID, t)
}

// OnConnectionClosed is called by the transport layer when the connection for
// sessionID closes or times out. The session and its queue survive until the
// grace period elapses.
func (p *PushContext) OnConnectionClosed(sessionID string) {
	p.log.Debug("connection closed", slog.String("session", sessionID))
	p.delivery.Detach(sessionID)
}

// Shutdown stops the sweeper and releases every session and topic. Nothing is
// persisted. Calling Shutdown more than once is safe.
func (p *PushContext) Shutdown() {
	p.closeOnce.Do(func() {
		p.topics.shutdown()
		p.sessions.shutdown()
		p.log.Info("push context shut down")
	})
}

var (
	defaultMu  sync.Mutex
	defaultCtx *PushContext
)

// Lookup returns the process-wide PushContext, creating one with default
// options on first use.
func Lookup() *PushContext {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx == nil {
		p, err := New()
		if err != nil {
			// default options are always valid
			panic(err)
		}
		defaultCtx = p
	}
	return defaultCtx
}

// SetDefault installs p as the process-wide PushContext returned by Lookup and
// returns the previous one, which may be nil. The caller owns shutting the
// previous context down.
func SetDefault(p *PushContext) *PushContext {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultCtx
	defaultCtx = p
	return prev
}
