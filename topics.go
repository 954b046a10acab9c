package pushserver

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/azer/debug"
	"github.com/mroth/pushserver/router"
)

// TopicsContext is the process-wide registry of topics. It exclusively owns
// every Topic.
//
// The registry lock guards only the topic index. Fan-out runs against each
// Topic's own lock, so publishing to one topic never blocks another.
type TopicsContext struct {
	mu     sync.RWMutex
	index  *router.Node[*Topic]
	closed bool

	delivery *DeliveryCoordinator
	now      func() time.Time
	log      *slog.Logger
}

func newTopicsContext(conf config, delivery *DeliveryCoordinator) *TopicsContext {
	return &TopicsContext{
		index:    router.New[*Topic](),
		delivery: delivery,
		now:      conf.now,
		log:      conf.Logger,
	}
}

func keyNamespace(key TopicKey) router.Namespace {
	if key.Subtopic == "" {
		return router.Namespace{key.Name}
	}
	return router.Namespace{key.Name, key.Subtopic}
}

// GetOrCreateTopic returns the Topic for key, creating and registering it if
// needed. Concurrent callers racing on the same key all receive the same
// instance.
func (tc *TopicsContext) GetOrCreateTopic(key TopicKey) *Topic {
	ns := keyNamespace(key)

	tc.mu.RLock()
	t, ok := tc.index.Lookup(ns)
	tc.mu.RUnlock()
	if ok {
		return t
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if t, ok := tc.index.Lookup(ns); ok {
		return t
	}
	t = newTopic(key, tc.now())
	tc.index.SetAt(ns, t)
	debug.Debug("topic created: " + key.String())
	return t
}

// Topic returns the registered Topic for key, if any.
func (tc *TopicsContext) Topic(key TopicKey) (*Topic, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.index.Lookup(keyNamespace(key))
}

// Topics returns the keys of every registered topic, sorted by address.
func (tc *TopicsContext) Topics() []TopicKey {
	tc.mu.RLock()
	topics := tc.index.Values()
	tc.mu.RUnlock()
	return sortedKeys(topics)
}

// Subtopics returns the keys registered under topic name, including the bare
// name itself if it was created.
func (tc *TopicsContext) Subtopics(name string) []TopicKey {
	tc.mu.RLock()
	var topics []*Topic
	if n := tc.index.Find(router.Namespace{name}); n != nil {
		topics = n.Values()
	}
	tc.mu.RUnlock()
	return sortedKeys(topics)
}

// Names returns every top-level topic name, sorted. A name is listed when the
// bare topic or any of its subtopics is registered.
func (tc *TopicsContext) Names() []string {
	tc.mu.RLock()
	children := tc.index.Children()
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Key()
	}
	tc.mu.RUnlock()
	sort.Strings(names)
	return names
}

func sortedKeys(topics []*Topic) []TopicKey {
	keys := make([]TopicKey, len(topics))
	for i, t := range topics {
		keys[i] = t.key
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Publish fans payload out to every session subscribed to key. Publishing to a
// topic with no subscribers is a silent no-op; publishing to a key that was
// never created fails with ErrUnknownTopic.
//
// Delivery outcome never affects the result: a disconnected subscriber just
// keeps the message queued.
func (tc *TopicsContext) Publish(key TopicKey, payload any) error {
	msg, err := NewMessage(key, payload)
	if err != nil {
		return &TopicError{Key: key, Err: err}
	}
	return tc.PublishMessage(msg)
}

// PublishMessage is Publish for a prepared Message, e.g. one carrying an SSE
// event name. msg.Topic selects the topic.
func (tc *TopicsContext) PublishMessage(msg Message) error {
	tc.mu.RLock()
	closed := tc.closed
	t, ok := tc.index.Lookup(keyNamespace(msg.Topic))
	tc.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return &TopicError{Key: msg.Topic, Err: ErrUnknownTopic}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = tc.now()
	}

	n := t.fanOut(msg, tc.delivery.Deliver)
	tc.log.Debug("published",
		slog.String("topic", msg.Topic.String()),
		slog.Int("subscribers", n),
		slog.Int("bytes", len(msg.Data)))
	return nil
}

// RemoveTopic administratively removes key. It returns false if key is absent.
// A publish already in flight completes against its subscriber snapshot.
func (tc *TopicsContext) RemoveTopic(key TopicKey) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := tc.index.Find(keyNamespace(key))
	if n == nil {
		return false
	}
	ns := n.Namespace()
	if !n.Clear() {
		return false
	}
	debug.Debug("topic removed: " + ns.String())
	return true
}

// Subscribe adds sessionID to the topic at key, creating the session on first
// reference. The topic must already exist.
func (tc *TopicsContext) Subscribe(key TopicKey, sessionID string) error {
	t, ok := tc.Topic(key)
	if !ok {
		return &TopicError{Key: key, Err: ErrUnknownTopic}
	}
	tc.delivery.sessions.GetOrCreateSession(sessionID)
	t.Subscribe(sessionID)
	return nil
}

// Unsubscribe removes sessionID from the topic at key. It reports whether the
// session was subscribed.
func (tc *TopicsContext) Unsubscribe(key TopicKey, sessionID string) bool {
	t, ok := tc.Topic(key)
	if !ok {
		return false
	}
	return t.Unsubscribe(sessionID)
}

// UnsubscribeAll removes sessionID from every topic and returns how many
// topics it was removed from.
func (tc *TopicsContext) UnsubscribeAll(sessionID string) int {
	tc.mu.RLock()
	topics := tc.index.Values()
	tc.mu.RUnlock()

	n := 0
	for _, t := range topics {
		if t.Unsubscribe(sessionID) {
			n++
		}
	}
	return n
}

// SubscribedTopics returns the keys of every topic sessionID is subscribed to.
func (tc *TopicsContext) SubscribedTopics(sessionID string) []TopicKey {
	tc.mu.RLock()
	topics := tc.index.Values()
	tc.mu.RUnlock()

	var subscribed []*Topic
	for _, t := range topics {
		if t.HasSubscriber(sessionID) {
			subscribed = append(subscribed, t)
		}
	}
	return sortedKeys(subscribed)
}

func (tc *TopicsContext) snapshot() []*Topic {
	tc.mu.RLock()
	topics := tc.index.Values()
	tc.mu.RUnlock()
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].created.Before(topics[j].created)
	})
	return topics
}

func (tc *TopicsContext) shutdown() {
	tc.mu.Lock()
	tc.closed = true
	tc.index = router.New[*Topic]()
	tc.mu.Unlock()
}
