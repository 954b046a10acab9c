package pushserver

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Topic is a named channel holding the ids of its subscribed sessions. It owns
// the fan-out of published messages to those ids.
//
// A Topic never holds Session values, so a session's lifecycle is independent
// of the topics it subscribes to.
type Topic struct {
	key     TopicKey
	created time.Time

	mu          sync.RWMutex
	subscribers map[string]struct{}

	published atomic.Uint64
}

func newTopic(key TopicKey, now time.Time) *Topic {
	return &Topic{
		key:         key,
		created:     now,
		subscribers: make(map[string]struct{}),
	}
}

// Key returns the topic key.
func (t *Topic) Key() TopicKey {
	return t.key
}

// Subscribe adds a session id. It reports false if the id was already present.
func (t *Topic) Subscribe(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subscribers[sessionID]; ok {
		return false
	}
	t.subscribers[sessionID] = struct{}{}
	return true
}

// Unsubscribe removes a session id. It reports false if the id was absent.
func (t *Topic) Unsubscribe(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subscribers[sessionID]; !ok {
		return false
	}
	delete(t.subscribers, sessionID)
	return true
}

// HasSubscriber reports whether sessionID is subscribed.
func (t *Topic) HasSubscriber(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.subscribers[sessionID]
	return ok
}

// Subscribers returns a sorted snapshot of the subscribed session ids.
func (t *Topic) Subscribers() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Published returns the number of messages published to the topic.
func (t *Topic) Published() uint64 {
	return t.published.Load()
}

// fanOut hands msg to deliver once per subscriber in the snapshot taken at
// invocation. Subscribers added during the fan-out do not receive msg.
func (t *Topic) fanOut(msg Message, deliver func(sessionID string, msg Message)) int {
	t.published.Add(1)

	t.mu.RLock()
	ids := make([]string, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		deliver(id, msg)
	}
	return len(ids)
}
