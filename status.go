package pushserver

import (
	"fmt"
	"os"
	"time"
)

// ReportingStatus is snapshot of metadata about the status of a PushContext.
//
// It can be serialized to JSON and is what gets reported to admin API endpoint.
type ReportingStatus struct {
	Node        string          `json:"node"`
	Status      string          `json:"status"`
	Reported    int64           `json:"reported_at"`
	StartupTime int64           `json:"startup_time"`
	Delivered   uint64          `json:"msgs_delivered"`
	Failed      uint64          `json:"delivery_failures"`
	Overflows   uint64          `json:"queue_overflows"`
	Sessions    []SessionStatus `json:"sessions"`
	Topics      []TopicStatus   `json:"topics"`
}

// SessionStatus describes one push session.
type SessionStatus struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Created      int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
	Queued       int    `json:"queued"`
	Delivered    uint64 `json:"msgs_delivered"`
	Dropped      uint64 `json:"msgs_dropped"`
}

// TopicStatus describes one topic.
type TopicStatus struct {
	Topic       string `json:"topic"`
	Created     int64  `json:"created_at"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"msgs_published"`
}

// Status returns a snapshot of the session's status.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		ID:           s.id,
		State:        s.stateLocked().String(),
		Created:      s.created.Unix(),
		LastActivity: s.lastActivity.Unix(),
		Queued:       len(s.messages),
		Delivered:    s.delivered,
		Dropped:      s.dropped,
	}
}

// Status returns a snapshot of the topic's status.
func (t *Topic) Status() TopicStatus {
	t.mu.RLock()
	n := len(t.subscribers)
	t.mu.RUnlock()
	return TopicStatus{
		Topic:       t.key.String(),
		Created:     t.created.Unix(),
		Subscribers: n,
		Published:   t.published.Load(),
	}
}

// Status returns the ReportingStatus for a PushContext. Sessions and topics are
// sorted by age.
//
// Primarily intended for logging and reporting.
func (p *PushContext) Status() ReportingStatus {
	stats := ReportingStatus{
		Node:        fmt.Sprintf("%s-%s-%s", platform(), env(), nodeName()),
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: p.startupTime.Unix(),
		Delivered:   p.delivery.Delivered(),
		Failed:      p.delivery.Failed(),
		Overflows:   p.delivery.Overflows(),
		Sessions:    []SessionStatus{},
		Topics:      []TopicStatus{},
	}
	for _, s := range p.sessions.Sessions() {
		stats.Sessions = append(stats.Sessions, s.Status())
	}
	for _, t := range p.topics.snapshot() {
		stats.Topics = append(stats.Topics, t.Status())
	}
	return stats
}

// The name of the platform we are running on.
func platform() string {
	return "go"
}

// Attempts to intelligently get the name of the node we are running on.
//
// First checks for a Heroku $DYNO variable (e.g. `web.2` etc), if that isn't
// found will default to the local hostname.
func nodeName() string {
	if dyno := os.Getenv("DYNO"); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown.X"
}

// A string representing the environment (dev/staging/prod), for reporting.
func env() string {
	if env := os.Getenv("GO_ENV"); env != "" {
		return env
	}
	return "development"
}
