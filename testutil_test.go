package pushserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errMockTransport = errors.New("mock transport failure")

// manualClock is a time source tests advance by hand.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func withClock(c *manualClock) Option {
	return func(conf *config) error {
		conf.now = c.Now
		return nil
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockPushContext returns a PushContext without a background sweeper and with
// logging discarded. It is shut down when the test ends.
func mockPushContext(t testing.TB, opts ...Option) *PushContext {
	t.Helper()
	opts = append([]Option{WithSweepInterval(0), WithLogger(discardLogger)}, opts...)
	p, err := New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

// mockTransport records every message pushed to it.
type mockTransport struct {
	mu     sync.Mutex
	got    []Message
	pushes int

	// accept, when >= 0, is how many messages the next pushes accept before
	// failing with errMockTransport. -1 accepts everything.
	accept int

	// block, when non-nil, holds every push until it is closed.
	block chan struct{}

	inFlight    int
	maxInFlight int
}

func newMockTransport() *mockTransport {
	return &mockTransport{accept: -1}
}

func (m *mockTransport) Push(ctx context.Context, msgs []Message) (int, error) {
	m.mu.Lock()
	m.pushes++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	block := m.block
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accept >= 0 && m.accept < len(msgs) {
		n := m.accept
		m.got = append(m.got, msgs[:n]...)
		return n, errMockTransport
	}
	m.got = append(m.got, msgs...)
	return len(msgs), nil
}

func (m *mockTransport) setAccept(n int) {
	m.mu.Lock()
	m.accept = n
	m.mu.Unlock()
}

func (m *mockTransport) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.got))
	for i, msg := range m.got {
		out[i] = string(msg.Data)
	}
	return out
}

func msgData(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = string(msg.Data)
	}
	return out
}

func textMessage(key TopicKey, s string) Message {
	return Message{Topic: key, Data: []byte(s)}
}
