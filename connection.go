package pushserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/azer/debug"
)

var errConnectionClosed = errors.New("pushserver: connection closed")

// connection is an SSE stream bound to one push session. It implements
// Transport by writing pushed messages straight to the response, so nothing
// it accepts is ever left buffered when the client goes away.
type connection struct {
	r         *http.Request       // The HTTP request
	w         http.ResponseWriter // The HTTP response
	rc        *http.ResponseController
	created   time.Time // Timestamp for when connection was opened
	sessionID string
	topic     TopicKey
	keepalive time.Duration

	mu       sync.Mutex // serializes writes to w
	closed   bool
	msgsSent uint64 // Msgs the connection has sent (all time)

	brokenOnce sync.Once
	broken     chan struct{} // closed when a write fails
}

func newConnection(w http.ResponseWriter, r *http.Request, sessionID string, topic TopicKey, keepalive time.Duration) *connection {
	return &connection{
		r:         r,
		w:         w,
		rc:        http.NewResponseController(w),
		created:   time.Now(),
		sessionID: sessionID,
		topic:     topic,
		keepalive: keepalive,
		broken:    make(chan struct{}),
	}
}

// ConnectionStatus describes one open SSE connection.
type ConnectionStatus struct {
	Path      string `json:"request_path"`
	Session   string `json:"session"`
	Topic     string `json:"topic"`
	Created   int64  `json:"created_at"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
	MsgsSent  uint64 `json:"msgs_sent"`
}

func (c *connection) Status() ConnectionStatus {
	c.mu.Lock()
	sent := c.msgsSent
	c.mu.Unlock()
	return ConnectionStatus{
		Path:      c.r.URL.Path,
		Session:   c.sessionID,
		Topic:     c.topic.String(),
		Created:   c.created.Unix(),
		ClientIP:  c.r.RemoteAddr,
		UserAgent: c.r.UserAgent(),
		MsgsSent:  sent,
	}
}

// Push implements Transport. Messages are written and flushed in order; the
// count returned only includes messages that made it through a flush.
func (c *connection) Push(ctx context.Context, msgs []Message) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errConnectionClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		// not every ResponseWriter supports deadlines, e.g. httptest recorders
		_ = c.rc.SetWriteDeadline(deadline)
		defer c.rc.SetWriteDeadline(time.Time{})
	}

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := c.w.Write(msg.sseFormat()); err != nil {
			c.markBroken()
			return 0, err
		}
	}
	if err := c.flushLocked(); err != nil {
		c.markBroken()
		return 0, err
	}
	c.msgsSent += uint64(len(msgs))
	return len(msgs), nil
}

// write sends raw bytes outside of the Transport path, e.g. keepalives.
func (c *connection) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	if _, err := c.w.Write(b); err != nil {
		return err
	}
	return c.flushLocked()
}

func (c *connection) flushLocked() error {
	err := c.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func (c *connection) markBroken() {
	c.brokenOnce.Do(func() { close(c.broken) })
}

// close stops all further writes. It must be called before the handler returns.
func (c *connection) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// writer is the event loop that keeps the http connection alive until the
// client goes away, a push fails, or quit is closed (indicating a shutdown).
func (c *connection) writer(quit <-chan struct{}) {
	// set up a keepalive tickle to prevent connections from being closed by a timeout
	// any SSE line beginning with the colon will be ignored, so use that.
	// https://www.w3.org/TR/eventsource/#event-stream-interpretation
	var tick <-chan time.Time
	if c.keepalive > 0 {
		keepaliveTickler := time.NewTicker(c.keepalive)
		defer keepaliveTickler.Stop()
		tick = keepaliveTickler.C
	}
	keepaliveMsg := []byte(":keepalive\n")

	for {
		select {
		case <-tick:
			if err := c.write(keepaliveMsg); err != nil {
				debug.Debug("Error writing keepalive to client, closing")
				return
			}

		case <-c.broken:
			debug.Debug("push to client failed, closing")
			return

		case <-quit:
			debug.Debug("server told us to shut down")
			return

		case <-c.r.Context().Done():
			debug.Debug("closer fired for conn")
			return
		}
	}
}
