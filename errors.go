package pushserver

import (
	"errors"
	"fmt"
)

// Standard errors reported by the push engine.
var (
	// ErrUnknownTopic is returned when publishing or subscribing to a topic key
	// that was never created.
	ErrUnknownTopic = errors.New("pushserver: unknown topic")

	// ErrInvalidTopicKey is returned when a topic address cannot be parsed.
	ErrInvalidTopicKey = errors.New("pushserver: invalid topic key")

	// ErrQueueOverflow is recorded when a session queue is full and the oldest
	// message is dropped to make room. It is logged, never returned to a
	// publisher.
	ErrQueueOverflow = errors.New("pushserver: session queue overflow")

	// ErrDeliveryAttemptFailed is recorded when a transport push fails
	// mid-attempt. The session reverts to detached and the undelivered
	// messages are re-queued.
	ErrDeliveryAttemptFailed = errors.New("pushserver: delivery attempt failed")

	// ErrClosed is returned by operations on a PushContext that has been shut
	// down.
	ErrClosed = errors.New("pushserver: push context closed")
)

// TopicError reports a publish-path failure for a specific topic key.
type TopicError struct {
	Key TopicKey
	Err error
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Key.String())
}

func (e *TopicError) Unwrap() error {
	return e.Err
}

// DeliveryError describes a failed transport push for one session.
type DeliveryError struct {
	SessionID   string
	Delivered   int // messages accepted by the transport before it failed
	Undelivered int // messages re-queued at the head of the session queue
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v: session %s (delivered %d, requeued %d): %v",
		ErrDeliveryAttemptFailed, e.SessionID, e.Delivered, e.Undelivered, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrDeliveryAttemptFailed against any DeliveryError.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryAttemptFailed
}
