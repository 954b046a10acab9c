package pushserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TopicKey identifies a Topic. Keys are case-sensitive and compared exactly.
//
// The textual address form is "subtopic@name", or just "name" when there is no
// subtopic. A subtopic is its own topic: messages published to "pets" are not
// delivered to subscribers of "cats@pets".
type TopicKey struct {
	Name     string
	Subtopic string
}

// NewTopicKey returns a TopicKey without a subtopic.
func NewTopicKey(name string) TopicKey {
	return TopicKey{Name: name}
}

// ParseTopicKey parses a "subtopic@name" or "name" address.
func ParseTopicKey(addr string) (TopicKey, error) {
	parts := strings.Split(addr, "@")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return TopicKey{}, fmt.Errorf("%w: empty topic name", ErrInvalidTopicKey)
		}
		return TopicKey{Name: parts[0]}, nil
	case 2:
		if parts[1] == "" {
			return TopicKey{}, fmt.Errorf("%w: empty topic name in %q", ErrInvalidTopicKey, addr)
		}
		if parts[0] == "" {
			return TopicKey{}, fmt.Errorf("%w: empty subtopic in %q", ErrInvalidTopicKey, addr)
		}
		return TopicKey{Name: parts[1], Subtopic: parts[0]}, nil
	default:
		return TopicKey{}, fmt.Errorf("%w: %q has more than one '@'", ErrInvalidTopicKey, addr)
	}
}

// String returns the address form of the key.
func (k TopicKey) String() string {
	if k.Subtopic == "" {
		return k.Name
	}
	return k.Subtopic + "@" + k.Name
}

// Valid reports whether the key can name a topic.
func (k TopicKey) Valid() bool {
	return k.Name != "" && !strings.Contains(k.Name, "@") && !strings.Contains(k.Subtopic, "@")
}

// Message is a published item waiting in, or drained from, a session queue.
// A Message is immutable once published.
type Message struct {
	Topic     TopicKey  // topic the message was published to
	Event     string    // event scope for the message [optional]
	Data      []byte    // message payload
	Timestamp time.Time // publish time
}

// NewMessage builds a Message for key. Byte slices and strings are used as the
// payload verbatim; any other value is encoded as JSON. The Timestamp is left
// zero and stamped when the message is published.
func NewMessage(key TopicKey, payload any) (Message, error) {
	var data []byte
	switch p := payload.(type) {
	case nil:
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	case json.RawMessage:
		data = append([]byte(nil), p...)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Message{}, fmt.Errorf("encoding payload for %s: %w", key, err)
		}
		data = b
	}
	return Message{Topic: key, Data: data}, nil
}

// sseFormat is the formatted bytestring for a SSE message, ready to be sent.
//
// Multi-line payloads are split into one data field per line so the browser
// reassembles them with the original newlines.
func (msg Message) sseFormat() []byte {
	b := make([]byte, 0, 6+5+len(msg.Event)+len(msg.Data)+3)
	if msg.Event != "" {
		b = append(b, "event:"...)
		b = append(b, msg.Event...)
		b = append(b, '\n')
	}
	data := msg.Data
	for {
		line := data
		i := bytes.IndexByte(data, '\n')
		if i >= 0 {
			line = data[:i]
		}
		b = append(b, "data:"...)
		b = append(b, line...)
		b = append(b, '\n')
		if i < 0 {
			break
		}
		data = data[i+1:]
	}
	b = append(b, '\n')
	return b
}
