package bus

import (
	"errors"
	"sync"
)

// ErrMockPublishFailure is returned by a MockPublisher configured to fail.
var ErrMockPublishFailure = errors.New("mock publish failure")

// PublishedMessage is a message captured by MockPublisher.
type PublishedMessage struct {
	Topic   string
	Retain  bool
	Payload []byte
}

// MockPublisher captures published messages for tests. It can be configured
// to fail so best-effort delivery paths can be exercised.
type MockPublisher struct {
	mu         sync.Mutex
	messages   []PublishedMessage
	ShouldFail bool
}

// NewMockPublisher creates a mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish captures the message, or fails if ShouldFail is set.
func (m *MockPublisher) Publish(topic string, retain bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return ErrMockPublishFailure
	}
	// Copy the payload; callers may reuse their buffers.
	p := make([]byte, len(payload))
	copy(p, payload)
	m.messages = append(m.messages, PublishedMessage{Topic: topic, Retain: retain, Payload: p})
	return nil
}

// Messages returns a copy of all captured messages.
func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessagesFor returns captured messages for an exact topic.
func (m *MockPublisher) MessagesFor(topic string) []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PublishedMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// MockSubscriber records subscriptions and lets tests inject messages as if
// they arrived from the broker.
type MockSubscriber struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler
}

// NewMockSubscriber creates a mock subscriber.
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{handlers: make(map[string]MessageHandler)}
}

// Subscribe records the handler under the filter.
func (m *MockSubscriber) Subscribe(filter string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filter] = handler
	return nil
}

// Inject delivers a message to the handler registered under filter.
// Topic matching is the test's responsibility; filters are used as keys.
func (m *MockSubscriber) Inject(filter, topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handler(topic, payload)
	return true
}
