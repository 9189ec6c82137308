package mqtt

import "sync"

// Message is one recorded publication.
type Message struct {
	Topic   string
	Payload []byte
}

// MockPublisher records publications for tests.
type MockPublisher struct {
	mu       sync.Mutex
	Messages []Message
	// FailWith makes Publish return this error.
	FailWith error
}

func (m *MockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Messages = append(m.Messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// OnTopic returns the payloads recorded for topic.
func (m *MockPublisher) OnTopic(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, msg := range m.Messages {
		if msg.Topic == topic {
			out = append(out, msg.Payload)
		}
	}
	return out
}
