package mqtt

import "errors"

// ErrPublishFailed is returned when the broker rejects or never
// acknowledges a message.
var ErrPublishFailed = errors.New("mqtt publish failed")

// Publisher sends a payload on a topic. Implementations decide QoS
// and retry policy.
type Publisher interface {
	Publish(topic string, payload []byte) error
}
