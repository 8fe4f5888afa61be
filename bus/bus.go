// Package bus is the core's only I/O surface: a thin wrapper around the
// MQTT message bus plus the narrow interfaces the other packages depend on.
// Topic-level authorization is the broker's concern, not the core's.
package bus

// MessageHandler is invoked for every message matching a subscription.
// Handlers must not block; slow work is handed off to the ingest shards.
type MessageHandler func(topic string, payload []byte)

// Publisher publishes a payload to a topic. Retained messages let late
// subscribers see the latest state (used for alerts, audit and intents).
type Publisher interface {
	Publish(topic string, retain bool, payload []byte) error
}

// Subscriber registers a handler for a topic filter.
type Subscriber interface {
	Subscribe(filter string, handler MessageHandler) error
}
