// Package broker defines the message-transport collaborator interface the
// stream adapter runs against. The runtime does not care how messages
// move; it only needs publish and a pull-style subscription.
package broker

import "context"

// Message is one raw broker message.
type Message struct {
	Topic string
	Data  []byte
}

// Broker is the external publish/subscribe collaborator.
//
// Subscribe returns a channel the broker delivers on. Deliveries must
// respect backpressure: a broker may not drop or buffer unboundedly when
// the consumer is slow, it blocks the producer instead. The subscription
// ends when ctx is cancelled; the channel is not closed, consumers select
// on ctx themselves.
type Broker interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
}
