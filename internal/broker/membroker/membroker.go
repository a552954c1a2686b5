// Package membroker is an in-process channel-backed broker. It backs tests
// and single-node deployments, and doubles as the reference for the
// backpressure contract: every subscriber channel is unbuffered, so a
// publish blocks until each subscriber has pulled the message.
package membroker

import (
	"context"
	"errors"
	"sync"

	"github.com/vk/funcmesh/internal/broker"
)

// ErrClosed is returned on use after Close.
var ErrClosed = errors.New("broker closed")

type subscriber struct {
	ch   chan broker.Message
	gone chan struct{}
}

// Broker routes messages between in-process publishers and subscribers.
type Broker struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	closed bool
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[string][]*subscriber)}
}

// Subscribe registers an unbuffered delivery channel for a topic. The
// subscription is removed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		ch:   make(chan broker.Message),
		gone: make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	go func() {
		<-ctx.Done()
		b.remove(topic, sub)
		close(sub.gone)
	}()

	return sub.ch, nil
}

// Publish delivers one message to every current subscriber of the topic,
// in subscription order, blocking on each until it is pulled.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*subscriber, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	msg := broker.Message{Topic: topic, Data: data}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		case <-sub.gone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close drops all subscriptions and rejects further use.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]*subscriber)
	return nil
}

func (b *Broker) remove(topic string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.subs[topic]
	for i, s := range current {
		if s == sub {
			b.subs[topic] = append(current[:i:i], current[i+1:]...)
			return
		}
	}
}
