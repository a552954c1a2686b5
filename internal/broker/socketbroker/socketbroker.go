// Package socketbroker adapts a socket.io server into the broker
// interface: topics are socket.io event names, publish is an emit, and a
// subscription bridges incoming events onto a delivery channel. The
// socket.io server itself is an external collaborator; this package only
// carries the client side.
package socketbroker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/funcmesh/internal/broker"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Options configure the connection to the socket.io server.
type Options struct {
	URL                string
	Namespace          string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// Broker is a socket.io-backed broker client.
type Broker struct {
	manager *socket.Manager
	io      *socket.Socket
}

// Dial connects to the socket.io server and waits for the connection to be
// established before returning.
func Dial(ctx context.Context, opts Options) (*Broker, error) {
	logger := ctxlog.FromContext(ctx).With("broker", "socketio", "url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	sockOpts := socket.DefaultOptions()
	sockOpts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(opts.Namespace, sockOpts)

	connected := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Broker connection established.", "namespace", opts.Namespace, "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		var cause error
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				cause = e
			} else {
				cause = fmt.Errorf("%v", errs[0])
			}
		}
		select {
		case connected <- cause:
		default:
		}
	})

	io.Connect()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("broker connection failed: %w", err)
		}
	case <-connectCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out waiting for broker connection to %s", opts.URL)
	}

	return &Broker{manager: manager, io: io}, nil
}

// Publish emits one message on the topic's event.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.io.Emit(topic, string(data))
	return nil
}

// Subscribe bridges the topic's events onto a delivery channel. The bridge
// keeps the one-in-flight discipline: the event callback blocks until the
// consumer pulls, which pushes backpressure into the socket.io client.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	ch := make(chan broker.Message)
	b.io.On(types.EventName(topic), func(args ...any) {
		if len(args) == 0 {
			return
		}
		var data []byte
		switch v := args[0].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return
			}
			data = encoded
		}
		select {
		case ch <- broker.Message{Topic: topic, Data: data}:
		case <-ctx.Done():
		}
	})
	return ch, nil
}

// Close disconnects from the socket.io server.
func (b *Broker) Close() error {
	b.io.Disconnect()
	return nil
}
