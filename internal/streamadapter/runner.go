// Package streamadapter runs registered artifacts as long-lived nodes in a
// broker-connected pipeline: sources publish, processors consume and
// republish, sinks drain. Every runner processes one message at a time, so
// the broker's flow control is the only buffering in the pipeline.
package streamadapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/broker"
	"github.com/vk/funcmesh/internal/codec"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/vk/funcmesh/internal/invoke"
	"github.com/vk/funcmesh/internal/registry"
	"github.com/vk/funcmesh/internal/stream"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// Runner drives one binding until its context is cancelled. Shutdown is
// graceful: the runner stops pulling input, lets the in-flight invocation
// finish, and returns.
type Runner struct {
	registry *registry.Registry
	invoker  *invoke.Invoker
	broker   broker.Broker
	binding  Binding
}

// NewRunner creates a runner for one binding.
func NewRunner(reg *registry.Registry, inv *invoke.Invoker, br broker.Broker, binding Binding) *Runner {
	return &Runner{registry: reg, invoker: inv, broker: br, binding: binding}
}

// Run blocks until ctx is cancelled. It returns nil on graceful shutdown;
// per-message failures are logged and skipped per the binding's policy,
// never fatal to the loop.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.binding.Validate(); err != nil {
		return err
	}
	switch r.binding.Role {
	case RoleSource:
		return r.runSource(ctx)
	case RoleProcessor:
		return r.runProcessor(ctx)
	default:
		return r.runSink(ctx)
	}
}

// runSource invokes the source artifact once per interval tick and
// publishes each emitted element as one broker message.
func (r *Runner) runSource(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("binding", r.binding.Artifact, "role", "source", "topic", r.binding.OutputTopic)
	interval := r.binding.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Source binding started.", "interval", interval.String())

	n := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Source binding stopped.")
			return nil
		case <-ticker.C:
		}

		desc, err := r.registry.Lookup(r.binding.Artifact)
		if err != nil {
			logger.Warn("Source artifact not registered, skipping tick.", "error", err)
			continue
		}
		vals, err := r.invokeRound(ctx, desc, nil, invoke.Options{Rounds: 1, BaseIndex: n, Policy: r.binding.OnError})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Source emission failed.", "round", n, "error", err)
			n++
			continue
		}
		n++

		if !r.publishAll(ctx, logger, vals) {
			return nil
		}
	}
}

// runProcessor consumes the input topic one message at a time, pipes each
// through the transform, and republishes the outputs in order.
func (r *Runner) runProcessor(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("binding", r.binding.Artifact, "role", "processor", "in", r.binding.InputTopic, "out", r.binding.OutputTopic)
	msgs, err := r.broker.Subscribe(ctx, r.binding.InputTopic)
	if err != nil {
		return err
	}
	logger.Info("Processor binding started.")

	for {
		var msg broker.Message
		select {
		case <-ctx.Done():
			logger.Info("Processor binding stopped.")
			return nil
		case msg = <-msgs:
		}

		vals, err := r.processMessage(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Message skipped.", "error", err)
			continue
		}
		if !r.publishAll(ctx, logger, vals) {
			return nil
		}
	}
}

// runSink drains the input topic into the sink artifact, one message per
// invocation, publishing nothing.
func (r *Runner) runSink(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("binding", r.binding.Artifact, "role", "sink", "in", r.binding.InputTopic)
	msgs, err := r.broker.Subscribe(ctx, r.binding.InputTopic)
	if err != nil {
		return err
	}
	logger.Info("Sink binding started.")

	for {
		var msg broker.Message
		select {
		case <-ctx.Done():
			logger.Info("Sink binding stopped.")
			return nil
		case msg = <-msgs:
		}

		if _, err := r.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Message skipped.", "error", err)
		}
	}
}

// processMessage looks the artifact up fresh (the binding holds it by name
// only), decodes the message, and runs one invocation to completion.
func (r *Runner) processMessage(ctx context.Context, msg broker.Message) ([]cty.Value, error) {
	desc, err := r.registry.Lookup(r.binding.Artifact)
	if err != nil {
		return nil, err
	}
	val, err := codec.Decode(msg.Data, desc.InputType)
	if err != nil {
		return nil, err
	}
	in := stream.FromValues(val)
	return r.invokeRound(ctx, desc, in, invoke.Options{Policy: r.binding.OnError})
}

// invokeRound runs one invocation and collects its full output.
func (r *Runner) invokeRound(ctx context.Context, d *artifact.Descriptor, in *stream.Seq, opts invoke.Options) ([]cty.Value, error) {
	out, err := r.invoker.Invoke(ctx, d, in, opts)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, out)
}

// publishAll publishes elements in order; false means the context ended.
func (r *Runner) publishAll(ctx context.Context, logger *slog.Logger, vals []cty.Value) bool {
	for _, v := range vals {
		data, err := codec.Encode(v)
		if err != nil {
			logger.Warn("Element not publishable.", "error", err)
			continue
		}
		if err := r.broker.Publish(ctx, r.binding.OutputTopic, data); err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Error("Publish failed.", "topic", r.binding.OutputTopic, "error", err)
		}
	}
	return true
}

// Supervisor runs a set of binding runners as one unit of long-lived
// processes, stopping them together on the first hard failure or when the
// context is cancelled.
type Supervisor struct {
	runners []*Runner
}

// NewSupervisor creates a supervisor over the given runners.
func NewSupervisor(runners ...*Runner) *Supervisor {
	return &Supervisor{runners: runners}
}

// Run blocks until all runners have stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		g.Go(func() error { return r.Run(ctx) })
	}
	return g.Wait()
}
