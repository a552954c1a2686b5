package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/broker"
	"github.com/vk/funcmesh/internal/broker/membroker"
	"github.com/vk/funcmesh/internal/broker/socketbroker"
	"github.com/vk/funcmesh/internal/compile"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/vk/funcmesh/internal/grid"
	"github.com/vk/funcmesh/internal/httpapi"
	"github.com/vk/funcmesh/internal/invoke"
	"github.com/vk/funcmesh/internal/streamadapter"
	"golang.org/x/sync/errgroup"
)

// Run executes the main application lifecycle: load the grid, connect the
// broker, start the HTTP adapter and binding runners, and block until ctx
// is cancelled. Shutdown drains in-flight work within the configured grace
// period.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.GridPath != "" {
		if err := a.loadGrid(ctx); err != nil {
			return fmt.Errorf("failed to load grid: %w", err)
		}
	}

	br, closeBroker, err := a.openBroker(ctx)
	if err != nil {
		return fmt.Errorf("failed to open broker: %w", err)
	}
	defer closeBroker()

	server := httpapi.NewServer(a.config.ListenAddr, a.api, a.logger)
	server.Start()

	runners := make([]*streamadapter.Runner, 0, len(a.bindings))
	for _, b := range a.bindings {
		runners = append(runners, streamadapter.NewRunner(a.registry, a.invoker, br, b))
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(runners) > 0 {
		sup := streamadapter.NewSupervisor(runners...)
		a.logger.Info("Starting stream bindings.", "count", len(runners))
		g.Go(func() error { return sup.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	a.logger.Info("funcmesh runtime started.", "listen", a.config.ListenAddr, "functions", len(a.registry.List()), "bindings", len(a.bindings))
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// loadGrid compiles and registers the grid's functions and translates its
// bindings. Any failure here is fatal to startup, unlike runtime
// registration which only fails the one request.
func (a *App) loadGrid(ctx context.Context) error {
	model, err := grid.Load(ctx, a.config.GridPath)
	if err != nil {
		return err
	}

	for _, fn := range model.Functions {
		shape, err := artifact.ParseShape(fn.Shape)
		if err != nil {
			return fmt.Errorf("function %q: %w", fn.Name, err)
		}
		compiled, err := a.compiler.Compile(ctx, fn.Source, shape, compile.TypeHints{Input: fn.InputType, Output: fn.OutputType})
		if err != nil {
			return fmt.Errorf("function %q: %w", fn.Name, err)
		}
		desc := &artifact.Descriptor{
			Name:       fn.Name,
			Shape:      shape,
			InputType:  compiled.InputType,
			OutputType: compiled.OutputType,
			Source:     fn.Source,
			Handle:     compiled.Handle,
			CreatedAt:  time.Now().UTC(),
		}
		if err := a.registry.Register(desc); err != nil {
			_ = compiled.Handle.Close()
			return err
		}
		a.logger.Debug("Grid function registered.", "name", fn.Name, "shape", shape.String())
	}

	for _, b := range model.Bindings {
		role, err := streamadapter.ParseRole(b.Role)
		if err != nil {
			return fmt.Errorf("binding %q: %w", b.Artifact, err)
		}
		policy, err := invoke.ParsePolicy(b.OnError)
		if err != nil {
			return fmt.Errorf("binding %q: %w", b.Artifact, err)
		}
		var interval time.Duration
		if b.Interval != "" {
			interval, err = time.ParseDuration(b.Interval)
			if err != nil {
				return fmt.Errorf("binding %q: bad interval: %w", b.Artifact, err)
			}
		}
		binding := streamadapter.Binding{
			Artifact:    b.Artifact,
			Role:        role,
			InputTopic:  b.InputTopic,
			OutputTopic: b.OutputTopic,
			Interval:    interval,
			OnError:     policy,
		}
		if err := binding.Validate(); err != nil {
			return err
		}
		a.bindings = append(a.bindings, binding)
	}
	return nil
}

// openBroker picks the broker implementation from config.
func (a *App) openBroker(ctx context.Context) (broker.Broker, func(), error) {
	if a.config.BrokerURL == "" {
		a.logger.Debug("Using in-process broker.")
		mem := membroker.New()
		return mem, func() { _ = mem.Close() }, nil
	}
	a.logger.Info("Connecting to broker.", "url", a.config.BrokerURL)
	sock, err := socketbroker.Dial(ctx, socketbroker.Options{
		URL:       a.config.BrokerURL,
		Namespace: a.config.BrokerNamespace,
	})
	if err != nil {
		return nil, nil, err
	}
	return sock, func() { _ = sock.Close() }, nil
}
