package streamadapter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/broker/membroker"
	"github.com/vk/funcmesh/internal/compile"
	"github.com/vk/funcmesh/internal/invoke"
	"github.com/vk/funcmesh/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// recorder captures values passed to the test-only record() builtin, which
// stands in for a sink's side effect.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (rec *recorder) fn() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "value", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			rec.mu.Lock()
			rec.seen = append(rec.seen, args[0].AsString())
			rec.mu.Unlock()
			return cty.True, nil
		},
	})
}

func (rec *recorder) snapshot() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.seen...)
}

type fixture struct {
	registry *registry.Registry
	invoker  *invoke.Invoker
	broker   *membroker.Broker
	compiler *compile.Compiler
}

func newFixture(t *testing.T, rec *recorder) *fixture {
	t.Helper()
	lib := compile.NewLibrary()
	lib.Register("upper", stdlib.UpperFunc)
	if rec != nil {
		lib.Register("record", rec.fn())
	}
	b := membroker.New()
	t.Cleanup(func() { _ = b.Close() })
	return &fixture{
		registry: registry.New(),
		invoker:  invoke.New(),
		broker:   b,
		compiler: compile.New(lib),
	}
}

func (f *fixture) register(t *testing.T, name, src string, shape artifact.Shape, hints compile.TypeHints) {
	t.Helper()
	compiled, err := f.compiler.Compile(context.Background(), src, shape, hints)
	require.NoError(t, err)
	require.NoError(t, f.registry.Register(&artifact.Descriptor{
		Name:       name,
		Shape:      shape,
		Source:     src,
		InputType:  compiled.InputType,
		OutputType: compiled.OutputType,
		Handle:     compiled.Handle,
	}))
}

func TestPipelineSourceProcessorSink(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	f := newFixture(t, rec)
	f.register(t, "gen", `"message-${n}"`, artifact.ShapeSource, compile.TypeHints{Output: "string"})
	f.register(t, "shout", "upper(x)", artifact.ShapeTransform, compile.TypeHints{Input: "string", Output: "string"})
	f.register(t, "store", "record(x)", artifact.ShapeSink, compile.TypeHints{Input: "string"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consumers first, so the source's earliest emissions are not published
	// into an empty topic.
	downstream := NewSupervisor(
		NewRunner(f.registry, f.invoker, f.broker, Binding{
			Artifact: "shout", Role: RoleProcessor, InputTopic: "raw", OutputTopic: "shouted",
		}),
		NewRunner(f.registry, f.invoker, f.broker, Binding{
			Artifact: "store", Role: RoleSink, InputTopic: "shouted",
		}),
	)
	downstreamDone := make(chan error, 1)
	go func() { downstreamDone <- downstream.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	source := NewRunner(f.registry, f.invoker, f.broker, Binding{
		Artifact: "gen", Role: RoleSource, OutputTopic: "raw", Interval: 5 * time.Millisecond,
	})
	sourceDone := make(chan error, 1)
	go func() { sourceDone <- source.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 3
	}, 5*time.Second, 10*time.Millisecond, "sink never received three messages")

	cancel()
	require.NoError(t, <-sourceDone)
	require.NoError(t, <-downstreamDone)

	// Emission order survives the whole pipeline.
	got := rec.snapshot()[:3]
	if diff := cmp.Diff([]string{"MESSAGE-0", "MESSAGE-1", "MESSAGE-2"}, got); diff != "" {
		t.Errorf("sink order mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceBackpressureFromStalledConsumer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, "gen", `"message-${n}"`, artifact.ShapeSource, compile.TypeHints{Output: "string"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := f.broker.Subscribe(ctx, "raw")
	require.NoError(t, err)

	runner := NewRunner(f.registry, f.invoker, f.broker, Binding{
		Artifact: "gen", Role: RoleSource, OutputTopic: "raw", Interval: time.Millisecond,
	})
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// Pull two messages, then stall. The blocked publish parks the source,
	// so resuming sees the very next emission with nothing skipped.
	assert.Equal(t, "message-0", string((<-msgs).Data))
	assert.Equal(t, "message-1", string((<-msgs).Data))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "message-2", string((<-msgs).Data))

	cancel()
	require.NoError(t, <-done)
}

func TestProcessorSurvivesDeregistration(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, "shout", "upper(x)", artifact.ShapeTransform, compile.TypeHints{Input: "string", Output: "string"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := f.broker.Subscribe(ctx, "shouted")
	require.NoError(t, err)

	runner := NewRunner(f.registry, f.invoker, f.broker, Binding{
		Artifact: "shout", Role: RoleProcessor, InputTopic: "raw", OutputTopic: "shouted",
	})
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, f.broker.Publish(ctx, "raw", []byte("hello")))
	assert.Equal(t, "HELLO", string((<-out).Data))

	// The binding holds the artifact by name only. While the name is gone
	// messages are skipped, and a replacement takes over transparently.
	require.NoError(t, f.registry.Deregister("shout"))
	require.NoError(t, f.broker.Publish(ctx, "raw", []byte("lost")))
	time.Sleep(50 * time.Millisecond)

	f.register(t, "shout", `"again: ${x}"`, artifact.ShapeTransform, compile.TypeHints{Input: "string", Output: "string"})
	require.NoError(t, f.broker.Publish(ctx, "raw", []byte("world")))
	assert.Equal(t, "again: world", string((<-out).Data))

	cancel()
	require.NoError(t, <-done)
}

func TestProcessorSkipsUndecodableElement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, "double", "x + x", artifact.ShapeTransform, compile.TypeHints{Input: "number", Output: "number"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := f.broker.Subscribe(ctx, "doubled")
	require.NoError(t, err)

	runner := NewRunner(f.registry, f.invoker, f.broker, Binding{
		Artifact: "double", Role: RoleProcessor, InputTopic: "nums", OutputTopic: "doubled",
	})
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// A message that does not decode as a number is dropped without
	// stopping the loop.
	require.NoError(t, f.broker.Publish(ctx, "nums", []byte("not a number")))
	require.NoError(t, f.broker.Publish(ctx, "nums", []byte("21")))
	assert.Equal(t, "42", string((<-out).Data))

	cancel()
	require.NoError(t, <-done)
}

func TestRunRejectsInvalidBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	runner := NewRunner(f.registry, f.invoker, f.broker, Binding{Artifact: "x", Role: RoleSource})
	assert.Error(t, runner.Run(context.Background()))
}

func TestBindingValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		binding Binding
		wantErr bool
	}{
		{name: "valid source", binding: Binding{Artifact: "a", Role: RoleSource, OutputTopic: "t"}},
		{name: "valid processor", binding: Binding{Artifact: "a", Role: RoleProcessor, InputTopic: "in", OutputTopic: "out"}},
		{name: "valid sink", binding: Binding{Artifact: "a", Role: RoleSink, InputTopic: "in"}},
		{name: "no artifact", binding: Binding{Role: RoleSink, InputTopic: "in"}, wantErr: true},
		{name: "source without output", binding: Binding{Artifact: "a", Role: RoleSource}, wantErr: true},
		{name: "source with input", binding: Binding{Artifact: "a", Role: RoleSource, InputTopic: "in", OutputTopic: "out"}, wantErr: true},
		{name: "processor without input", binding: Binding{Artifact: "a", Role: RoleProcessor, OutputTopic: "out"}, wantErr: true},
		{name: "sink with output", binding: Binding{Artifact: "a", Role: RoleSink, InputTopic: "in", OutputTopic: "out"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.binding.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, spelling := range []string{"source", "Processor", " sink "} {
		_, err := ParseRole(spelling)
		assert.NoError(t, err, fmt.Sprintf("spelling %q", spelling))
	}
	_, err := ParseRole("router")
	assert.Error(t, err)
}
