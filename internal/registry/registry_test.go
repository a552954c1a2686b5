package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/isolate"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

func testDescriptor(name string) *artifact.Descriptor {
	echo := func(vars map[string]cty.Value, funcs map[string]function.Function) (cty.Value, error) {
		return vars["x"], nil
	}
	return &artifact.Descriptor{
		Name:      name,
		Shape:     artifact.ShapeTransform,
		Source:    "x",
		Handle:    isolate.Wrap(echo, nil),
		CreatedAt: time.Now(),
	}
}

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := New()
	desc := testDescriptor("echo")
	require.NoError(t, r.Register(desc))

	got, err := r.Lookup("echo")
	require.NoError(t, err)
	assert.Same(t, desc, got)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	r := New()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&artifact.Descriptor{}))
	assert.Error(t, r.Register(&artifact.Descriptor{Name: "no-handle"}))
}

func TestRegisterConflict(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(testDescriptor("echo")))
	err := r.Register(testDescriptor("echo"))
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestConcurrentRegisterSameName(t *testing.T) {
	t.Parallel()

	r := New()
	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(testDescriptor("contested"))
		}(i)
	}
	wg.Wait()

	// Exactly one racer wins, the rest observe a conflict.
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrNameConflict)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, []string{"contested"}, r.List())
}

func TestListSortedSnapshot(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(testDescriptor("zeta")))
	require.NoError(t, r.Register(testDescriptor("alpha")))
	require.NoError(t, r.Register(testDescriptor("mid")))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
}

func TestDeregister(t *testing.T) {
	t.Parallel()

	r := New()
	desc := testDescriptor("gone")
	require.NoError(t, r.Register(desc))
	require.NoError(t, r.Deregister("gone"))

	_, err := r.Lookup("gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, r.List())

	// The handle was closed along with the entry.
	assert.ErrorIs(t, desc.Handle.Acquire(), isolate.ErrReleased)
}

func TestDeregisterUnknown(t *testing.T) {
	t.Parallel()

	r := New()
	assert.ErrorIs(t, r.Deregister("missing"), ErrNotFound)
}

func TestNameReusableAfterDeregister(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(testDescriptor("slot")))
	require.NoError(t, r.Deregister("slot"))
	require.NoError(t, r.Register(testDescriptor("slot")))

	_, err := r.Lookup("slot")
	assert.NoError(t, err)
}

func TestDeregisterDefersTeardownForInFlightHolder(t *testing.T) {
	t.Parallel()

	r := New()
	desc := testDescriptor("busy")
	require.NoError(t, r.Register(desc))

	// Simulate an in-flight invocation holding the handle.
	require.NoError(t, desc.Handle.Acquire())
	require.NoError(t, r.Deregister("busy"))

	v, err := desc.Handle.Call(map[string]cty.Value{"x": cty.StringVal("still works")})
	require.NoError(t, err)
	assert.Equal(t, "still works", v.AsString())

	desc.Handle.Release()
	_, err = desc.Handle.Call(nil)
	assert.ErrorIs(t, err, isolate.ErrReleased)
}
