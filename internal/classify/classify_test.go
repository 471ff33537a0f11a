package classify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stubprobe/internal/probe"
	"stubprobe/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProber answers from a URL -> result table and counts calls.
type scriptedProber struct {
	mu      sync.Mutex
	results map[string]probe.Result
	calls   []string
	delay   time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (p *scriptedProber) Probe(ctx context.Context, url string) probe.Result {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		cur := p.maxInflight.Load()
		if n <= cur || p.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, url)
	if res, ok := p.results[url]; ok {
		return res
	}
	return probe.Result{Implemented: true, Source: probe.SourceMarkerAbsent}
}

type panickyProber struct{}

func (panickyProber) Probe(ctx context.Context, url string) probe.Result {
	panic("boom")
}

var stub = probe.Result{Implemented: false, Source: probe.SourceMarkerPresent}

func mustRegistry(t *testing.T, modules []registry.ModuleDescriptor, implemented ...string) *registry.Registry {
	t.Helper()
	reg, err := registry.New(modules, implemented)
	require.NoError(t, err)
	return reg
}

func TestClassify_StubPage(t *testing.T) {
	p := &scriptedProber{results: map[string]probe.Result{"http://dash/a": stub}}
	c := New(registry.NewOverrideSet(), p)

	v := c.Classify(context.Background(), registry.ModuleDescriptor{ID: "a", URL: "http://dash/a"})

	assert.Equal(t, Verdict{ID: "a", URL: "http://dash/a", Implemented: false, Source: probe.SourceMarkerPresent}, v)
}

func TestClassify_OverrideWinsWithoutProbing(t *testing.T) {
	p := &scriptedProber{results: map[string]probe.Result{"http://dash/a": stub}}
	c := New(registry.NewOverrideSet("a"), p)

	v := c.Classify(context.Background(), registry.ModuleDescriptor{ID: "a", URL: "http://dash/a"})

	assert.True(t, v.Implemented)
	assert.Equal(t, SourceOverride, v.Source)
	assert.Empty(t, p.calls, "overridden modules must not be probed")
}

func TestClassify_FallbackPassesThrough(t *testing.T) {
	p := &scriptedProber{results: map[string]probe.Result{
		"http://dash/a": {Implemented: true, Source: probe.SourceErrorFallback, Err: "navigate: refused"},
	}}
	v := New(nil, p).Classify(context.Background(), registry.ModuleDescriptor{ID: "a", URL: "http://dash/a"})

	assert.True(t, v.Implemented)
	assert.Equal(t, probe.SourceErrorFallback, v.Source)
	assert.Equal(t, "navigate: refused", v.Err)
}

func TestClassify_PanickingProberNeverEscapes(t *testing.T) {
	c := New(nil, panickyProber{})

	var v Verdict
	require.NotPanics(t, func() {
		v = c.Classify(context.Background(), registry.ModuleDescriptor{ID: "a", URL: "http://dash/a"})
	})
	assert.True(t, v.Implemented)
	assert.Equal(t, probe.SourceErrorFallback, v.Source)
}

func TestClassify_NilProber(t *testing.T) {
	v := New(nil, nil).Classify(context.Background(), registry.ModuleDescriptor{ID: "a", URL: "u"})
	assert.True(t, v.Implemented)
	assert.Equal(t, probe.SourceErrorFallback, v.Source)
}

func TestClassifyAll_RegistryOrder(t *testing.T) {
	var modules []registry.ModuleDescriptor
	results := map[string]probe.Result{}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("m%02d.spec.ts", i)
		url := "http://dash/" + id
		modules = append(modules, registry.ModuleDescriptor{ID: id, URL: url})
		if i%3 == 0 {
			results[url] = stub
		}
	}
	reg := mustRegistry(t, modules, "m01.spec.ts")

	for _, n := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", n), func(t *testing.T) {
			p := &scriptedProber{results: results, delay: 5 * time.Millisecond}
			verdicts := New(reg.Overrides(), p, WithConcurrency(n)).ClassifyAll(context.Background(), reg)

			require.Len(t, verdicts, len(modules))
			for i, v := range verdicts {
				assert.Equal(t, modules[i].ID, v.ID)
				switch {
				case v.ID == "m01.spec.ts":
					assert.Equal(t, SourceOverride, v.Source)
				case i%3 == 0:
					assert.False(t, v.Implemented, v.ID)
				default:
					assert.True(t, v.Implemented, v.ID)
				}
			}
			assert.Len(t, p.calls, len(modules)-1)
			assert.LessOrEqual(t, int(p.maxInflight.Load()), n)
		})
	}
}

func TestClassifyAll_SequentialProbesOneAtATime(t *testing.T) {
	reg := mustRegistry(t, []registry.ModuleDescriptor{
		{ID: "a", URL: "http://dash/a"},
		{ID: "b", URL: "http://dash/b"},
		{ID: "c", URL: "http://dash/c"},
	})
	p := &scriptedProber{delay: 2 * time.Millisecond}

	New(reg.Overrides(), p).ClassifyAll(context.Background(), reg)

	assert.Equal(t, int32(1), p.maxInflight.Load())
	assert.Equal(t, []string{"http://dash/a", "http://dash/b", "http://dash/c"}, p.calls)
}
