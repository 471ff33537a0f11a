package skipguard

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePage shows text after a delay, or fails every lookup.
type fakePage struct {
	text      string
	showAfter time.Duration
	err       error
	start     time.Time
}

func newPage(text string, after time.Duration) *fakePage {
	return &fakePage{text: text, showAfter: after, start: time.Now()}
}

func (p *fakePage) ContainsText(ctx context.Context, text string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if time.Since(p.start) < p.showAfter {
		return false, nil
	}
	return strings.Contains(p.text, text), nil
}

type panicPage struct{}

func (panicPage) ContainsText(context.Context, string) (bool, error) { panic("detached") }

// recordingTB mimics testing.T: Skipf ends the calling goroutine.
type recordingTB struct {
	mu      sync.Mutex
	skipped bool
	reason  string
	logs    []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func (r *recordingTB) Skipf(format string, args ...any) {
	r.mu.Lock()
	r.skipped = true
	r.reason = fmt.Sprintf(format, args...)
	r.mu.Unlock()
	runtime.Goexit()
}

// runGuarded runs body the way the test runner would, returning whether the
// body ran to completion.
func runGuarded(tb *recordingTB, body func()) (completed bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		body()
		completed = true
	}()
	<-done
	return completed
}

const stubHTML = "Regex Tester\nTool implementation coming soon"

func fastGuard(opts ...Option) *Guard {
	return New(append([]Option{WithTimeout(200 * time.Millisecond), WithPollInterval(10 * time.Millisecond)}, opts...)...)
}

func TestCheckStub(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
		want bool
	}{
		{"stub page", newPage(stubHTML, 0), true},
		{"stub rendered late", newPage(stubHTML, 50*time.Millisecond), true},
		{"implemented page", newPage("Base64 Encode Decode", 0), false},
		{"stub rendered after budget", newPage(stubHTML, 2*time.Second), false},
		{"lookup error", &fakePage{err: errors.New("target closed")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.page.start = time.Now()
			assert.Equal(t, tt.want, fastGuard().CheckStub(context.Background(), tt.page))
		})
	}
}

func TestCheckStub_PanicAndNilProceed(t *testing.T) {
	g := fastGuard()
	assert.False(t, g.CheckStub(context.Background(), panicPage{}))
	assert.False(t, g.CheckStub(context.Background(), nil))
}

func TestCheckStub_PackageLevel(t *testing.T) {
	assert.True(t, CheckStub(newPage(stubHTML, 0), 100))

	start := time.Now()
	assert.False(t, CheckStub(newPage("real tool", 0), 150))
	assert.Less(t, time.Since(start), time.Second, "timeoutMs must bound the wait")
}

func TestCheckStub_CustomMarker(t *testing.T) {
	g := fastGuard(WithMarker("Under construction"))
	assert.True(t, g.CheckStub(context.Background(), newPage("Under construction", 0)))
	assert.False(t, g.CheckStub(context.Background(), newPage(stubHTML, 0)))
}

func TestSkipIfStub_SkipsAndAbortsBody(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	g := fastGuard(WithLogger(zap.New(core)))
	tb := &recordingTB{}
	assertionsRan := false

	completed := runGuarded(tb, func() {
		g.SkipIfStub(tb, newPage(stubHTML, 0), "http://dash/tools/regex")
		assertionsRan = true
	})

	assert.False(t, completed)
	assert.False(t, assertionsRan, "test body must not continue after a skip")
	assert.True(t, tb.skipped)
	assert.Equal(t, `http://dash/tools/regex is not implemented yet (found "Tool implementation coming soon")`, tb.reason)
	skipped := logs.FilterMessage("skipping test on stub page").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "guard", skipped[0].LoggerName)
}

func TestSkipIfStub_ImplementedRuns(t *testing.T) {
	tb := &recordingTB{}
	var state State

	completed := runGuarded(tb, func() {
		state = fastGuard().SkipIfStub(tb, newPage("JSON Formatter", 0), "http://dash/tools/json")
	})

	assert.True(t, completed)
	assert.False(t, tb.skipped)
	assert.Equal(t, StateRunning, state)
}

func TestSkipIfStub_ErrorProceeds(t *testing.T) {
	tb := &recordingTB{}

	completed := runGuarded(tb, func() {
		fastGuard().SkipIfStub(tb, &fakePage{err: errors.New("execution context was destroyed")}, "http://dash/x")
	})

	require.True(t, completed, "a failed check must not skip")
	assert.False(t, tb.skipped)
}

func TestSkipIfStub_RealTestingT(t *testing.T) {
	var reached bool
	t.Run("stub", func(t *testing.T) {
		fastGuard().SkipIfStub(t, newPage(stubHTML, 0), "http://dash/tools/cron")
		reached = true
	})
	assert.False(t, reached)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not-started", StateNotStarted.String())
	assert.Equal(t, "probing", StateProbing.String())
	assert.Equal(t, "skipped", StateSkipped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(42).String())
}
