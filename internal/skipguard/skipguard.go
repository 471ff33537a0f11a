// Package skipguard lets an end-to-end test skip itself when the page it
// targets is still a stub.
//
// The guard inspects an already-navigated page with the same bounded
// sentinel wait as the build-time probe. A failed check never skips: the
// test proceeds as if the page were implemented.
package skipguard

import (
	"context"
	"time"

	"stubprobe/internal/browser"
	"stubprobe/internal/logging"
	"stubprobe/internal/probe"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// TB is the part of testing.TB the guard needs. Skipf must stop the calling
// test body (testing.T does so through runtime.Goexit).
type TB interface {
	Helper()
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
}

// State tracks a guarded test. Probing is never retried.
type State int

const (
	StateNotStarted State = iota
	StateProbing
	StateSkipped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateProbing:
		return "probing"
	case StateSkipped:
		return "skipped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Guard checks pages for the stub sentinel.
type Guard struct {
	Marker       string
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithMarker overrides the sentinel text.
func WithMarker(marker string) Option {
	return func(g *Guard) {
		if marker != "" {
			g.Marker = marker
		}
	}
}

// WithTimeout sets the wait budget.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.Timeout = d
		}
	}
}

// WithPollInterval sets the delay between lookups.
func WithPollInterval(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.PollInterval = d
		}
	}
}

// WithLogger sets the logger. Entries are written under the "guard" name.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.Logger = logging.For(l, logging.CategoryGuard)
		}
	}
}

// New returns a Guard with the default marker and a 3000ms budget.
func New(opts ...Option) *Guard {
	g := &Guard{
		Marker:       probe.DefaultMarker,
		Timeout:      probe.DefaultBudget,
		PollInterval: probe.DefaultPollInterval,
		Logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGuard = New()

// CheckStub reports whether page shows the sentinel within timeoutMs
// milliseconds. Values of zero or less use the default budget.
func CheckStub(page probe.TextChecker, timeoutMs int) bool {
	g := *defaultGuard
	if timeoutMs > 0 {
		g.Timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return g.CheckStub(context.Background(), page)
}

func (g *Guard) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Guard) marker() string {
	if g.Marker == "" {
		return probe.DefaultMarker
	}
	return g.Marker
}

// CheckStub reports whether page shows the sentinel within the guard's
// budget. Lookup errors count as "not a stub".
func (g *Guard) CheckStub(ctx context.Context, page probe.TextChecker) (stub bool) {
	log := g.logger()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("stub check panicked, proceeding", zap.Any("panic", r))
			stub = false
		}
	}()
	if page == nil {
		return false
	}

	found, err := probe.WaitForText(ctx, page, g.marker(), g.Timeout, g.PollInterval)
	if err != nil {
		log.Warn("stub check failed, proceeding", zap.Error(err))
		return false
	}
	return found
}

// SkipIfStub skips t when page is a stub. It returns the state the test is
// in afterwards; StateSkipped is only observable when t.Skipf returns, which
// testing.T never does.
func (g *Guard) SkipIfStub(t TB, page probe.TextChecker, url string) State {
	t.Helper()
	if !g.CheckStub(context.Background(), page) {
		return StateRunning
	}
	g.logger().Info("skipping test on stub page", zap.String("url", url))
	t.Skipf("%s is not implemented yet (found %q)", url, g.marker())
	return StateSkipped
}

// SkipIfStubPage is SkipIfStub for a rod page. The page URL is used in the
// skip reason.
func (g *Guard) SkipIfStubPage(t TB, page *rod.Page) State {
	t.Helper()
	url := "page"
	if info, err := page.Info(); err == nil {
		url = info.URL
	} else {
		t.Logf("skipguard: page info: %v", err)
	}
	return g.SkipIfStub(t, browser.WrapPage(page), url)
}
