// Package probe decides whether a dashboard page is a stub by looking for the
// sentinel text inside a fresh, disposable session.
//
// A probe never returns an error. Navigation or lookup failures resolve to
// the configured fail policy (open by default: the page counts as
// implemented), so a flaky environment cannot drop working features from
// the suite.
package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Defaults shared by the probe and the skip guard.
const (
	DefaultMarker       = "Tool implementation coming soon"
	DefaultBudget       = 3000 * time.Millisecond
	DefaultPollInterval = 100 * time.Millisecond
)

// Source records how a Result was reached.
type Source string

const (
	SourceMarkerAbsent  Source = "marker-absent"
	SourceMarkerPresent Source = "marker-present"
	SourceErrorFallback Source = "error-fallback"
)

// Result is the outcome of a single probe.
type Result struct {
	Implemented bool   `json:"implemented"`
	Source      Source `json:"source"`
	Err         string `json:"error,omitempty"`
}

// TextChecker reports whether the current document contains text.
type TextChecker interface {
	ContainsText(ctx context.Context, text string) (bool, error)
}

// Session is one isolated page. Navigate must return only after the
// document's initial load (or an error).
type Session interface {
	TextChecker
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Launcher opens a new isolated Session per call.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Session, error)

// NewSession calls f.
func (f LauncherFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Observer is notified after every probe.
type Observer interface {
	ObserveProbe(url string, res Result, elapsed time.Duration)
}

// Prober runs probes against pages opened by a Launcher.
type Prober struct {
	launcher Launcher
	marker   string
	budget   time.Duration
	interval time.Duration
	failOpen bool
	logger   *zap.Logger
	observer Observer
}

// Option configures a Prober.
type Option func(*Prober)

// WithMarker sets the sentinel text.
func WithMarker(marker string) Option {
	return func(p *Prober) {
		if marker != "" {
			p.marker = marker
		}
	}
}

// WithBudget sets how long to wait for the sentinel.
func WithBudget(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.budget = d
		}
	}
}

// WithPollInterval sets the delay between sentinel lookups.
func WithPollInterval(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFailOpen selects the fail policy. true (the default) treats probe
// errors as "implemented".
func WithFailOpen(open bool) Option {
	return func(p *Prober) { p.failOpen = open }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(p *Prober) { p.observer = o }
}

// New creates a Prober.
func New(launcher Launcher, opts ...Option) *Prober {
	p := &Prober{
		launcher: launcher,
		marker:   DefaultMarker,
		budget:   DefaultBudget,
		interval: DefaultPollInterval,
		failOpen: true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Marker returns the sentinel text.
func (p *Prober) Marker() string {
	return p.marker
}

// Probe opens a session, navigates to url and waits up to the budget for the
// sentinel. The session is closed before Probe returns.
func (p *Prober) Probe(ctx context.Context, url string) (res Result) {
	start := time.Now()
	log := p.logger.With(zap.String("url", url))

	defer func() {
		if r := recover(); r != nil {
			res = p.fallback(fmt.Errorf("probe panic: %v", r))
			log.Error("probe panicked, using fallback verdict", zap.Any("panic", r))
		}
		log.Debug("probe finished",
			zap.Bool("implemented", res.Implemented),
			zap.String("source", string(res.Source)),
			zap.Duration("elapsed", time.Since(start)))
		if p.observer != nil {
			p.observer.ObserveProbe(url, res, time.Since(start))
		}
	}()

	sess, err := p.launcher.NewSession(ctx)
	if err != nil {
		log.Warn("open session failed, using fallback verdict", zap.Error(err))
		return p.fallback(fmt.Errorf("open session: %w", err))
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("close session", zap.Error(cerr))
		}
	}()

	if err := sess.Navigate(ctx, url); err != nil {
		log.Warn("navigation failed, using fallback verdict", zap.Error(err))
		return p.fallback(fmt.Errorf("navigate: %w", err))
	}

	found, err := WaitForText(ctx, sess, p.marker, p.budget, p.interval)
	if err != nil {
		log.Warn("sentinel lookup failed, using fallback verdict", zap.Error(err))
		return p.fallback(fmt.Errorf("lookup: %w", err))
	}
	if found {
		return Result{Implemented: false, Source: SourceMarkerPresent}
	}
	return Result{Implemented: true, Source: SourceMarkerAbsent}
}

func (p *Prober) fallback(err error) Result {
	return Result{Implemented: p.failOpen, Source: SourceErrorFallback, Err: err.Error()}
}

// WaitForText polls checker every interval until text is found or budget
// elapses. An elapsed budget is not an error: it yields (false, nil).
// Cancellation of ctx itself is returned as an error.
func WaitForText(ctx context.Context, checker TextChecker, text string, budget, interval time.Duration) (bool, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		found, err := checker.ContainsText(waitCtx, text)
		if found {
			return true, nil
		}
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return false, nil
			}
			return false, err
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
