// Package classify turns registry entries into implemented/unimplemented
// verdicts. The registry's override list always wins over a live probe, and
// overridden modules are never probed.
package classify

import (
	"context"
	"time"

	"stubprobe/internal/probe"
	"stubprobe/internal/registry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SourceOverride marks verdicts taken from the OverrideSet.
const SourceOverride probe.Source = "override"

// Verdict is the final classification of one module.
type Verdict struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Implemented bool         `json:"implemented"`
	Source      probe.Source `json:"source"`
	Err         string       `json:"error,omitempty"`
}

// Prober runs one live probe. *probe.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, url string) probe.Result
}

// Classifier combines the OverrideSet with live probes.
type Classifier struct {
	overrides   registry.OverrideSet
	prober      Prober
	concurrency int
	logger      *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithConcurrency bounds how many probes run at once. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Classifier. prober is only invoked for modules outside overrides.
func New(overrides registry.OverrideSet, prober Prober, opts ...Option) *Classifier {
	c := &Classifier{
		overrides:   overrides,
		prober:      prober,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify produces the verdict for one module.
func (c *Classifier) Classify(ctx context.Context, m registry.ModuleDescriptor) Verdict {
	if c.overrides.Contains(m.ID) {
		c.logger.Debug("override wins", zap.String("module", m.ID))
		return Verdict{ID: m.ID, URL: m.URL, Implemented: true, Source: SourceOverride}
	}

	res := c.probe(ctx, m.URL)
	c.logger.Info("classified",
		zap.String("module", m.ID),
		zap.Bool("implemented", res.Implemented),
		zap.String("source", string(res.Source)))
	return Verdict{ID: m.ID, URL: m.URL, Implemented: res.Implemented, Source: res.Source, Err: res.Err}
}

// probe shields the classifier from a misbehaving Prober implementation.
func (c *Classifier) probe(ctx context.Context, url string) (res probe.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("prober panicked, treating module as implemented", zap.String("url", url), zap.Any("panic", r))
			res = probe.Result{Implemented: true, Source: probe.SourceErrorFallback, Err: "prober panicked"}
		}
	}()
	if c.prober == nil {
		return probe.Result{Implemented: true, Source: probe.SourceErrorFallback, Err: "no prober configured"}
	}
	return c.prober.Probe(ctx, url)
}

// ClassifyAll classifies every module of reg. Verdicts come back in registry order.
func (c *Classifier) ClassifyAll(ctx context.Context, reg *registry.Registry) []Verdict {
	modules := reg.Modules()
	verdicts := make([]Verdict, len(modules))
	start := time.Now()

	if c.concurrency <= 1 {
		for i, m := range modules {
			verdicts[i] = c.Classify(ctx, m)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.concurrency)
		for i, m := range modules {
			g.Go(func() error {
				verdicts[i] = c.Classify(ctx, m)
				return nil
			})
		}
		_ = g.Wait()
	}

	c.logger.Debug("classification complete",
		zap.Int("modules", len(modules)),
		zap.Int("concurrency", c.concurrency),
		zap.Duration("elapsed", time.Since(start)))
	return verdicts
}
