package main

import (
	"context"
	"fmt"
	"io"

	"stubprobe/internal/browser"
	"stubprobe/internal/classify"
	"stubprobe/internal/config"
	"stubprobe/internal/history"
	"stubprobe/internal/logging"
	"stubprobe/internal/metrics"
	"stubprobe/internal/organize"
	"stubprobe/internal/probe"
	"stubprobe/internal/registry"
	"stubprobe/internal/static"

	"go.uber.org/zap"
)

// pipeline wires the build-time pass: registry, classifier, organizer and
// the optional history and metrics sinks.
type pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	launcher probe.Launcher
	prober   *probe.Prober
	recorder *metrics.Recorder
	shutdown func()
}

// newPipeline starts the configured probe driver. A browser that cannot
// start is not fatal: every probe then takes the fallback verdict.
func newPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) *pipeline {
	p := &pipeline{cfg: cfg, logger: logger, shutdown: func() {}}
	p.launcher, p.shutdown = newLauncher(ctx, cfg, logger)

	opts := []probe.Option{
		probe.WithMarker(cfg.Marker),
		probe.WithBudget(cfg.Probe.GetBudget()),
		probe.WithPollInterval(cfg.Probe.GetPollInterval()),
		probe.WithFailOpen(cfg.Probe.FailsOpen()),
		probe.WithLogger(logging.For(logger, logging.CategoryProbe)),
	}
	if cfg.Metrics.Textfile != "" {
		p.recorder = metrics.New()
		opts = append(opts, probe.WithObserver(p.recorder))
	}
	p.prober = probe.New(p.launcher, opts...)
	return p
}

func newLauncher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (probe.Launcher, func()) {
	nav := cfg.Probe.GetNavigationTimeout()
	if cfg.Probe.Driver == config.DriverHTTP {
		return static.NewLauncher(nil, nav), func() {}
	}

	log := logging.For(logger, logging.CategoryBrowser)
	mgr := browser.NewSessionManager(browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Bin:                 cfg.Browser.Bin,
		Flags:               cfg.Browser.Flags,
		Headless:            cfg.Browser.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: int(nav.Milliseconds()),
	}, log)

	if err := mgr.Start(ctx); err != nil {
		log.Warn("browser unavailable, every probe will fall back", zap.Error(err))
		startErr := fmt.Errorf("browser unavailable: %w", err)
		return probe.LauncherFunc(func(context.Context) (probe.Session, error) {
			return nil, startErr
		}), func() {}
	}
	return mgr, func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			log.Warn("browser shutdown", zap.Error(err))
		}
	}
}

// Close releases the probe driver.
func (p *pipeline) Close() {
	p.shutdown()
}

// loadRegistry reads the registry file and resolves relative URLs.
func (p *pipeline) loadRegistry() (*registry.Registry, error) {
	log := logging.For(p.logger, logging.CategoryRegistry)
	path := p.cfg.RegistryFile()

	reg, err := registry.Load(path)
	if err != nil {
		return nil, err
	}
	for _, w := range reg.Warnings() {
		log.Warn(w)
	}
	resolved, err := reg.Resolve(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	log.Debug("registry loaded",
		zap.String("path", path),
		zap.Int("modules", resolved.Len()),
		zap.Int("overrides", len(resolved.Overrides())))
	return resolved, nil
}

func (p *pipeline) classifier(reg *registry.Registry) *classify.Classifier {
	return classify.New(reg.Overrides(), p.prober,
		classify.WithConcurrency(p.cfg.Probe.GetConcurrency()),
		classify.WithLogger(logging.For(p.logger, logging.CategoryClassify)))
}

// organizeOnce runs one full classify-and-organize pass, writing status
// lines (text) or the JSON report to out.
func (p *pipeline) organizeOnce(ctx context.Context, out io.Writer, dryRun bool) (*organize.Report, error) {
	reg, err := p.loadRegistry()
	if err != nil {
		return nil, err
	}

	verdicts := p.classifier(reg).ClassifyAll(ctx, reg)

	layout := organize.Layout{
		Root:             p.cfg.SuiteRoot,
		ImplementedDir:   p.cfg.Organize.ImplementedDir,
		UnimplementedDir: p.cfg.Organize.UnimplementedDir,
	}
	text := p.cfg.Organize.Format != config.FormatJSON
	opts := []organize.Option{
		organize.WithRelocate(p.cfg.Organize.Relocate),
		organize.WithDryRun(dryRun),
		organize.WithLogger(logging.For(p.logger, logging.CategoryOrganize)),
	}
	if text {
		opts = append(opts, organize.WithProgress(func(op organize.MoveOperation) {
			fmt.Fprintln(out, organize.FormatOperation(layout.Root, op))
		}))
	}
	report := organize.New(layout, opts...).Organize(reg, verdicts)

	if text {
		err = report.WriteSummary(out)
	} else {
		err = report.WriteJSON(out)
	}
	if err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}

	p.recordHistory(ctx, report)
	p.writeMetrics(report)
	return report, nil
}

// recordHistory and writeMetrics never fail the run.
func (p *pipeline) recordHistory(ctx context.Context, report *organize.Report) {
	if !p.cfg.History.Enabled {
		return
	}
	log := logging.For(p.logger, logging.CategoryHistory)
	store, err := history.Open(p.cfg.History.Path, p.cfg.History.Keep, log)
	if err != nil {
		log.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Record(ctx, report); err != nil {
		log.Warn("record run", zap.Error(err))
	}
}

func (p *pipeline) writeMetrics(report *organize.Report) {
	if p.recorder == nil {
		return
	}
	log := logging.For(p.logger, logging.CategoryMetrics)
	p.recorder.RecordReport(report)
	if err := p.recorder.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		log.Warn("metrics textfile", zap.Error(err))
		return
	}
	log.Debug("metrics written", zap.String("path", p.cfg.Metrics.Textfile))
}
