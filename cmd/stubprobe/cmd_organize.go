package main

import (
	"context"
	"io"

	"stubprobe/internal/logging"
	"stubprobe/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// organizeCmd is the default action, spelled out.
var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Classify every registry module and move its spec file",
	Long: `Classifies every module in the registry and moves its spec file from the
suite root into implemented-modules/ or unimplemented-modules/.

Failed moves are reported but do not change the exit status.`,
	RunE: runOrganize,
}

func runOrganize(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	p := newPipeline(ctx, cfg, logger)
	defer p.Close()

	if _, err := p.organizeOnce(ctx, out, dryRun); err != nil {
		return err
	}
	if !watchMode {
		return nil
	}
	return watchRegistry(ctx, out, p)
}

// watchRegistry re-runs the organizer on every registry change until ctx is
// cancelled. Registry errors during watch are logged, not fatal.
func watchRegistry(ctx context.Context, out io.Writer, p *pipeline) error {
	log := logging.For(logger, logging.CategoryWatch)
	w, err := watch.New(cfg.RegistryFile(), func(ctx context.Context) {
		if _, err := p.organizeOnce(ctx, out, dryRun); err != nil {
			log.Error("re-run failed", zap.Error(err))
		}
	}, watch.WithLogger(log))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	log.Info("watch stopped")
	return nil
}
