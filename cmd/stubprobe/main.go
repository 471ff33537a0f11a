package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stubprobe/internal/config"
	"stubprobe/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool
	format     string
	dryRun     bool
	watchMode  bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stubprobe",
	Short: "Sort end-to-end specs by whether their dashboard page is still a stub",
	Long: `stubprobe opens every dashboard page listed in the module registry and looks
for the stub sentinel ("Tool implementation coming soon"). Spec files for pages
that show it are moved to unimplemented-modules/, the rest to
implemented-modules/. Modules listed under "implemented" in the registry are
never probed.

Run without arguments to organize the suite once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if format != "" {
			cfg.Organize.Format = format
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		logging.For(logger, logging.CategoryBoot).Debug("config loaded",
			zap.String("path", configPath),
			zap.String("suite_root", cfg.SuiteRoot),
			zap.String("driver", cfg.Probe.Driver))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runOrganize,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "stubprobe.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "Report format: text or json (default from config)")

	for _, c := range []*cobra.Command{rootCmd, organizeCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "Report moves without touching the filesystem")
		c.Flags().BoolVar(&watchMode, "watch", false, "Re-run whenever the registry file changes")
	}

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show per-module outcomes of one run")
	historyCmd.Flags().BoolVar(&historyChanges, "changes", false, "Show modules whose status changed in the last run")

	rootCmd.AddCommand(organizeCmd, classifyCmd, probeCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// commandContext returns the command's context, or a background context for
// commands built outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
