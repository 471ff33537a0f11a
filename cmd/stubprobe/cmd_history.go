package main

import (
	"encoding/json"
	"fmt"
	"io"

	"stubprobe/internal/config"
	"stubprobe/internal/history"
	"stubprobe/internal/logging"

	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyRun     string
	historyChanges bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded organizer runs",
	Long: `Lists past organizer runs from the history database (history.path).
Runs are only recorded when history.enabled is true.

Examples:
  stubprobe history --limit 5
  stubprobe history --run 6f1c...     # per-module outcomes of one run
  stubprobe history --changes         # modules that flipped in the last run`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	store, err := history.Open(cfg.History.Path, cfg.History.Keep, logging.For(logger, logging.CategoryHistory))
	if err != nil {
		return err
	}
	defer store.Close()

	asJSON := cfg.Organize.Format == config.FormatJSON

	switch {
	case historyRun != "":
		outcomes, err := store.Outcomes(ctx, historyRun)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, outcomes)
		}
		if len(outcomes) == 0 {
			fmt.Fprintf(out, "No outcomes recorded for run %s\n", historyRun)
			return nil
		}
		for _, o := range outcomes {
			line := fmt.Sprintf("%-16s %-14s %s", o.Outcome, status(o.Implemented), o.Module)
			if o.Err != "" {
				line += ": " + o.Err
			}
			fmt.Fprintln(out, line)
		}
		return nil

	case historyChanges:
		changes, err := store.Changes(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, changes)
		}
		if len(changes) == 0 {
			fmt.Fprintln(out, "No status changes in the last run")
			return nil
		}
		for _, c := range changes {
			fmt.Fprintf(out, "%s: %s -> %s\n", c.Module, status(c.Before), status(c.After))
		}
		return nil
	}

	runs, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	for _, r := range runs {
		dry := ""
		if r.DryRun {
			dry = " (dry run)"
		}
		fmt.Fprintf(out, "%s  %s  implemented=%d unimplemented=%d moved=%d skipped=%d failed=%d%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.ID,
			r.Implemented, r.Unimplemented, r.Moved, r.Skipped, r.Failed, dry)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
