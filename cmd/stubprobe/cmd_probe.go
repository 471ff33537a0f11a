package main

import (
	"fmt"

	"stubprobe/internal/config"
	"stubprobe/internal/probe"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Probe a single page for the stub sentinel",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print the verdict for every registry module without moving files",
	RunE:  runClassify,
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	p := newPipeline(ctx, cfg, logger)
	defer p.Close()

	url := args[0]
	res := p.prober.Probe(ctx, url)

	if cfg.Organize.Format == config.FormatJSON {
		return writeJSON(out, struct {
			URL string `json:"url"`
			probe.Result
		}{url, res})
	}
	fmt.Fprintf(out, "%s: %s (%s)\n", url, status(res.Implemented), res.Source)
	if res.Err != "" {
		fmt.Fprintf(out, "  error: %s\n", res.Err)
	}
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	p := newPipeline(ctx, cfg, logger)
	defer p.Close()

	reg, err := p.loadRegistry()
	if err != nil {
		return err
	}
	verdicts := p.classifier(reg).ClassifyAll(ctx, reg)

	if cfg.Organize.Format == config.FormatJSON {
		return writeJSON(out, verdicts)
	}
	implemented := 0
	for _, v := range verdicts {
		if v.Implemented {
			implemented++
		}
		fmt.Fprintf(out, "%-14s %s (%s)\n", status(v.Implemented), v.ID, v.Source)
	}
	fmt.Fprintf(out, "\n%d implemented, %d unimplemented\n", implemented, len(verdicts)-implemented)
	return nil
}

func status(implemented bool) string {
	if implemented {
		return "implemented"
	}
	return "unimplemented"
}
