package organize

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"stubprobe/internal/classify"
)

// Report summarizes one organizer run.
type Report struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	DryRun        bool               `json:"dry_run"`
	Root          string             `json:"root"`
	Verdicts      []classify.Verdict `json:"verdicts"`
	Operations    []MoveOperation    `json:"operations"`
	Implemented   []string           `json:"implemented"`
	Unimplemented []string           `json:"unimplemented"`
	Failed        []MoveOperation    `json:"failed"`
}

// Count returns how many operations ended with outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, op := range r.Operations {
		if op.Outcome == outcome {
			n++
		}
	}
	return n
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FormatOperation renders one status line. Paths are shown relative to root.
func FormatOperation(root string, op MoveOperation) string {
	switch op.Outcome {
	case OutcomeMoved:
		return fmt.Sprintf("%-16s %s: %s -> %s", op.Outcome, op.ID, rel(root, op.FromPath), rel(root, op.ToPath))
	case OutcomeFailed:
		return fmt.Sprintf("%-16s %s: %s", op.Outcome, op.ID, op.Err)
	default:
		if op.Detail != "" {
			return fmt.Sprintf("%-16s %s (%s)", op.Outcome, op.ID, op.Detail)
		}
		return fmt.Sprintf("%-16s %s", op.Outcome, op.ID)
	}
}

func rel(root, path string) string {
	if root == "" {
		return path
	}
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}

// WriteText writes every operation followed by the summary.
func (r *Report) WriteText(w io.Writer) error {
	for _, op := range r.Operations {
		if _, err := fmt.Fprintln(w, FormatOperation(r.Root, op)); err != nil {
			return err
		}
	}
	return r.WriteSummary(w)
}

// WriteSummary writes the implemented/unimplemented lists and outcome counts.
func (r *Report) WriteSummary(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\nSummary")
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Implemented (%d): %s\n", len(r.Implemented), joinOrNone(r.Implemented))
	fmt.Fprintf(&b, "  Unimplemented (%d): %s\n", len(r.Unimplemented), joinOrNone(r.Unimplemented))
	fmt.Fprintf(&b, "  Moved: %d  Skipped: %d  Failed: %d\n",
		r.Count(OutcomeMoved), r.Count(OutcomeSkippedMissing), r.Count(OutcomeFailed))
	if len(r.Failed) > 0 {
		b.WriteString("  Failed operations:\n")
		for _, op := range r.Failed {
			fmt.Fprintf(&b, "    %s: %s\n", op.ID, op.Err)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
