// Package organize partitions test-spec files into implemented and
// unimplemented directories according to classifier verdicts.
//
// A failure on one file never aborts the batch: it is recorded on that
// file's MoveOperation and surfaced in the report. Running the organizer
// again over an organized tree performs no moves.
package organize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"stubprobe/internal/classify"
	"stubprobe/internal/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the result of organizing one spec file.
type Outcome string

const (
	OutcomeMoved          Outcome = "moved"
	OutcomeSkippedMissing Outcome = "skipped-missing"
	OutcomeFailed         Outcome = "failed"
)

// MoveOperation records what happened to one module's spec file.
type MoveOperation struct {
	ID       string  `json:"id"`
	FromPath string  `json:"from"`
	ToPath   string  `json:"to"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail,omitempty"`
	Err      string  `json:"error,omitempty"`
}

// Layout describes where spec files live.
type Layout struct {
	Root             string
	ImplementedDir   string
	UnimplementedDir string
}

// DefaultLayout returns the standard layout under root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:             root,
		ImplementedDir:   "implemented-modules",
		UnimplementedDir: "unimplemented-modules",
	}
}

// Destination returns the directory a module belongs in.
func (l Layout) Destination(implemented bool) string {
	if implemented {
		return filepath.Join(l.Root, l.ImplementedDir)
	}
	return filepath.Join(l.Root, l.UnimplementedDir)
}

// Source returns the unorganized location of a spec file.
func (l Layout) Source(id string) string {
	return filepath.Join(l.Root, id)
}

// fileSystem is the subset of os the organizer touches.
type fileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (osFS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// Organizer moves spec files between the suite root and the destination directories.
type Organizer struct {
	layout   Layout
	relocate bool
	dryRun   bool
	logger   *zap.Logger
	fs       fileSystem
	progress func(MoveOperation)
}

// Option configures an Organizer.
type Option func(*Organizer)

// WithRelocate moves files across destination directories when a module's
// status flipped since the last run. Disabled by default, so a second run over
// an organized tree never moves anything.
func WithRelocate(enabled bool) Option {
	return func(o *Organizer) { o.relocate = enabled }
}

// WithDryRun reports what would happen without touching the filesystem.
func WithDryRun(enabled bool) Option {
	return func(o *Organizer) { o.dryRun = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Organizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProgress registers a callback invoked after each module is processed.
func WithProgress(fn func(MoveOperation)) Option {
	return func(o *Organizer) { o.progress = fn }
}

func withFS(f fileSystem) Option {
	return func(o *Organizer) { o.fs = f }
}

// New creates an Organizer for layout.
func New(layout Layout, opts ...Option) *Organizer {
	o := &Organizer{
		layout: layout,
		logger: zap.NewNop(),
		fs:     osFS{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Organize processes every registry entry, in registry order, against its verdict.
func (o *Organizer) Organize(reg *registry.Registry, verdicts []classify.Verdict) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		DryRun:    o.dryRun,
		Root:      o.layout.Root,

		Verdicts:      []classify.Verdict{},
		Operations:    []MoveOperation{},
		Implemented:   []string{},
		Unimplemented: []string{},
		Failed:        []MoveOperation{},
	}

	byID := make(map[string]classify.Verdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.ID] = v
	}

	for _, m := range reg.Modules() {
		var op MoveOperation
		v, ok := byID[m.ID]
		if !ok {
			op = MoveOperation{
				ID:       m.ID,
				FromPath: o.layout.Source(m.ID),
				Outcome:  OutcomeFailed,
				Err:      "no verdict for module",
			}
		} else {
			report.Verdicts = append(report.Verdicts, v)
			if v.Implemented {
				report.Implemented = append(report.Implemented, m.ID)
			} else {
				report.Unimplemented = append(report.Unimplemented, m.ID)
			}
			op = o.move(m.ID, v.Implemented)
		}

		if op.Outcome == OutcomeFailed {
			o.logger.Error("move failed", zap.String("module", op.ID), zap.String("error", op.Err))
			report.Failed = append(report.Failed, op)
		} else {
			o.logger.Debug("module processed",
				zap.String("module", op.ID),
				zap.String("outcome", string(op.Outcome)),
				zap.String("to", op.ToPath))
		}
		report.Operations = append(report.Operations, op)
		if o.progress != nil {
			o.progress(op)
		}
	}

	report.FinishedAt = time.Now()
	return report
}

func (o *Organizer) move(id string, implemented bool) MoveOperation {
	destDir := o.layout.Destination(implemented)
	op := MoveOperation{
		ID:       id,
		FromPath: o.layout.Source(id),
		ToPath:   filepath.Join(destDir, id),
	}
	fail := func(err error) MoveOperation {
		op.Outcome = OutcomeFailed
		op.Err = err.Error()
		return op
	}

	if !o.dryRun {
		if err := o.fs.MkdirAll(destDir, 0o755); err != nil {
			return fail(fmt.Errorf("create %s: %w", destDir, err))
		}
	}

	found, err := o.isFile(op.FromPath)
	if err != nil {
		return fail(err)
	}
	if !found && o.relocate {
		other := filepath.Join(o.layout.Destination(!implemented), id)
		if found, err = o.isFile(other); err != nil {
			return fail(err)
		}
		if found {
			op.FromPath = other
			op.Detail = "status changed since last run"
		}
	}

	if !found {
		op.Outcome = OutcomeSkippedMissing
		if inPlace, _ := o.isFile(op.ToPath); inPlace {
			op.Detail = "already in place"
		}
		return op
	}

	if inPlace, _ := o.isFile(op.ToPath); inPlace {
		o.logger.Warn("replacing existing spec file", zap.String("module", id), zap.String("path", op.ToPath))
	}

	if o.dryRun {
		op.Outcome = OutcomeMoved
		return op
	}
	if err := o.fs.Rename(op.FromPath, op.ToPath); err != nil {
		return fail(fmt.Errorf("move: %w", err))
	}
	op.Outcome = OutcomeMoved
	return op
}

// isFile reports whether path exists as a regular file. Missing paths are
// not an error.
func (o *Organizer) isFile(path string) (bool, error) {
	info, err := o.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}
