package config

import (
	"fmt"
	"strings"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// OrganizeConfig configures the spec-file organizer.
type OrganizeConfig struct {
	ImplementedDir   string `yaml:"implemented_dir"`
	UnimplementedDir string `yaml:"unimplemented_dir"`
	// Relocate moves files between the destination directories when a
	// module's status flipped since the last run. Off by default: a
	// transient fallback verdict would otherwise shuffle organized files.
	Relocate bool   `yaml:"relocate"`
	Format   string `yaml:"format"` // text, json
}

// DefaultOrganizeConfig returns organizer defaults.
func DefaultOrganizeConfig() OrganizeConfig {
	return OrganizeConfig{
		ImplementedDir:   "implemented-modules",
		UnimplementedDir: "unimplemented-modules",
		Relocate:         false,
		Format:           FormatText,
	}
}

func (o OrganizeConfig) validate() error {
	for _, dir := range []string{o.ImplementedDir, o.UnimplementedDir} {
		if dir == "" {
			return fmt.Errorf("destination directories must be set")
		}
		if strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("destination directory %q must be a plain name", dir)
		}
	}
	if o.ImplementedDir == o.UnimplementedDir {
		return fmt.Errorf("implemented_dir and unimplemented_dir must differ")
	}
	switch o.Format {
	case FormatText, FormatJSON, "":
	default:
		return fmt.Errorf("invalid report format: %s", o.Format)
	}
	return nil
}

// HistoryConfig configures the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Keep    int    `yaml:"keep"` // runs retained; 0 keeps everything
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after every run when set.
	Textfile string `yaml:"textfile"`
}
