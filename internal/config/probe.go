package config

import (
	"fmt"
	"time"
)

// Probe drivers.
const (
	DriverBrowser = "browser" // headless Chrome via go-rod
	DriverHTTP    = "http"    // plain GET + HTML text extraction
)

// Fail policies applied when a probe cannot complete.
const (
	FailOpen   = "open"
	FailClosed = "closed"
)

// ProbeConfig configures the stub-page probe.
type ProbeConfig struct {
	Driver            string `yaml:"driver"`
	Budget            string `yaml:"budget"`             // sentinel wait budget
	PollInterval      string `yaml:"poll_interval"`      // delay between sentinel lookups
	NavigationTimeout string `yaml:"navigation_timeout"` // per-page navigation limit
	FailPolicy        string `yaml:"fail_policy"`        // open, closed
	Concurrency       int    `yaml:"concurrency"`        // 1 = sequential
}

// DefaultProbeConfig returns the probe defaults.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Driver:            DriverBrowser,
		Budget:            "3000ms",
		PollInterval:      "100ms",
		NavigationTimeout: "30s",
		FailPolicy:        FailOpen,
		Concurrency:       1,
	}
}

// GetBudget returns the sentinel wait budget.
func (p ProbeConfig) GetBudget() time.Duration {
	d, err := time.ParseDuration(p.Budget)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// GetPollInterval returns the sentinel polling interval.
func (p ProbeConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(p.PollInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetNavigationTimeout returns the navigation timeout.
func (p ProbeConfig) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(p.NavigationTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetConcurrency returns the probe concurrency, never below 1.
func (p ProbeConfig) GetConcurrency() int {
	if p.Concurrency < 1 {
		return 1
	}
	return p.Concurrency
}

// FailsOpen reports whether probe errors resolve to "implemented".
func (p ProbeConfig) FailsOpen() bool {
	return p.FailPolicy != FailClosed
}

func (p ProbeConfig) validate() error {
	switch p.Driver {
	case DriverBrowser, DriverHTTP, "":
	default:
		return fmt.Errorf("invalid probe driver: %s (valid: %s, %s)", p.Driver, DriverBrowser, DriverHTTP)
	}
	switch p.FailPolicy {
	case FailOpen, FailClosed, "":
	default:
		return fmt.Errorf("invalid fail policy: %s (valid: %s, %s)", p.FailPolicy, FailOpen, FailClosed)
	}
	if p.Concurrency < 0 {
		return fmt.Errorf("probe concurrency must not be negative")
	}
	return nil
}
