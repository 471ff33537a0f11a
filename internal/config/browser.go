package config

// BrowserConfig configures the Chrome instance used by the browser driver.
type BrowserConfig struct {
	// DebuggerURL connects to an already running Chrome instead of launching one.
	DebuggerURL string `yaml:"debugger_url"`
	// Bin overrides the Chrome binary; empty lets the launcher locate or download one.
	Bin            string   `yaml:"bin"`
	Flags          []string `yaml:"flags"`
	Headless       bool     `yaml:"headless"`
	ViewportWidth  int      `yaml:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height"`
}

// DefaultBrowserConfig returns browser defaults suited to CI.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	}
}
