// Package browser drives Chrome through go-rod for stub probes.
// One Chrome process serves the whole run; every probe gets its own
// incognito browser context that is disposed when the session closes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stubprobe/internal/probe"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `json:"debugger_url"`
	Bin                 string   `json:"bin"`
	Flags               []string `json:"flags"`
	Headless            bool     `json:"headless"`
	ViewportWidth       int      `json:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      800,
		NavigationTimeoutMs: 30000,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 800
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SessionManager owns the Chrome instance and hands out disposable sessions.
type SessionManager struct {
	cfg        Config
	logger     *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	launcher   *launcher.Launcher // nil when attached to an external Chrome
	controlURL string
	open       atomic.Int32
}

// NewSessionManager creates a new session manager. Chrome is started lazily.
func NewSessionManager(cfg Config, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		cfg:    cfg,
		logger: logger,
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.logger.Warn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		m.killLauncherLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	m.logger.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// resolveControlURL returns the DevTools websocket URL, launching Chrome when
// no debugger URL is configured. Caller must hold the lock.
func (m *SessionManager) resolveControlURL() (string, error) {
	if u := m.cfg.DebuggerURL; u != "" {
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			return u, nil
		}
		// host:port or http URL: ask /json/version for the websocket URL.
		resolved, err := launcher.ResolveURL(u)
		if err != nil {
			return "", fmt.Errorf("resolve debugger url %q: %w", u, err)
		}
		return resolved, nil
	}

	l := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	for _, rawFlag := range m.cfg.Flags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	url, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch chrome: %w", err)
	}
	m.launcher = l
	return url, nil
}

func (m *SessionManager) killLauncherLocked() {
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
		m.launcher = nil
	}
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// OpenSessions returns the number of sessions not yet closed.
func (m *SessionManager) OpenSessions() int {
	return int(m.open.Load())
}

// Shutdown disconnects from Chrome and kills it if this manager launched it.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		if m.launcher != nil {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	m.killLauncherLocked()
	m.controlURL = ""
	return err
}

// NewSession opens an isolated incognito page. It implements probe.Launcher.
func (m *SessionManager) NewSession(ctx context.Context) (probe.Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.logger.Debug("failed to set viewport", zap.Error(err))
	}

	m.open.Add(1)
	return &Session{
		mgr:        m,
		incognito:  incognito,
		page:       page,
		navTimeout: m.cfg.NavigationTimeout(),
	}, nil
}

// Session is one disposable page inside its own incognito context.
type Session struct {
	mgr        *SessionManager
	incognito  *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
	closeOnce  sync.Once
	closeErr   error
}

// Navigate loads url and waits for the document's load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.navTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

// ContainsText reports whether the rendered document text contains text.
func (s *Session) ContainsText(ctx context.Context, text string) (bool, error) {
	return WrapPage(s.page).ContainsText(ctx, text)
}

// Page exposes the underlying rod page.
func (s *Session) Page() *rod.Page {
	return s.page
}

// Close closes the page and disposes its browser context. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.page.Close(), s.incognito.Close())
		s.mgr.open.Add(-1)
	})
	return s.closeErr
}

// containsTextJS checks visible text first, then raw text content for
// documents without layout (e.g. before styles apply).
const containsTextJS = `(text) => {
	const root = document.body || document.documentElement;
	if (!root) return false;
	return (root.innerText || root.textContent || "").includes(text);
}`

// Page adapts an already-navigated rod page to probe.TextChecker.
type Page struct {
	page *rod.Page
}

// WrapPage wraps p.
func WrapPage(p *rod.Page) *Page {
	return &Page{page: p}
}

// ContainsText evaluates a single text lookup in the page.
func (p *Page) ContainsText(ctx context.Context, text string) (bool, error) {
	obj, err := p.page.Context(ctx).Eval(containsTextJS, text)
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

var _ probe.Launcher = (*SessionManager)(nil)
var _ probe.Session = (*Session)(nil)
var _ probe.TextChecker = (*Page)(nil)
