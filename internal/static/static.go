// Package static is a probe driver that fetches pages over plain HTTP and
// searches their HTML text. It runs no JavaScript, so it only sees sentinels
// rendered server-side; use it where Chrome is unavailable.
package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stubprobe/internal/probe"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 8 << 20

// Launcher hands out HTTP sessions sharing one client.
type Launcher struct {
	client    *http.Client
	userAgent string
}

// NewLauncher creates a Launcher. A nil client gets a default one bounded by timeout.
func NewLauncher(client *http.Client, timeout time.Duration) *Launcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Launcher{client: client, userAgent: "stubprobe"}
}

// NewSession implements probe.Launcher.
func (l *Launcher) NewSession(ctx context.Context) (probe.Session, error) {
	return &Session{client: l.client, userAgent: l.userAgent}, nil
}

// Session holds the text of the last fetched page.
type Session struct {
	client    *http.Client
	userAgent string
	text      string
	loaded    bool
}

// Navigate fetches url and extracts its text.
func (s *Session) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	text, err := ExtractText(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	s.text = text
	s.loaded = true
	return nil
}

// ContainsText implements probe.TextChecker.
func (s *Session) ContainsText(ctx context.Context, text string) (bool, error) {
	if !s.loaded {
		return false, errors.New("no page loaded")
	}
	return strings.Contains(s.text, text), nil
}

// Close releases the page text.
func (s *Session) Close() error {
	s.text = ""
	s.loaded = false
	return nil
}

// ExtractText returns the human-visible text of an HTML document with
// whitespace collapsed. Script, style, template and title contents are dropped.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return strings.Join(strings.Fields(b.String()), " "), nil
		case html.StartTagToken:
			if hidden(z.Token().DataAtom) {
				skip++
			}
		case html.EndTagToken:
			if hidden(z.Token().DataAtom) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func hidden(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Template, atom.Title:
		return true
	}
	return false
}

var _ probe.Launcher = (*Launcher)(nil)
