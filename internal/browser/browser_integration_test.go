//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stubprobe/internal/browser"
	"stubprobe/internal/probe"

	"github.com/stretchr/testify/require"
)

// dashboard serves a miniature version of the dashboard under test.
func dashboard() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/stub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, `<html><body><h1>Regex Tester</h1><p>Tool implementation coming soon</p></body></html>`)
	})
	mux.HandleFunc("/tools/late-stub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, `<html><body><div id="app"></div><script>
			setTimeout(() => { document.getElementById("app").innerText = "Tool implementation coming soon"; }, 300);
		</script></body></html>`)
	})
	mux.HandleFunc("/tools/real", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, `<html><body><h1>Base64</h1><textarea></textarea></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestProbe_Integration(t *testing.T) {
	ts := dashboard()
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 10000

	mgr := browser.NewSessionManager(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	}()
	require.NoError(t, mgr.Start(ctx), "Failed to start browser")
	require.Contains(t, mgr.ControlURL(), "ws://")

	prober := probe.New(mgr, probe.WithBudget(2*time.Second))

	tests := []struct {
		name string
		path string
		want probe.Result
	}{
		{"static stub", "/tools/stub", probe.Result{Implemented: false, Source: probe.SourceMarkerPresent}},
		{"client rendered stub", "/tools/late-stub", probe.Result{Implemented: false, Source: probe.SourceMarkerPresent}},
		{"implemented", "/tools/real", probe.Result{Implemented: true, Source: probe.SourceMarkerAbsent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prober.Probe(ctx, ts.URL+tt.path)
			require.Equal(t, tt.want, got)
			require.Equal(t, 0, mgr.OpenSessions(), "session leaked")
		})
	}

	t.Run("unreachable host falls back", func(t *testing.T) {
		got := prober.Probe(ctx, "http://stubprobe.invalid/tools/x")
		require.True(t, got.Implemented)
		require.Equal(t, probe.SourceErrorFallback, got.Source)
		require.Equal(t, 0, mgr.OpenSessions(), "session leaked")
	})
}
