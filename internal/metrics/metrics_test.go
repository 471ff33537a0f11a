package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stubprobe/internal/classify"
	"stubprobe/internal/organize"
	"stubprobe/internal/probe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAndRead(t *testing.T, r *Recorder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stubprobe.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestObserveProbe(t *testing.T) {
	r := New()
	r.ObserveProbe("http://dash/a", probe.Result{Implemented: false, Source: probe.SourceMarkerPresent}, 200*time.Millisecond)
	r.ObserveProbe("http://dash/b", probe.Result{Implemented: true, Source: probe.SourceMarkerAbsent}, 3*time.Second)
	r.ObserveProbe("http://dash/c", probe.Result{Implemented: true, Source: probe.SourceMarkerAbsent}, 3*time.Second)

	out := writeAndRead(t, r)

	assert.Contains(t, out, `stubprobe_probe_total{source="marker-present"} 1`)
	assert.Contains(t, out, `stubprobe_probe_total{source="marker-absent"} 2`)
	assert.Contains(t, out, `stubprobe_probe_duration_seconds_count{source="marker-absent"} 2`)
	assert.Contains(t, out, `stubprobe_probe_duration_seconds_bucket{source="marker-present",le="0.25"} 1`)
}

func TestRecordReport(t *testing.T) {
	started := time.Unix(1700000000, 0)
	report := &organize.Report{
		StartedAt:  started,
		FinishedAt: started.Add(4 * time.Second),
		Verdicts: []classify.Verdict{
			{ID: "a", Implemented: true, Source: classify.SourceOverride},
			{ID: "b", Implemented: false, Source: probe.SourceMarkerPresent},
			{ID: "c", Implemented: true, Source: probe.SourceErrorFallback},
		},
		Operations: []organize.MoveOperation{
			{ID: "a", Outcome: organize.OutcomeMoved},
			{ID: "b", Outcome: organize.OutcomeSkippedMissing},
			{ID: "c", Outcome: organize.OutcomeFailed},
		},
		Implemented:   []string{"a", "c"},
		Unimplemented: []string{"b"},
	}

	r := New()
	r.RecordReport(report)
	r.RecordReport(nil)
	out := writeAndRead(t, r)

	assert.Contains(t, out, `stubprobe_verdict_total{source="override",status="implemented"} 1`)
	assert.Contains(t, out, `stubprobe_verdict_total{source="marker-present",status="unimplemented"} 1`)
	assert.Contains(t, out, `stubprobe_move_total{outcome="failed"} 1`)
	assert.Contains(t, out, `stubprobe_move_total{outcome="moved"} 1`)
	assert.Contains(t, out, `stubprobe_modules{status="implemented"} 2`)
	assert.Contains(t, out, `stubprobe_last_run_timestamp_seconds 1.700000004e+09`)
	assert.Contains(t, out, `stubprobe_last_run_duration_seconds 4`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	r := New()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}

func TestRecorder_IsProbeObserver(t *testing.T) {
	var obs probe.Observer = New()
	assert.NotNil(t, obs)
}
