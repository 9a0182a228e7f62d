// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.Decision("title_abstract", "include", "ml_high")
	r.Decision("title_abstract", "include", "ml_high")
	r.Decision("full_text", "exclude", "fulltext_unavailable")
	r.Fetch("timeout")
	r.RecordError("title_abstract")
	r.PoolingRun("random", "ok")

	assert.Equal(t, 2.0, counterValue(t, r, "evidence_engine_decisions_total", "title_abstract", "include", "ml_high"))
	assert.Equal(t, 1.0, counterValue(t, r, "evidence_engine_decisions_total", "full_text", "exclude", "fulltext_unavailable"))
	assert.Equal(t, 1.0, counterValue(t, r, "evidence_engine_fulltext_fetches_total", "timeout"))
	assert.Equal(t, 1.0, counterValue(t, r, "evidence_engine_record_errors_total", "title_abstract"))
	assert.Equal(t, 1.0, counterValue(t, r, "evidence_engine_pooling_runs_total", "random", "ok"))
	assert.Zero(t, counterValue(t, r, "evidence_engine_fulltext_fetches_total", "available"))
}

// counterValue returns the counter carrying exactly the given label values.
func counterValue(t *testing.T, r *Recorder, name string, values ...string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	want := append([]string(nil), values...)
	sort.Strings(want)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			var got []string
			for _, lp := range m.GetLabel() {
				got = append(got, lp.GetValue())
			}
			sort.Strings(got)
			if strings.Join(got, ",") == strings.Join(want, ",") {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Decision("a", "b", "c")
		r.Fetch("x")
		r.RecordError("x")
		r.PoolingRun("fixed", "ok")
		r.ObserveStage("x", time.Now())
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Decision("full_text", "include", "ft_score_high")
	r.ObserveStage("full_text", time.Now().Add(-time.Second))

	path := filepath.Join(t.TempDir(), "evidence.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `evidence_engine_decisions_total{decision="include",reason="ft_score_high",stage="full_text"} 1`)
	assert.Contains(t, out, "evidence_engine_stage_duration_seconds_count")
}
