// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pooling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const extractionJSON = `{
	"study_metadata": {"study_id": "PMID111", "design": "RCT"},
	"effects_by_outcome": [
		{"name": "HbA1c", "type": "mean difference", "estimate": -0.3, "ci_low": -0.5, "ci_high": -0.1, "unit": "%", "timepoint_weeks": 12, "n": 80},
		{"name": "FPG", "type": "MD", "estimate": "-0.4", "ci_low": null, "ci_high": "", "se": "0.1"},
		{"name": "", "type": "MD", "estimate": 1},
		{"name": "BMI", "type": "ratio of means", "estimate": 1},
		{"name": "LDL", "type": "MD", "estimate": "n/a"}
	]
}`

const extractionYAML = `study_metadata:
  doi: 10.1000/xyz
effects_by_outcome:
  - name: HbA1c
    type: Hedges g
    estimate: 0.25
    se: 0.1
`

func TestLoadEffects(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(extractionJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(extractionYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{"effects_by_outcome": [`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.yml"), []byte("effects_by_outcome:\n  - name: HbA1c\n    type: MD\n    estimate: 0.1\n    se: 0.2\n"), 0o644))

	recs, errs, err := LoadEffects(dir)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	hb := recs[0]
	assert.Equal(t, "PMID111", hb.StudyID)
	assert.Equal(t, "HbA1c", hb.Outcome)
	assert.Equal(t, types.EffectMD, hb.Type)
	assert.Equal(t, -0.3, hb.Estimate)
	require.NotNil(t, hb.CILow)
	assert.Equal(t, -0.5, *hb.CILow)
	assert.Equal(t, "%", hb.Unit)
	require.NotNil(t, hb.SampleSize)
	assert.Equal(t, 80, *hb.SampleSize)
	require.NotNil(t, hb.TimepointWeeks)
	assert.Equal(t, 12.0, *hb.TimepointWeeks)
	assert.Nil(t, hb.StandardError)

	fpg := recs[1]
	assert.Equal(t, -0.4, fpg.Estimate)
	assert.Nil(t, fpg.CILow)
	assert.Nil(t, fpg.CIHigh)
	require.NotNil(t, fpg.StandardError)
	assert.Equal(t, 0.1, *fpg.StandardError)

	assert.Equal(t, "10.1000/xyz", recs[2].StudyID)
	assert.Equal(t, types.EffectSMD, recs[2].Type)

	assert.Equal(t, "d", recs[3].StudyID)

	require.Len(t, errs, 4)
	var re *types.RecordError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, "a.json#3", re.ID)
	assert.Equal(t, "name", re.Field)
	assert.Contains(t, errs[1].Error(), "type")
	assert.Contains(t, errs[2].Error(), "no effect estimate")
	assert.Contains(t, errs[3].Error(), "c.json")
}

func TestLoadEffects_MissingDir(t *testing.T) {
	_, _, err := LoadEffects(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadEffects_PoolsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"s1.yaml": "study_metadata: {study_id: S1}\neffects_by_outcome:\n  - {name: HbA1c, type: MD, estimate: -0.2, se: 0.1, unit: '%'}\n",
		"s2.yaml": "study_metadata: {study_id: S2}\neffects_by_outcome:\n  - {name: HbA1c, type: MD, estimate: -0.4, se: 0.1, unit: '%'}\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	recs, errs, err := LoadEffects(dir)
	require.NoError(t, err)
	require.Empty(t, errs)

	results, poolErrs := PoolAll(recs, fixedOpts())
	require.Empty(t, poolErrs)
	require.Len(t, results, 1)
	assert.InDelta(t, -0.3, results[0].Estimate, 1e-12)
	assert.Equal(t, "%", results[0].Unit)
}
