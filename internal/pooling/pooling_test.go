// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pooling

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func f(v float64) *float64 { return &v }

func logOR(id string, est, se float64) types.EffectRecord {
	return types.EffectRecord{StudyID: id, Outcome: "HbA1c", Type: types.EffectLogOR, Estimate: est, StandardError: f(se)}
}

func fixedOpts() Options {
	return Options{Model: types.ModelFixed, Z: DefaultZ, MinK: 1, Now: func() time.Time { return time.Unix(0, 0).UTC() }}
}

func TestPool_FixedThreeStudies(t *testing.T) {
	recs := []types.EffectRecord{logOR("S1", 0.10, 0.05), logOR("S2", 0.20, 0.07), logOR("S3", 0.15, 0.06)}

	res, err := Pool("HbA1c", recs, fixedOpts())
	require.NoError(t, err)

	w := []float64{1 / (0.05 * 0.05), 1 / (0.07 * 0.07), 1 / (0.06 * 0.06)}
	y := []float64{0.10, 0.20, 0.15}
	sumW := w[0] + w[1] + w[2]
	want := (w[0]*y[0] + w[1]*y[1] + w[2]*y[2]) / sumW

	assert.InDelta(t, want, res.Estimate, 1e-9)
	assert.InDelta(t, math.Sqrt(1/sumW), res.SE, 1e-12)
	assert.InDelta(t, want-1.96*res.SE, res.CILow, 1e-12)
	assert.InDelta(t, want+1.96*res.SE, res.CIHigh, 1e-12)
	assert.Equal(t, types.EffectLogOR, res.EffectType)
	assert.Equal(t, types.ModelFixed, res.Model)
	assert.Equal(t, 3, res.K)
	assert.Equal(t, 2, res.DF)

	require.NotNil(t, res.Q)
	require.NotNil(t, res.I2)
	require.NotNil(t, res.Tau2)
	var q float64
	for i := range y {
		q += w[i] * (y[i] - want) * (y[i] - want)
	}
	assert.InDelta(t, q, *res.Q, 1e-9)
	assert.GreaterOrEqual(t, *res.Q, 0.0)
	assert.GreaterOrEqual(t, *res.I2, 0.0)
	assert.LessOrEqual(t, *res.I2, 100.0)
	assert.GreaterOrEqual(t, *res.Tau2, 0.0)
	// Q below df: no excess heterogeneity
	assert.Zero(t, *res.I2)
	assert.Zero(t, *res.Tau2)

	var total float64
	for _, s := range res.Studies {
		total += s.Weight
	}
	assert.InDelta(t, 100, total, 1e-9)
	assert.InDelta(t, w[0]/sumW*100, res.Studies[0].Weight, 1e-9)
}

func TestPool_RandomEffects(t *testing.T) {
	y := []float64{0.1, 0.6, -0.2}
	se := []float64{0.1, 0.2, 0.05}
	var recs []types.EffectRecord
	for i := range y {
		recs = append(recs, logOR(string(rune('A'+i)), y[i], se[i]))
	}

	opts := fixedOpts()
	opts.Model = types.ModelRandom
	res, err := Pool("HbA1c", recs, opts)
	require.NoError(t, err)

	var sumW, sumW2, sumWY float64
	for i := range y {
		w := 1 / (se[i] * se[i])
		sumW += w
		sumW2 += w * w
		sumWY += w * y[i]
	}
	fixed := sumWY / sumW
	var q float64
	for i := range y {
		q += (y[i] - fixed) * (y[i] - fixed) / (se[i] * se[i])
	}
	tau2 := (q - 2) / (sumW - sumW2/sumW)
	require.Greater(t, tau2, 0.0)

	var sumWs, sumWsY float64
	for i := range y {
		ws := 1 / (se[i]*se[i] + tau2)
		sumWs += ws
		sumWsY += ws * y[i]
	}

	assert.InDelta(t, sumWsY/sumWs, res.Estimate, 1e-9)
	assert.InDelta(t, math.Sqrt(1/sumWs), res.SE, 1e-9)
	assert.InDelta(t, q, *res.Q, 1e-9)
	assert.InDelta(t, tau2, *res.Tau2, 1e-9)
	assert.InDelta(t, (q-2)/q*100, *res.I2, 1e-9)
	assert.Equal(t, types.ModelRandom, res.Model)

	fixedRes, err := Pool("HbA1c", recs, fixedOpts())
	require.NoError(t, err)
	assert.Greater(t, res.SE, fixedRes.SE)
}

func TestPool_SingleStudy(t *testing.T) {
	for _, model := range []types.PoolingModel{types.ModelFixed, types.ModelRandom} {
		t.Run(string(model), func(t *testing.T) {
			opts := fixedOpts()
			opts.Model = model
			res, err := Pool("HbA1c", []types.EffectRecord{logOR("S1", 0.123456789, 0.05)}, opts)
			require.NoError(t, err)
			assert.Equal(t, 0.123456789, res.Estimate)
			assert.Equal(t, 1, res.K)
			assert.Equal(t, 0, res.DF)
			assert.Nil(t, res.Q)
			assert.Nil(t, res.I2)
			assert.Nil(t, res.Tau2)
			assert.InDelta(t, 100, res.Studies[0].Weight, 1e-12)
		})
	}
}

func TestPool_SingleRatioStudyKeepsReportedValue(t *testing.T) {
	rec := types.EffectRecord{StudyID: "S1", Outcome: "death", Type: types.EffectOR, Estimate: 1.37, CILow: f(1.1), CIHigh: f(1.7)}
	res, err := Pool("death", []types.EffectRecord{rec}, fixedOpts())
	require.NoError(t, err)
	assert.Equal(t, 1.37, res.Estimate)
	assert.Equal(t, types.EffectOR, res.EffectType)
	assert.InDelta(t, (math.Log(1.7)-math.Log(1.1))/(2*1.96), res.SE, 1e-12)
}

func TestPool_RatioBackTransform(t *testing.T) {
	recs := []types.EffectRecord{
		{StudyID: "A", Outcome: "cancer", Type: types.EffectHR, Estimate: 0.8, CILow: f(0.6), CIHigh: f(1.0)},
		{StudyID: "B", Outcome: "cancer", Type: "hazard ratio", Estimate: 0.9, CILow: f(0.7), CIHigh: f(1.2)},
	}
	res, err := Pool("cancer", recs, fixedOpts())
	require.NoError(t, err)

	seA := (math.Log(1.0) - math.Log(0.6)) / (2 * 1.96)
	seB := (math.Log(1.2) - math.Log(0.7)) / (2 * 1.96)
	wA, wB := 1/(seA*seA), 1/(seB*seB)
	logPooled := (wA*math.Log(0.8) + wB*math.Log(0.9)) / (wA + wB)

	assert.Equal(t, types.EffectHR, res.EffectType)
	assert.InDelta(t, math.Exp(logPooled), res.Estimate, 1e-12)
	assert.Less(t, res.CILow, res.Estimate)
	assert.Greater(t, res.CIHigh, res.Estimate)
	assert.InDelta(t, math.Log(0.8), res.Studies[0].Estimate, 1e-12)
}

func TestPool_MixedRatioAndLogReportOnLogScale(t *testing.T) {
	recs := []types.EffectRecord{
		{StudyID: "A", Outcome: "x", Type: types.EffectOR, Estimate: 2, StandardError: f(0.2)},
		logOR("B", math.Log(2), 0.2),
	}
	res, err := Pool("x", recs, fixedOpts())
	require.NoError(t, err)
	assert.Equal(t, types.EffectLogOR, res.EffectType)
	assert.InDelta(t, math.Log(2), res.Estimate, 1e-12)
}

func TestPool_Errors(t *testing.T) {
	noVar := types.EffectRecord{StudyID: "A", Outcome: "x", Type: types.EffectMD, Estimate: 1}
	tests := []struct {
		name    string
		records []types.EffectRecord
		opts    Options
		want    error
	}{
		{"no records", nil, fixedOpts(), ErrNoData},
		{"no model", []types.EffectRecord{logOR("A", 0.1, 0.1)}, Options{}, ErrModelRequired},
		{"no variance", []types.EffectRecord{noVar, noVar}, fixedOpts(), ErrNoVariance},
		{"incompatible", []types.EffectRecord{
			logOR("A", 0.1, 0.1),
			{StudyID: "B", Outcome: "x", Type: types.EffectMD, Estimate: 1, StandardError: f(0.1)},
		}, fixedOpts(), ErrIncompatibleTypes},
		{"units", []types.EffectRecord{
			{StudyID: "A", Outcome: "x", Type: types.EffectMD, Estimate: 1, StandardError: f(0.1), Unit: "mmol/L"},
			{StudyID: "B", Outcome: "x", Type: types.EffectMD, Estimate: 1, StandardError: f(0.1), Unit: "%"},
		}, fixedOpts(), ErrUnitMismatch},
		{"min k", []types.EffectRecord{logOR("A", 0.1, 0.1)}, Options{Model: types.ModelFixed, MinK: 2}, ErrTooFewStudies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Pool("x", tt.records, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, types.PooledResult{}, res)

			var pe *PoolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "x", pe.Outcome)
		})
	}
}

func TestPool_NoVarianceKeepsAudit(t *testing.T) {
	recs := []types.EffectRecord{
		{StudyID: "A", Outcome: "x", Type: types.EffectMD, Estimate: 1},
		{StudyID: "B", Outcome: "x", Type: types.EffectMD, Estimate: 1, CILow: f(1), CIHigh: f(1)},
	}
	_, err := Pool("x", recs, fixedOpts())
	var pe *PoolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []types.ExcludedEffect{
		{StudyID: "A", Outcome: "x", Reason: ReasonMissingVariance},
		{StudyID: "B", Outcome: "x", Reason: ReasonZeroVariance},
	}, pe.Excluded)
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name   string
		rec    types.EffectRecord
		reason string
		se     float64
	}{
		{"se from ci", types.EffectRecord{Type: types.EffectMD, Estimate: 1, CILow: f(0.5), CIHigh: f(1.5)}, "", 1 / 3.92},
		{"se provided wins", types.EffectRecord{Type: types.EffectMD, Estimate: 1, CILow: f(0.5), CIHigh: f(1.5), StandardError: f(0.3)}, "", 0.3},
		{"estimate above ci", types.EffectRecord{Type: types.EffectMD, Estimate: 2, CILow: f(0.5), CIHigh: f(1.5)}, ReasonOutsideCI, 0},
		{"estimate below ci", types.EffectRecord{Type: types.EffectMD, Estimate: 0.1, CILow: f(0.5), CIHigh: f(1.5), StandardError: f(0.2)}, ReasonOutsideCI, 0},
		{"inverted ci", types.EffectRecord{Type: types.EffectMD, Estimate: 1, CILow: f(1.5), CIHigh: f(0.5)}, ReasonInvertedCI, 0},
		{"negative ratio", types.EffectRecord{Type: types.EffectRR, Estimate: -1, StandardError: f(0.1)}, ReasonNonPositive, 0},
		{"zero ratio bound", types.EffectRecord{Type: types.EffectRR, Estimate: 1, CILow: f(0), CIHigh: f(2)}, ReasonNonPositive, 0},
		{"unknown type", types.EffectRecord{Type: "ratio of means", Estimate: 1, StandardError: f(0.1)}, ReasonUnknownType, 0},
		{"nan estimate", types.EffectRecord{Type: types.EffectMD, Estimate: math.NaN(), StandardError: f(0.1)}, ReasonNoEstimate, 0},
		{"one-sided ci", types.EffectRecord{Type: types.EffectMD, Estimate: 1, CILow: f(0.5)}, ReasonMissingVariance, 0},
		{"negative se", types.EffectRecord{Type: types.EffectMD, Estimate: 1, StandardError: f(-0.1)}, ReasonZeroVariance, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usable, excluded := Prepare([]types.EffectRecord{tt.rec}, DefaultZ)
			if tt.reason != "" {
				require.Len(t, excluded, 1)
				assert.Equal(t, tt.reason, excluded[0].Reason)
				assert.Empty(t, usable)
				return
			}
			require.Len(t, usable, 1)
			assert.InDelta(t, tt.se, usable[0].SE, 1e-12)
		})
	}
}

func TestPool_OutsideCIExcludedNotPooled(t *testing.T) {
	recs := []types.EffectRecord{
		logOR("A", 0.1, 0.1),
		logOR("B", 0.2, 0.1),
		{StudyID: "BAD", Outcome: "HbA1c", Type: types.EffectLogOR, Estimate: 5, CILow: f(0), CIHigh: f(1)},
	}
	res, err := Pool("HbA1c", recs, fixedOpts())
	require.NoError(t, err)
	assert.Equal(t, 2, res.K)
	assert.InDelta(t, 0.15, res.Estimate, 1e-12)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "BAD", res.Excluded[0].StudyID)
	assert.Equal(t, ReasonOutsideCI, res.Excluded[0].Reason)
}

func TestGroupByOutcomeAndPoolAll(t *testing.T) {
	recs := []types.EffectRecord{
		{StudyID: "A", Outcome: "HbA1c", Type: types.EffectMD, Estimate: -0.3, StandardError: f(0.1)},
		{StudyID: "B", Outcome: "hba1c ", Type: types.EffectMD, Estimate: -0.1, StandardError: f(0.1)},
		{StudyID: "A", Outcome: "Cancer", Type: types.EffectOR, Estimate: 0.8, StandardError: f(0.1)},
		{StudyID: "B", Outcome: "Cancer", Type: types.EffectLogOR, Estimate: -0.2, StandardError: f(0.1)},
		{StudyID: "C", Outcome: "HbA1c", Type: types.EffectSMD, Estimate: 0.2},
	}
	groups := GroupByOutcome(recs)
	require.Len(t, groups, 3)
	assert.Equal(t, "Cancer", groups[0].Outcome)
	assert.Equal(t, "log-odds", groups[0].Scale)
	assert.Len(t, groups[0].Records, 2)
	assert.Equal(t, "HbA1c", groups[1].Outcome)
	assert.Equal(t, "mean-difference", groups[1].Scale)
	assert.Len(t, groups[1].Records, 2)
	assert.Equal(t, "standardized-mean-difference", groups[2].Scale)

	results, errs := PoolAll(recs, fixedOpts())
	require.Len(t, results, 2)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoVariance)
	assert.InDelta(t, -0.2, results[1].Estimate, 1e-12)

	assert.Len(t, Filter(recs, "hba1c"), 3)
}
