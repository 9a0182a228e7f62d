// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pooling combines per-study effect estimates for one outcome with
// inverse-variance (fixed-effect) or DerSimonian-Laird (random-effects)
// weighting. Ratio measures are pooled on the log scale and reported
// exponentiated.
package pooling

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Pooling errors. Each aborts the pooling of one outcome.
var (
	ErrNoData            = errors.New("no effect records to pool")
	ErrNoVariance        = errors.New("no effect record carries usable variance")
	ErrIncompatibleTypes = errors.New("effect types do not share an analysis scale")
	ErrUnitMismatch      = errors.New("effect records report different units")
	ErrModelRequired     = errors.New("pooling model must be fixed or random")
	ErrTooFewStudies     = errors.New("fewer usable studies than the minimum")
)

// DefaultZ is the normal quantile for 95% confidence intervals.
const DefaultZ = 1.96

// Reasons recorded for effect records left out of pooling.
const (
	ReasonUnknownType     = "unknown effect type"
	ReasonNoEstimate      = "no effect estimate"
	ReasonInvertedCI      = "ci_low exceeds ci_high"
	ReasonOutsideCI       = "estimate outside confidence interval"
	ReasonNonPositive     = "ratio estimate or bound not positive"
	ReasonMissingVariance = "no standard error or confidence interval"
	ReasonZeroVariance    = "standard error not positive"
)

// Options controls one pooling run. Model has no default.
type Options struct {
	Model types.PoolingModel

	// Z is the normal quantile for intervals and for deriving standard
	// errors from intervals (default 1.96).
	Z float64

	// MinK is the minimum number of usable studies (default 1).
	MinK int

	RunID string
	Now   func() time.Time
}

// OptionsFromConfig maps pooling configuration onto run options.
func OptionsFromConfig(cfg types.PoolingConfig) Options {
	return Options{Model: cfg.Model, Z: cfg.Z, MinK: cfg.MinK}
}

func (o Options) z() float64 {
	if o.Z <= 0 || math.IsNaN(o.Z) {
		return DefaultZ
	}
	return o.Z
}

// Study is one usable effect on the analysis scale.
type Study struct {
	StudyID string
	Type    types.EffectType

	// Y and SE are on the analysis scale (log scale for ratios).
	Y  float64
	SE float64

	// Reported is the estimate as given, before any transformation.
	Reported float64
	Unit     string
}

// PoolError wraps a pooling failure with the outcome and the records that
// were set aside, so callers can report them.
type PoolError struct {
	Outcome  string
	Excluded []types.ExcludedEffect
	Err      error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("pooling %q: %v", e.Outcome, e.Err)
}

func (e *PoolError) Unwrap() error { return e.Err }

// Prepare moves records to the analysis scale and derives standard errors.
// Records that cannot be pooled are returned with the reason.
func Prepare(records []types.EffectRecord, z float64) ([]Study, []types.ExcludedEffect) {
	if z <= 0 || math.IsNaN(z) {
		z = DefaultZ
	}
	var (
		usable   []Study
		excluded []types.ExcludedEffect
	)
	for _, r := range records {
		s, reason := prepareOne(r, z)
		if reason != "" {
			excluded = append(excluded, types.ExcludedEffect{StudyID: r.StudyID, Outcome: r.Outcome, Reason: reason})
			continue
		}
		usable = append(usable, s)
	}
	return usable, excluded
}

func prepareOne(r types.EffectRecord, z float64) (Study, string) {
	typ, err := types.ParseEffectType(string(r.Type))
	if err != nil {
		return Study{}, ReasonUnknownType
	}
	if !finite(r.Estimate) {
		return Study{}, ReasonNoEstimate
	}

	hasCI := r.CILow != nil && r.CIHigh != nil && finite(*r.CILow) && finite(*r.CIHigh)
	if hasCI {
		lo, hi := *r.CILow, *r.CIHigh
		if lo > hi {
			return Study{}, ReasonInvertedCI
		}
		if r.Estimate < lo || r.Estimate > hi {
			return Study{}, ReasonOutsideCI
		}
	}

	s := Study{StudyID: r.StudyID, Type: typ, Y: r.Estimate, Reported: r.Estimate, Unit: strings.TrimSpace(r.Unit)}
	var lo, hi float64
	if hasCI {
		lo, hi = *r.CILow, *r.CIHigh
	}
	if typ.IsRatio() {
		if r.Estimate <= 0 || (hasCI && lo <= 0) {
			return Study{}, ReasonNonPositive
		}
		s.Y = math.Log(r.Estimate)
		if hasCI {
			lo, hi = math.Log(lo), math.Log(hi)
		}
	}

	switch {
	case r.StandardError != nil && finite(*r.StandardError):
		s.SE = *r.StandardError
	case hasCI:
		s.SE = (hi - lo) / (2 * z)
	default:
		return Study{}, ReasonMissingVariance
	}
	if !(s.SE > 0) {
		return Study{}, ReasonZeroVariance
	}
	return s, ""
}

// Pool combines the records of one outcome. Records must share an analysis
// scale and unit. With one usable study the result is that study and the
// heterogeneity statistics are nil.
func Pool(outcome string, records []types.EffectRecord, opts Options) (types.PooledResult, error) {
	fail := func(err error, excluded []types.ExcludedEffect) (types.PooledResult, error) {
		return types.PooledResult{}, &PoolError{Outcome: outcome, Excluded: excluded, Err: err}
	}

	model, err := types.ParsePoolingModel(string(opts.Model))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrModelRequired, err), nil)
	}
	if len(records) == 0 {
		return fail(ErrNoData, nil)
	}
	if scales := scalesOf(records); len(scales) > 1 {
		return fail(fmt.Errorf("%w: %s", ErrIncompatibleTypes, strings.Join(scales, ", ")), nil)
	}

	z := opts.z()
	studies, excluded := Prepare(records, z)
	if len(studies) == 0 {
		return fail(fmt.Errorf("%w (%d records excluded)", ErrNoVariance, len(excluded)), excluded)
	}

	unit, err := commonUnit(studies)
	if err != nil {
		return fail(err, excluded)
	}

	minK := opts.MinK
	if minK < 1 {
		minK = 1
	}
	if len(studies) < minK {
		return fail(fmt.Errorf("%w: %d < %d", ErrTooFewStudies, len(studies), minK), excluded)
	}

	est := Estimate(studies, model)

	reportType := reportingType(studies)
	res := types.PooledResult{
		Outcome:    outcome,
		EffectType: reportType,
		Model:      model,
		SE:         est.SE,
		K:          len(studies),
		DF:         len(studies) - 1,
		Unit:       unit,
		Excluded:   excluded,
		RunID:      opts.RunID,
		ComputedAt: now(opts),
	}

	center := est.Y
	lo, hi := center-z*est.SE, center+z*est.SE
	if reportType.IsRatio() {
		res.Estimate, res.CILow, res.CIHigh = math.Exp(center), math.Exp(lo), math.Exp(hi)
	} else {
		res.Estimate, res.CILow, res.CIHigh = center, lo, hi
	}
	if len(studies) == 1 {
		res.Estimate = studies[0].Reported
	} else {
		q, i2, tau2 := est.Q, est.I2, est.Tau2
		res.Q, res.I2, res.Tau2 = &q, &i2, &tau2
	}

	res.Studies = make([]types.StudyWeight, len(studies))
	for i, s := range studies {
		res.Studies[i] = types.StudyWeight{
			StudyID:  s.StudyID,
			Estimate: s.Y,
			SE:       s.SE,
			Weight:   est.Weights[i] / est.SumWeights * 100,
		}
	}
	return res, nil
}

// Result holds the analysis-scale outcome of Estimate.
type Result struct {
	// Y and SE describe the pooled estimate under the chosen model.
	Y  float64
	SE float64

	// Q, I2 (percent) and Tau2 are computed from the fixed-effect weights;
	// they are zero when k = 1.
	Q    float64
	I2   float64
	Tau2 float64

	// Weights are the per-study weights under the chosen model.
	Weights    []float64
	SumWeights float64
}

// Estimate runs the inverse-variance computation on prepared studies. The
// caller guarantees at least one study with positive SE.
func Estimate(studies []Study, model types.PoolingModel) Result {
	k := len(studies)
	w := make([]float64, k)
	var sumW, sumW2, sumWY float64
	for i, s := range studies {
		w[i] = 1 / (s.SE * s.SE)
		sumW += w[i]
		sumW2 += w[i] * w[i]
		sumWY += w[i] * s.Y
	}
	fixed := sumWY / sumW

	var r Result
	if k > 1 {
		for i, s := range studies {
			d := s.Y - fixed
			r.Q += w[i] * d * d
		}
		df := float64(k - 1)
		if r.Q > df {
			r.I2 = (r.Q - df) / r.Q * 100
		}
		if c := sumW - sumW2/sumW; c > 0 {
			r.Tau2 = math.Max(0, (r.Q-df)/c)
		}
	}

	if model == types.ModelRandom && r.Tau2 > 0 {
		var sumWs, sumWsY float64
		ws := make([]float64, k)
		for i, s := range studies {
			ws[i] = 1 / (s.SE*s.SE + r.Tau2)
			sumWs += ws[i]
			sumWsY += ws[i] * s.Y
		}
		r.Y, r.SE = sumWsY/sumWs, math.Sqrt(1/sumWs)
		r.Weights, r.SumWeights = ws, sumWs
		return r
	}

	r.Y, r.SE = fixed, math.Sqrt(1/sumW)
	r.Weights, r.SumWeights = w, sumW
	return r
}

// scalesOf returns the sorted distinct analysis scales of known types.
func scalesOf(records []types.EffectRecord) []string {
	set := make(map[string]bool)
	for _, r := range records {
		t, err := types.ParseEffectType(string(r.Type))
		if err != nil {
			continue
		}
		set[t.Scale()] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func commonUnit(studies []Study) (string, error) {
	var unit string
	for _, s := range studies {
		if s.Unit == "" {
			continue
		}
		if unit == "" {
			unit = s.Unit
			continue
		}
		if !strings.EqualFold(unit, s.Unit) {
			return "", fmt.Errorf("%w: %q and %q", ErrUnitMismatch, unit, s.Unit)
		}
	}
	return unit, nil
}

// reportingType is the ratio type when every study reported one ratio
// type, and the shared type otherwise. Mixed ratio and log inputs report
// on the log scale.
func reportingType(studies []Study) types.EffectType {
	first := studies[0].Type
	for _, s := range studies[1:] {
		if s.Type != first {
			return logTypeOf(first)
		}
	}
	return first
}

func logTypeOf(t types.EffectType) types.EffectType {
	switch t {
	case types.EffectOR:
		return types.EffectLogOR
	case types.EffectRR:
		return types.EffectLogRR
	case types.EffectHR:
		return types.EffectLogHR
	default:
		return t
	}
}

func now(opts Options) time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now().UTC()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
