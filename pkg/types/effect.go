// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// EffectType is the effect measure reported by a study.
type EffectType string

const (
	EffectOR    EffectType = "OR"
	EffectRR    EffectType = "RR"
	EffectHR    EffectType = "HR"
	EffectMD    EffectType = "MD"
	EffectSMD   EffectType = "SMD"
	EffectLogOR EffectType = "logOR"
	EffectLogRR EffectType = "logRR"
	EffectLogHR EffectType = "logHR"
)

// effectAliases maps normalised spellings to effect types.
var effectAliases = map[string]EffectType{
	"OR":                           EffectOR,
	"ODDS RATIO":                   EffectOR,
	"RR":                           EffectRR,
	"RISK RATIO":                   EffectRR,
	"RELATIVE RISK":                EffectRR,
	"HR":                           EffectHR,
	"HAZARD RATIO":                 EffectHR,
	"MD":                           EffectMD,
	"MEAN_DIFF":                    EffectMD,
	"MEAN DIFFERENCE":              EffectMD,
	"SMD":                          EffectSMD,
	"STANDARDIZED MEAN DIFFERENCE": EffectSMD,
	"HEDGES G":                     EffectSMD,
	"HEDGE'S G":                    EffectSMD,
	"COHEN D":                      EffectSMD,
	"COHEN'S D":                    EffectSMD,
	"LOGOR":                        EffectLogOR,
	"LOG(OR)":                      EffectLogOR,
	"LOGRR":                        EffectLogRR,
	"LOG(RR)":                      EffectLogRR,
	"LOGHR":                        EffectLogHR,
	"LOG(HR)":                      EffectLogHR,
}

// ParseEffectType normalises an effect-type spelling from an extraction record.
func ParseEffectType(s string) (EffectType, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if t, ok := effectAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown effect type %q", s)
}

// IsRatio reports whether the measure is a ratio pooled on the log scale
// and back-transformed by exponentiation.
func (t EffectType) IsRatio() bool {
	return t == EffectOR || t == EffectRR || t == EffectHR
}

// Scale returns the analysis-scale family shared by compatible types.
// OR and logOR share "log-odds"; MD and SMD stay separate.
func (t EffectType) Scale() string {
	switch t {
	case EffectOR, EffectLogOR:
		return "log-odds"
	case EffectRR, EffectLogRR:
		return "log-risk"
	case EffectHR, EffectLogHR:
		return "log-hazard"
	case EffectMD:
		return "mean-difference"
	case EffectSMD:
		return "standardized-mean-difference"
	default:
		return string(t)
	}
}

// EffectRecord is one per-study effect estimate for one outcome, as produced
// by the data-extraction stage.
type EffectRecord struct {
	StudyID  string     `json:"study_id" yaml:"study_id"`
	Outcome  string     `json:"outcome" yaml:"outcome"`
	Type     EffectType `json:"effect_type" yaml:"effect_type"`
	Estimate float64    `json:"point_estimate" yaml:"point_estimate"`

	CILow  *float64 `json:"ci_low,omitempty" yaml:"ci_low,omitempty"`
	CIHigh *float64 `json:"ci_high,omitempty" yaml:"ci_high,omitempty"`

	// StandardError is on the analysis scale (log scale for ratio measures).
	StandardError *float64 `json:"standard_error,omitempty" yaml:"standard_error,omitempty"`

	SampleSize     *int     `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`
	Unit           string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	TimepointWeeks *float64 `json:"timepoint_weeks,omitempty" yaml:"timepoint_weeks,omitempty"`
}

// PoolingModel selects fixed-effect or random-effects pooling.
type PoolingModel string

const (
	ModelFixed  PoolingModel = "fixed"
	ModelRandom PoolingModel = "random"
)

// ParsePoolingModel validates a model name.
func ParsePoolingModel(s string) (PoolingModel, error) {
	switch m := PoolingModel(strings.ToLower(strings.TrimSpace(s))); m {
	case ModelFixed, ModelRandom:
		return m, nil
	default:
		return "", fmt.Errorf("unknown pooling model %q: use fixed or random", s)
	}
}

// StudyWeight reports one study's contribution to a pooled estimate.
type StudyWeight struct {
	StudyID string `json:"study_id" yaml:"study_id"`

	// Estimate and SE are on the analysis scale.
	Estimate float64 `json:"estimate" yaml:"estimate"`
	SE       float64 `json:"se" yaml:"se"`

	// Weight is the study's share of the total weight, in percent.
	Weight float64 `json:"weight" yaml:"weight"`
}

// ExcludedEffect is an effect record kept for audit but left out of pooling.
type ExcludedEffect struct {
	StudyID string `json:"study_id" yaml:"study_id"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Reason  string `json:"reason" yaml:"reason"`
}

// PooledResult is the synthesis of one outcome. It is recomputed from the
// effect records on every run.
type PooledResult struct {
	Outcome    string       `json:"outcome" yaml:"outcome"`
	EffectType EffectType   `json:"effect_type" yaml:"effect_type"`
	Model      PoolingModel `json:"model" yaml:"model"`

	// Estimate, CILow and CIHigh are on the reporting scale (exponentiated
	// for ratio measures).
	Estimate float64 `json:"pooled_estimate" yaml:"pooled_estimate"`
	CILow    float64 `json:"ci_low" yaml:"ci_low"`
	CIHigh   float64 `json:"ci_high" yaml:"ci_high"`

	// SE is the standard error of the pooled estimate on the analysis scale.
	SE float64 `json:"se" yaml:"se"`

	K  int `json:"k" yaml:"k"`
	DF int `json:"df" yaml:"df"`

	// Heterogeneity statistics are nil when fewer than two studies were pooled.
	Q    *float64 `json:"q" yaml:"q"`
	I2   *float64 `json:"i2" yaml:"i2"`
	Tau2 *float64 `json:"tau2" yaml:"tau2"`

	Unit     string           `json:"unit,omitempty" yaml:"unit,omitempty"`
	Studies  []StudyWeight    `json:"studies" yaml:"studies"`
	Excluded []ExcludedEffect `json:"excluded,omitempty" yaml:"excluded,omitempty"`

	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ComputedAt time.Time `json:"computed_at" yaml:"computed_at"`
}
