// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage identifies the screening stage that produced a decision.
type Stage string

const (
	StageTitleAbstract Stage = "title_abstract"
	StageFullText      Stage = "full_text"
)

// Decision is the outcome of one screening stage for one citation.
type Decision string

const (
	DecisionInclude Decision = "include"
	DecisionMaybe   Decision = "maybe"
	DecisionExclude Decision = "exclude"
)

// Passes reports whether the decision forwards the citation to full-text screening.
func (d Decision) Passes() bool {
	return d == DecisionInclude || d == DecisionMaybe
}

// Reason is the enum token explaining a decision.
type Reason string

const (
	ReasonNegativeRule        Reason = "negative_rule"
	ReasonMLHigh              Reason = "ml_high"
	ReasonMLMid               Reason = "ml_mid"
	ReasonMLLow               Reason = "ml_low"
	ReasonYearOutOfRange      Reason = "year_out_of_range"
	ReasonFulltextUnavailable Reason = "fulltext_unavailable"
	ReasonFTScoreHigh         Reason = "ft_score_high"
	ReasonHumanReview         Reason = "human_review"
	ReasonFTScoreLow          Reason = "ft_score_low"
)

// EligibilityChecks records the individual PICO checks behind a full-text score.
type EligibilityChecks struct {
	DesignOK     bool `json:"design_ok" yaml:"design_ok"`
	PopulationOK bool `json:"population_ok" yaml:"population_ok"`
	OutcomesOK   bool `json:"outcomes_ok" yaml:"outcomes_ok"`
}

// DecisionRecord is one append-only entry in a screening decision log.
// A citation has at most one record per stage.
type DecisionRecord struct {
	CitationID string   `json:"id" yaml:"id"`
	Stage      Stage    `json:"stage" yaml:"stage"`
	Decision   Decision `json:"decision" yaml:"decision"`
	Reason     Reason   `json:"reason" yaml:"reason"`

	// Score is the relevance score (title/abstract) or eligibility score (full text).
	Score float64 `json:"score" yaml:"score"`

	// Threshold is the inclusion threshold in force when the decision was made.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Rules lists the rule identifiers that fired.
	Rules []string `json:"rules,omitempty" yaml:"rules,omitempty"`

	// HumanReview flags borderline full-text exclusions for a reviewer.
	HumanReview bool `json:"human_review,omitempty" yaml:"human_review,omitempty"`

	Checks *EligibilityChecks `json:"checks,omitempty" yaml:"checks,omitempty"`

	// RunID groups the records written by one screening run.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`

	Timestamp time.Time `json:"ts" yaml:"ts"`
}

// ClassificationRecord holds the taxonomy labels assigned to a citation
// alongside its title/abstract decision.
type ClassificationRecord struct {
	CitationID  string   `json:"id" yaml:"id"`
	ArticleType string   `json:"article_type" yaml:"article_type"`
	StudyDesign string   `json:"study_design,omitempty" yaml:"study_design,omitempty"`
	Species     []string `json:"species" yaml:"species"`
	DataTypes   []string `json:"data_type" yaml:"data_type"`

	// Confidence is in [0,1] and grows with the number of matched signals.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// PrismaCounters summarises the study-selection flow. It is always derived
// from the decision log and never updated incrementally.
type PrismaCounters struct {
	Screened         int `json:"screened" yaml:"screened"`
	TAExcluded       int `json:"ta_excluded" yaml:"ta_excluded"`
	FulltextAssessed int `json:"fulltext_assessed" yaml:"fulltext_assessed"`
	FulltextExcluded int `json:"fulltext_excluded" yaml:"fulltext_excluded"`
	Included         int `json:"included" yaml:"included"`

	// AwaitingFulltext counts citations passed at title/abstract that have no
	// full-text decision yet.
	AwaitingFulltext int `json:"awaiting_fulltext" yaml:"awaiting_fulltext"`

	// HumanReview counts full-text exclusions flagged for a reviewer.
	HumanReview int `json:"human_review" yaml:"human_review"`

	Reasons   map[Reason]int `json:"reasons" yaml:"reasons"`
	TAReasons map[Reason]int `json:"ta_exclusion_reasons" yaml:"ta_exclusion_reasons"`
	FTReasons map[Reason]int `json:"ft_exclusion_reasons" yaml:"ft_exclusion_reasons"`
}
