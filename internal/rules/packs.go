// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

// Shared exclusion signals: non-human models and secondary literature.
var (
	animalPatterns = []Pattern{
		{ID: "neg:animal", Expr: `\b(mouse|mice|rats?|murine)\b`},
		{ID: "neg:in_vitro", Expr: `in\s?vitro|cell\s?lines?`},
	}
	secondaryPattern = Pattern{ID: "neg:secondary", Expr: `\breview\b|editorial|commentary|protocol`}
)

var builtinPacks = []PackSpec{
	{
		Topic: "resveratrol_t2d",
		Positive: []Pattern{
			{ID: "pos:resveratrol", Expr: `resveratrol|trans-?resveratrol|SRT501`},
			{ID: "pos:t2d", Expr: `type\s?2\s?diabetes|\bT2D\b|Diabetes Mellitus, Type 2`},
			{ID: "pos:glycaemic", Expr: `HbA1c|glycated hemoglobin|\bFPG\b|fasting plasma glucose|HOMA-?IR`},
		},
		Negative: append(append([]Pattern{}, animalPatterns...), secondaryPattern),
		Design: []Pattern{
			{ID: "design:randomized", Expr: `randomi[sz]ed`},
			{ID: "design:blinded", Expr: `double-?blind`},
			{ID: "design:placebo", Expr: `placebo`},
			{ID: "design:trial", Expr: `trial`},
			{ID: "design:arms", Expr: `parallel|crossover`},
		},
	},
	{
		Topic: "metformin_cancer",
		Positive: []Pattern{
			{ID: "pos:metformin", Expr: `metformin|biguanide`},
			{ID: "pos:cancer", Expr: `cancer|neoplasm|incidence|hazard ratio|odds ratio|rate ratio`},
		},
		Negative: append(append([]Pattern{}, animalPatterns...),
			Pattern{ID: "neg:secondary", Expr: `\breview\b|editorial|protocol`}),
		Design: []Pattern{
			{ID: "design:observational", Expr: `cohort|case-?control|observational|prospective|retrospective`},
			{ID: "design:trial", Expr: `randomi[sz]ed|trial`},
		},
	},
}
