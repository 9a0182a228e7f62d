// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scorer estimates the topical relevance of citation text.
// Scorers are pure: identical text and configuration give identical scores,
// always within [0,1].
package scorer

import (
	"fmt"
	"regexp"
)

// Scorer maps citation text (title and abstract) to a relevance score in [0,1].
// Implementations must be deterministic and safe for concurrent use.
type Scorer interface {
	Score(text string) float64
}

// Kind names a scorer variant for configuration.
type Kind string

const (
	KindHeuristic Kind = "heuristic"
	KindLogistic  Kind = "logistic"
)

// New returns the scorer variant for kind. The logistic variant loads its
// weights from modelPath.
func New(kind Kind, modelPath string) (Scorer, error) {
	switch kind {
	case KindHeuristic, "":
		return DefaultHeuristic(), nil
	case KindLogistic:
		if modelPath == "" {
			return nil, fmt.Errorf("logistic scorer requires a model file")
		}
		return LoadLogistic(modelPath)
	default:
		return nil, fmt.Errorf("unknown scorer %q: use heuristic or logistic", kind)
	}
}

// Heuristic scores text from design language and length. It is the
// fallback used when no trained model is available.
type Heuristic struct {
	// Base is the starting score.
	Base float64

	// DesignBonus is added when DesignPattern matches.
	DesignBonus   float64
	DesignPattern *regexp.Regexp

	// LengthBonus is added when the text is longer than MinLength bytes.
	LengthBonus float64
	MinLength   int
}

// DefaultHeuristic returns the heuristic with its standard parameters.
func DefaultHeuristic() *Heuristic {
	return &Heuristic{
		Base:          0.5,
		DesignBonus:   0.2,
		DesignPattern: regexp.MustCompile(`(?i)randomi[sz]ed|trial|placebo`),
		LengthBonus:   0.2,
		MinLength:     200,
	}
}

// Score implements Scorer.
func (h *Heuristic) Score(text string) float64 {
	s := h.Base
	if h.DesignPattern != nil && h.DesignPattern.MatchString(text) {
		s += h.DesignBonus
	}
	if len(text) > h.MinLength {
		s += h.LengthBonus
	}
	return clamp(s)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
