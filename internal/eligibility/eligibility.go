// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package eligibility scores full text against a protocol's PICO: design,
// population and outcome checks combined into a weighted score.
package eligibility

import (
	"regexp"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/fulltext"
	"github.com/pdiddy/evidence-engine/internal/taxonomy"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Assessment is the outcome of the three checks and their weighted sum.
type Assessment struct {
	Checks types.EligibilityChecks
	Score  float64

	// Excluded holds the rule ids of the protocol exclusions the text
	// matched. Any match fails the design check.
	Excluded []string
}

// Evaluate scores available full text. The caller handles the unavailable
// case before calling; Evaluate on unavailable text returns a zero score.
func Evaluate(protocol types.Protocol, ft types.FullText, w types.EligibilityWeights) Assessment {
	if !ft.Available() {
		return Assessment{}
	}

	abstract := ft.Section(fulltext.SectionAbstract)
	methods := ft.Section(fulltext.SectionMethods)
	results := ft.Section(fulltext.SectionResults)
	excluded := Exclusions(protocol.Exclusions, ft.Metadata, abstract, methods)

	checks := types.EligibilityChecks{
		DesignOK:     len(excluded) == 0 && DesignOK(protocol, ft.Metadata, methods),
		PopulationOK: PopulationOK(protocol.PICO, methods+"\n"+results),
		OutcomesOK:   OutcomesOK(protocol.PICO.Outcomes, results+"\n"+abstract),
	}
	return Assessment{Checks: checks, Score: Score(checks, w), Excluded: excluded}
}

// Score returns the weighted sum of the passing checks.
func Score(c types.EligibilityChecks, w types.EligibilityWeights) float64 {
	var s float64
	if c.DesignOK {
		s += w.Design
	}
	if c.PopulationOK {
		s += w.Population
	}
	if c.OutcomesOK {
		s += w.Outcomes
	}
	return s
}

// DesignOK is true when the metadata names an accepted design, or the
// methods text matches the signature of any accepted design.
func DesignOK(protocol types.Protocol, meta types.StudyMetadata, methods string) bool {
	if protocol.AcceptsDesign(meta.StudyDesign) {
		return true
	}
	if methods == "" {
		return false
	}
	for _, d := range protocol.Designs {
		if match, ok := taxonomy.DesignPattern(d); ok && match(methods) {
			return true
		}
	}
	return false
}

// Exclusions returns the excl_* rule ids the study triggers. Article type
// and in-vitro work are read from the declared design and abstract; species
// also looks at the methods.
func Exclusions(ex types.Exclusions, meta types.StudyMetadata, abstract, methods string) []string {
	head := meta.StudyDesign + "\n" + abstract
	body := head + "\n" + methods
	return taxonomy.Excluded(ex, taxonomy.ArticleType(head), taxonomy.Species(body), head)
}

// PopulationOK matches the population patterns, or the population phrase
// when no patterns are given. A protocol without a population passes.
func PopulationOK(pico types.PICO, text string) bool {
	if len(pico.PopulationPatterns) > 0 {
		for _, p := range pico.PopulationPatterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				// Protocol.Validate rejects these before screening.
				continue
			}
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
	phrase := strings.TrimSpace(pico.Population)
	if phrase == "" {
		return true
	}
	return containsFold(text, phrase)
}

// OutcomesOK is true when any outcome name appears in text. An empty
// outcome list passes.
func OutcomesOK(outcomes []string, text string) bool {
	named := false
	for _, o := range outcomes {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		named = true
		if containsFold(text, o) {
			return true
		}
	}
	return !named
}

func containsFold(text, phrase string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}
