// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package taxonomy assigns categorical labels (article type, study design,
// species, data type) to citations by ordered pattern matching.
package taxonomy

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Article type labels, in priority order.
const (
	ArticleSystematicReview = "Systematic review"
	ArticleProtocol         = "Protocol"
	ArticleCaseReport       = "Case report"
	ArticleOriginalResearch = "Original research"
)

// Study design labels, matching the protocol's accepted-design vocabulary.
const (
	DesignRCT           = "RCT"
	DesignCohort        = "Cohort"
	DesignCaseControl   = "CaseControl"
	DesignObservational = "Observational"
)

// Species labels.
const (
	SpeciesHuman = "Homo sapiens"
	SpeciesMouse = "Mus musculus"
	SpeciesRat   = "Rattus norvegicus"
)

type signature struct {
	label    string
	patterns []*regexp.Regexp
}

func sig(label string, exprs ...string) signature {
	s := signature{label: label}
	for _, e := range exprs {
		s.patterns = append(s.patterns, regexp.MustCompile("(?i)"+e))
	}
	return s
}

func (s signature) matches(text string) bool {
	for _, p := range s.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// articleTypes is tested in order; the first match wins. Original research
// is the fallback and has no signature.
var articleTypes = []signature{
	sig(ArticleSystematicReview, `systematic review`, `meta-?analys[ie]s`),
	sig(ArticleProtocol, `\bprotocol\b`),
	sig(ArticleCaseReport, `case report`),
}

var studyDesigns = []signature{
	sig(DesignRCT, `randomi[sz]ed`, `double-?blind`, `placebo`, `parallel`, `crossover`),
	sig(DesignCohort, `cohort`, `prospective`, `retrospective`),
	sig(DesignCaseControl, `case-?control`),
	sig(DesignObservational, `observational`, `cross-?sectional`),
}

var speciesVocabulary = []signature{
	sig(SpeciesHuman, `\b(humans?|participants|patients|men|women|adults|volunteers)\b`),
	sig(SpeciesMouse, `\b(mouse|mice|murine)\b`),
	sig(SpeciesRat, `\brats?\b`),
}

// inVitro marks laboratory work without participants or animals.
var inVitro = sig("in vitro", `\bin[ -]vitro\b`, `\bcell lines?\b`, `\bcultured (cells|cell)\b`, `\bcells were cultured\b`)

// Rule ids recorded when a protocol exclusion flag matches.
const (
	RuleExcludedReview     = "excl_review"
	RuleExcludedCaseReport = "excl_case_report"
	RuleExcludedAnimal     = "excl_animal"
	RuleExcludedInVitro    = "excl_in_vitro"
	RuleExcludedLanguage   = "excl_language"
)

// ArticleType returns the first matching article type, or original research.
func ArticleType(text string) string {
	for _, a := range articleTypes {
		if a.matches(text) {
			return a.label
		}
	}
	return ArticleOriginalResearch
}

// Species returns the species named in text, or humans when none is.
func Species(text string) []string {
	var out []string
	for _, s := range speciesVocabulary {
		if s.matches(text) {
			out = append(out, s.label)
		}
	}
	if len(out) == 0 {
		return []string{SpeciesHuman}
	}
	return out
}

// Excluded returns the rule ids of the exclusion flags triggered by an
// article type, a species set and text, in a fixed order. Animal work is
// excluded only when no human participants are named.
func Excluded(ex types.Exclusions, articleType string, species []string, text string) []string {
	var ids []string
	if ex.Reviews && articleType == ArticleSystematicReview {
		ids = append(ids, RuleExcludedReview)
	}
	if ex.CaseReports && articleType == ArticleCaseReport {
		ids = append(ids, RuleExcludedCaseReport)
	}
	if ex.Animal && len(species) > 0 && !slices.Contains(species, SpeciesHuman) {
		ids = append(ids, RuleExcludedAnimal)
	}
	if ex.InVitro && inVitro.matches(text) {
		ids = append(ids, RuleExcludedInVitro)
	}
	return ids
}

// DesignPattern returns the study-design signature for an accepted-design
// label, compared case-insensitively.
func DesignPattern(design string) (func(string) bool, bool) {
	for _, d := range studyDesigns {
		if strings.EqualFold(d.label, design) {
			return d.matches, true
		}
	}
	return nil, false
}

// Confidence parameters: a floor plus a fixed increment per matched
// signal, capped at one.
const (
	confidenceFloor = 0.25
	confidenceStep  = 0.15
)

// Classifier labels citations. The zero value is ready to use.
type Classifier struct {
	// Taxonomy supplies the data-type buckets.
	Taxonomy types.Taxonomy
}

// New returns a classifier using the protocol's taxonomy.
func New(protocol types.Protocol) *Classifier {
	return &Classifier{Taxonomy: protocol.Taxonomy}
}

// Classify labels a citation. It is a pure function of the citation and taxonomy.
func (c *Classifier) Classify(cit types.Citation) types.ClassificationRecord {
	text := cit.Text()
	rec := types.ClassificationRecord{
		CitationID:  cit.ID,
		ArticleType: ArticleOriginalResearch,
		Species:     []string{SpeciesHuman},
		DataTypes:   []string{},
	}
	signals := 0

	for _, a := range articleTypes {
		if a.matches(text) {
			rec.ArticleType = a.label
			signals++
			break
		}
	}

	for _, d := range studyDesigns {
		if d.matches(text) {
			rec.StudyDesign = d.label
			signals++
			break
		}
	}

	var species []string
	for _, s := range speciesVocabulary {
		if s.matches(text) {
			species = append(species, s.label)
			signals++
		}
	}
	if len(species) > 0 {
		rec.Species = species
	}

	rec.DataTypes = c.dataTypes(text)
	signals += len(rec.DataTypes)

	rec.Confidence = confidence(signals)
	return rec
}

// dataTypes returns the sorted taxonomy buckets with at least one keyword
// present in text.
func (c *Classifier) dataTypes(text string) []string {
	lower := strings.ToLower(text)
	hits := []string{}
	for bucket, keywords := range c.Taxonomy.DataTypes {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hits = append(hits, bucket)
				break
			}
		}
	}
	sort.Strings(hits)
	return hits
}

func confidence(signals int) float64 {
	v := confidenceFloor + confidenceStep*float64(signals)
	if v > 1 {
		return 1
	}
	return v
}
