// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Citation is a bibliographic record handed over by the search and
// deduplication stage. Citations are immutable once ingested.
type Citation struct {
	// ID is the unique external accession (e.g. a PMID or DOI).
	ID string `json:"id" yaml:"id"`

	Title    string `json:"title" yaml:"title"`
	Abstract string `json:"abstract" yaml:"abstract"`

	// Year is the publication year; zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal string   `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Language is the publication language as given by the source
	// (e.g. "en", "English"); empty when unknown.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Source names the database the citation came from (e.g. "pubmed").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Text returns the title and abstract joined for pattern matching and scoring.
func (c Citation) Text() string {
	return c.Title + "\n" + c.Abstract
}

// Validate reports a RecordError when required fields are missing.
func (c Citation) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &RecordError{ID: c.Title, Field: "id", Message: "missing citation identifier"}
	}
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Abstract) == "" {
		return &RecordError{ID: c.ID, Field: "title", Message: "citation has neither title nor abstract"}
	}
	return nil
}

// PICO is the structured research question of a review protocol.
type PICO struct {
	Population string `json:"population" yaml:"population"`

	// PopulationPatterns are optional regular expressions that replace the
	// literal population phrase during full-text eligibility checks.
	PopulationPatterns []string `json:"population_patterns,omitempty" yaml:"population_patterns,omitempty"`

	Intervention string `json:"intervention" yaml:"intervention"`
	Comparison   string `json:"comparison" yaml:"comparison"`

	// Outcomes is the ordered list of outcome names searched for in results text.
	Outcomes []string `json:"outcomes" yaml:"outcomes"`
}

// Exclusions holds the protocol's inclusion and exclusion flags. The
// category flags exclude systematic reviews, animal-only studies, in vitro
// work and case reports; a matching citation carries an excl_* rule id
// and fails the full-text design check.
type Exclusions struct {
	Reviews     bool `json:"reviews" yaml:"reviews"`
	Animal      bool `json:"animal" yaml:"animal"`
	InVitro     bool `json:"in_vitro" yaml:"in_vitro"`
	CaseReports bool `json:"case_reports" yaml:"case_reports"`

	// Languages lists accepted publication languages; empty accepts all.
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// YearFrom and YearTo bound publication years; zero disables a bound.
	YearFrom int `json:"year_from,omitempty" yaml:"year_from,omitempty"`
	YearTo   int `json:"year_to,omitempty" yaml:"year_to,omitempty"`
}

// YearAllowed reports whether a publication year satisfies the bounds.
// Unknown years (zero) always pass.
func (e Exclusions) YearAllowed(year int) bool {
	if year == 0 {
		return true
	}
	if e.YearFrom > 0 && year < e.YearFrom {
		return false
	}
	if e.YearTo > 0 && year > e.YearTo {
		return false
	}
	return true
}

// LanguageAllowed reports whether a publication language is accepted,
// compared case-insensitively. Unknown languages always pass.
func (e Exclusions) LanguageAllowed(lang string) bool {
	lang = strings.TrimSpace(lang)
	if lang == "" || len(e.Languages) == 0 {
		return true
	}
	for _, l := range e.Languages {
		if strings.EqualFold(strings.TrimSpace(l), lang) {
			return true
		}
	}
	return false
}

// Taxonomy maps data-type buckets to the keywords that signal them.
type Taxonomy struct {
	DataTypes map[string][]string `json:"data_types" yaml:"data_types"`
}

// Protocol is the review protocol: PICO, accepted designs, flags, and taxonomy.
// It is created once per review and read-only during screening.
type Protocol struct {
	ID    string `json:"protocol_id" yaml:"protocol_id"`
	Title string `json:"title" yaml:"title"`

	// Topic selects the rule pack used at title/abstract screening.
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty"`

	PICO PICO `json:"pico" yaml:"pico"`

	// Designs is the set of accepted study designs (e.g. "RCT", "Cohort").
	Designs []string `json:"designs" yaml:"designs"`

	Exclusions Exclusions `json:"exclusions" yaml:"exclusions"`
	Taxonomy   Taxonomy   `json:"taxonomy" yaml:"taxonomy"`
}

// AcceptsDesign reports whether design is in the accepted-design set,
// compared case-insensitively.
func (p Protocol) AcceptsDesign(design string) bool {
	design = strings.TrimSpace(design)
	if design == "" {
		return false
	}
	for _, d := range p.Designs {
		if strings.EqualFold(d, design) {
			return true
		}
	}
	return false
}

// Validate checks the protocol for missing identifiers and malformed patterns.
func (p Protocol) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &RecordError{Field: "protocol_id", Message: "missing protocol identifier"}
	}
	for _, pat := range p.PICO.PopulationPatterns {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			return &RecordError{ID: p.ID, Field: "pico.population_patterns", Value: pat, Message: err.Error()}
		}
	}
	if p.Exclusions.YearFrom > 0 && p.Exclusions.YearTo > 0 && p.Exclusions.YearFrom > p.Exclusions.YearTo {
		return &RecordError{
			ID: p.ID, Field: "exclusions.year_from",
			Value:   fmt.Sprintf("%d>%d", p.Exclusions.YearFrom, p.Exclusions.YearTo),
			Message: "year_from is after year_to",
		}
	}
	return nil
}

// RecordError describes a single malformed input record. Batches collect
// these and keep processing the remaining records.
type RecordError struct {
	// ID identifies the offending record (citation, study, or line).
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message" yaml:"message"`
}

func (e *RecordError) Error() string {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString(e.ID)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		if e.Value != "" {
			fmt.Fprintf(&b, "=%q", e.Value)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}
