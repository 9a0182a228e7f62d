// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func testClassifier() *Classifier {
	return New(types.Protocol{
		Taxonomy: types.Taxonomy{DataTypes: map[string][]string{
			"glycaemic": {"HbA1c", "fasting glucose"},
			"lipids":    {"LDL", "triglycerides"},
			"empty":     {""},
			"anthropo":  {"BMI"},
		}},
	})
}

func TestClassify_ArticleTypePriority(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"systematic review beats protocol", "A systematic review protocol", ArticleSystematicReview},
		{"meta-analysis", "Resveratrol: a meta-analysis of trials", ArticleSystematicReview},
		{"protocol beats case report", "Study protocol for a case report series", ArticleProtocol},
		{"case report", "Lactic acidosis: a case report", ArticleCaseReport},
		{"default original research", "Resveratrol improves HbA1c", ArticleOriginalResearch},
	}
	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Classify(types.Citation{ID: "x", Title: tt.title})
			assert.Equal(t, tt.want, rec.ArticleType)
		})
	}
}

func TestClassify_RandomizedTrial(t *testing.T) {
	c := testClassifier()
	rec := c.Classify(types.Citation{
		ID:       "PMID1",
		Title:    "Resveratrol improves HbA1c: a randomized controlled trial",
		Abstract: "Adults with type 2 diabetes received resveratrol or placebo. LDL was unchanged.",
	})

	assert.Equal(t, "PMID1", rec.CitationID)
	assert.NotEqual(t, ArticleSystematicReview, rec.ArticleType)
	assert.Equal(t, ArticleOriginalResearch, rec.ArticleType)
	assert.Equal(t, DesignRCT, rec.StudyDesign)
	assert.Equal(t, []string{SpeciesHuman}, rec.Species)
	assert.Equal(t, []string{"glycaemic", "lipids"}, rec.DataTypes)
	// design + human + two data types
	assert.InDelta(t, 0.25+0.15*4, rec.Confidence, 1e-12)
}

func TestClassify_Defaults(t *testing.T) {
	rec := (&Classifier{}).Classify(types.Citation{ID: "x", Title: "Notes on something"})
	assert.Equal(t, ArticleOriginalResearch, rec.ArticleType)
	assert.Empty(t, rec.StudyDesign)
	assert.Equal(t, []string{SpeciesHuman}, rec.Species)
	assert.Empty(t, rec.DataTypes)
	assert.InDelta(t, confidenceFloor, rec.Confidence, 1e-12)
}

func TestClassify_SpeciesSet(t *testing.T) {
	rec := testClassifier().Classify(types.Citation{
		ID:       "x",
		Abstract: "Findings in mice and rats were compared with patients.",
	})
	assert.Equal(t, []string{SpeciesHuman, SpeciesMouse, SpeciesRat}, rec.Species)
}

func TestConfidence_MonotonicAndCapped(t *testing.T) {
	prev := -1.0
	for n := 0; n < 10; n++ {
		c := confidence(n)
		assert.GreaterOrEqual(t, c, prev)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}
	assert.Equal(t, 1.0, confidence(20))
}

func TestClassify_Deterministic(t *testing.T) {
	c := testClassifier()
	cit := types.Citation{ID: "x", Title: "Cohort of adults", Abstract: "BMI and HbA1c"}
	assert.Equal(t, c.Classify(cit), c.Classify(cit))
}

func TestDesignPattern(t *testing.T) {
	match, ok := DesignPattern("rct")
	require.True(t, ok)
	assert.True(t, match("Participants were randomised"))
	assert.False(t, match("A prospective cohort"))

	_, ok = DesignPattern("Ecological")
	assert.False(t, ok)
}

func TestArticleTypeAndSpecies(t *testing.T) {
	assert.Equal(t, ArticleSystematicReview, ArticleType("A meta-analysis of trials"))
	assert.Equal(t, ArticleOriginalResearch, ArticleType("Adults were randomized"))
	assert.Equal(t, []string{SpeciesHuman}, Species("no species named"))
	assert.Equal(t, []string{SpeciesMouse}, Species("diabetic mice"))
}

func TestExcluded(t *testing.T) {
	all := types.Exclusions{Reviews: true, Animal: true, InVitro: true, CaseReports: true}
	tests := []struct {
		name    string
		ex      types.Exclusions
		article string
		species []string
		text    string
		want    []string
	}{
		{"nothing set", types.Exclusions{}, ArticleSystematicReview, []string{SpeciesMouse}, "in vitro", nil},
		{"review", all, ArticleSystematicReview, []string{SpeciesHuman}, "", []string{RuleExcludedReview}},
		{"case report", all, ArticleCaseReport, []string{SpeciesHuman}, "", []string{RuleExcludedCaseReport}},
		{"animal only", all, ArticleOriginalResearch, []string{SpeciesRat}, "", []string{RuleExcludedAnimal}},
		{"animal with humans", all, ArticleOriginalResearch, []string{SpeciesHuman, SpeciesMouse}, "", nil},
		{"in vitro", all, ArticleOriginalResearch, []string{SpeciesHuman}, "Cells were cultured for 24 h.", []string{RuleExcludedInVitro}},
		{"ordered", all, ArticleSystematicReview, []string{SpeciesMouse}, "in-vitro assays", []string{RuleExcludedReview, RuleExcludedAnimal, RuleExcludedInVitro}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded(tt.ex, tt.article, tt.species, tt.text))
		})
	}
}
