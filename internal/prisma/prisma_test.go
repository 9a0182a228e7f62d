// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prisma

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func ta(id string, d types.Decision, r types.Reason) types.DecisionRecord {
	return types.DecisionRecord{CitationID: id, Stage: types.StageTitleAbstract, Decision: d, Reason: r, Timestamp: t0}
}

func ft(id string, d types.Decision, r types.Reason) types.DecisionRecord {
	return types.DecisionRecord{
		CitationID: id, Stage: types.StageFullText, Decision: d, Reason: r,
		HumanReview: r == types.ReasonHumanReview, Timestamp: t0.Add(time.Hour),
	}
}

func fixture() []types.DecisionRecord {
	return []types.DecisionRecord{
		ta("A", types.DecisionInclude, types.ReasonMLHigh),
		ta("B", types.DecisionMaybe, types.ReasonMLMid),
		ta("C", types.DecisionExclude, types.ReasonNegativeRule),
		ta("D", types.DecisionExclude, types.ReasonMLLow),
		ta("E", types.DecisionInclude, types.ReasonMLHigh),
		ta("F", types.DecisionMaybe, types.ReasonMLMid),
		ft("A", types.DecisionInclude, types.ReasonFTScoreHigh),
		ft("B", types.DecisionExclude, types.ReasonHumanReview),
		ft("E", types.DecisionExclude, types.ReasonFulltextUnavailable),
	}
}

func TestCount(t *testing.T) {
	got := Count(fixture())
	assert.Equal(t, types.PrismaCounters{
		Screened:         6,
		TAExcluded:       2,
		FulltextAssessed: 3,
		FulltextExcluded: 2,
		Included:         1,
		AwaitingFulltext: 1,
		HumanReview:      1,
		Reasons: map[types.Reason]int{
			types.ReasonNegativeRule:        1,
			types.ReasonMLLow:               1,
			types.ReasonHumanReview:         1,
			types.ReasonFulltextUnavailable: 1,
		},
		TAReasons: map[types.Reason]int{
			types.ReasonNegativeRule: 1,
			types.ReasonMLLow:        1,
		},
		FTReasons: map[types.Reason]int{
			types.ReasonHumanReview:         1,
			types.ReasonFulltextUnavailable: 1,
		},
	}, got)

	// fulltext_assessed = fulltext_excluded + included
	assert.Equal(t, got.FulltextAssessed, got.FulltextExcluded+got.Included)
	// every screened citation is excluded, assessed or awaiting full text
	assert.Equal(t, got.Screened, got.TAExcluded+got.FulltextAssessed+got.AwaitingFulltext)
}

func TestCount_IdempotentAndOrderInsensitive(t *testing.T) {
	recs := fixture()
	first := Count(recs)
	assert.Equal(t, first, Count(recs))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]types.DecisionRecord(nil), recs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, first, Count(shuffled))
	}
}

func TestCount_DuplicatesEarliestWins(t *testing.T) {
	early := ta("A", types.DecisionExclude, types.ReasonMLLow)
	late := ta("A", types.DecisionInclude, types.ReasonMLHigh)
	late.Timestamp = t0.Add(time.Minute)

	for _, recs := range [][]types.DecisionRecord{{early, late}, {late, early}} {
		got := Count(recs)
		assert.Equal(t, 1, got.Screened)
		assert.Equal(t, 1, got.TAExcluded)
		assert.Equal(t, 0, got.AwaitingFulltext)
	}

	tieA := ta("B", types.DecisionMaybe, types.ReasonMLMid)
	tieB := ta("B", types.DecisionExclude, types.ReasonMLLow)
	assert.Equal(t, Count([]types.DecisionRecord{tieA, tieB}), Count([]types.DecisionRecord{tieB, tieA}))
}

func TestCount_Empty(t *testing.T) {
	got := Count(nil)
	assert.Zero(t, got.Screened)
	assert.NotNil(t, got.Reasons)
	assert.Empty(t, got.Reasons)
}

func TestCheck(t *testing.T) {
	assert.Empty(t, Check(fixture()))

	recs := append(fixture(),
		ta("A", types.DecisionInclude, types.ReasonMLHigh),
		ft("C", types.DecisionInclude, types.ReasonFTScoreHigh),
		ft("Z", types.DecisionExclude, types.ReasonFTScoreLow),
		ft("F", types.DecisionMaybe, types.ReasonMLMid),
		types.DecisionRecord{CitationID: "Q", Stage: "abstract"},
	)
	errs := Check(recs)
	require.Len(t, errs, 5)

	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	assert.Equal(t, []string{
		"A: duplicate title_abstract decisions",
		"C: full-text decision after title/abstract exclusion",
		"F: full-text decision cannot be maybe",
		`Q: unknown stage "abstract"`,
		"Z: full-text decision without title/abstract decision",
	}, msgs)
}
