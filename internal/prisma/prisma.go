// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prisma derives PRISMA study-selection counters from the decision
// log. Counters are recomputed from the records on every call; nothing is
// kept between calls.
package prisma

import (
	"fmt"
	"sort"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

type key struct {
	id    string
	stage types.Stage
}

// Count aggregates decision records from both stages. The result does not
// depend on record order. When a citation has several records for one
// stage only the earliest counts.
func Count(records []types.DecisionRecord) types.PrismaCounters {
	first := dedupe(records)

	c := types.PrismaCounters{
		Reasons:   make(map[types.Reason]int),
		TAReasons: make(map[types.Reason]int),
		FTReasons: make(map[types.Reason]int),
	}

	for k, r := range first {
		switch k.stage {
		case types.StageTitleAbstract:
			c.Screened++
			if r.Decision == types.DecisionExclude {
				c.TAExcluded++
				c.TAReasons[r.Reason]++
				c.Reasons[r.Reason]++
			} else if _, ok := first[key{k.id, types.StageFullText}]; !ok {
				c.AwaitingFulltext++
			}
		case types.StageFullText:
			c.FulltextAssessed++
			if r.Decision == types.DecisionInclude {
				c.Included++
				continue
			}
			c.FulltextExcluded++
			c.FTReasons[r.Reason]++
			c.Reasons[r.Reason]++
			if r.HumanReview {
				c.HumanReview++
			}
		}
	}
	return c
}

// Check reports records that break the selection-flow rules: repeated
// (citation, stage) pairs, full-text decisions without a passing
// title/abstract decision, maybe at full text, and unknown stages.
// Errors are sorted for stable output.
func Check(records []types.DecisionRecord) []error {
	var errs []error
	seen := make(map[key]int)
	for _, r := range records {
		k := key{r.CitationID, r.Stage}
		seen[k]++
		if seen[k] == 2 {
			errs = append(errs, fmt.Errorf("%s: duplicate %s decisions", r.CitationID, r.Stage))
		}
		switch r.Stage {
		case types.StageTitleAbstract:
		case types.StageFullText:
			if r.Decision == types.DecisionMaybe {
				errs = append(errs, fmt.Errorf("%s: full-text decision cannot be maybe", r.CitationID))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown stage %q", r.CitationID, r.Stage))
		}
	}

	first := dedupe(records)
	for k := range first {
		if k.stage != types.StageFullText {
			continue
		}
		ta, ok := first[key{k.id, types.StageTitleAbstract}]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s: full-text decision without title/abstract decision", k.id))
		case !ta.Decision.Passes():
			errs = append(errs, fmt.Errorf("%s: full-text decision after title/abstract exclusion", k.id))
		}
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

// dedupe keeps the earliest record per (citation, stage). Ties on the
// timestamp fall back to a comparison of the record contents so the
// choice never depends on input order.
func dedupe(records []types.DecisionRecord) map[key]types.DecisionRecord {
	out := make(map[key]types.DecisionRecord, len(records))
	for _, r := range records {
		k := key{r.CitationID, r.Stage}
		prev, ok := out[k]
		if !ok || earlier(r, prev) {
			out[k] = r
		}
	}
	return out
}

func earlier(a, b types.DecisionRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return tieKey(a) < tieKey(b)
}

func tieKey(r types.DecisionRecord) string {
	return fmt.Sprintf("%s|%s|%.17g|%t|%s", r.Decision, r.Reason, r.Score, r.HumanReview, r.RunID)
}
