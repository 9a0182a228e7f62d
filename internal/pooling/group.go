// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pooling

import (
	"sort"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Group is the set of effect records pooled together: one outcome on one
// analysis scale.
type Group struct {
	Outcome string
	Scale   string
	Records []types.EffectRecord
}

// GroupByOutcome partitions records by outcome name (trimmed,
// case-insensitive) and analysis scale. Groups are sorted by outcome then
// scale; records keep their input order.
func GroupByOutcome(records []types.EffectRecord) []Group {
	type gkey struct{ outcome, scale string }
	index := make(map[gkey]int)
	var groups []Group
	for _, r := range records {
		scale := string(r.Type)
		if t, err := types.ParseEffectType(string(r.Type)); err == nil {
			scale = t.Scale()
		}
		name := strings.TrimSpace(r.Outcome)
		k := gkey{strings.ToLower(name), scale}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Outcome: name, Scale: scale})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		oi, oj := strings.ToLower(groups[i].Outcome), strings.ToLower(groups[j].Outcome)
		if oi != oj {
			return oi < oj
		}
		return groups[i].Scale < groups[j].Scale
	})
	return groups
}

// PoolAll pools every group. Failed groups contribute a *PoolError and do
// not stop the others.
func PoolAll(records []types.EffectRecord, opts Options) ([]types.PooledResult, []error) {
	var (
		results []types.PooledResult
		errs    []error
	)
	for _, g := range GroupByOutcome(records) {
		res, err := Pool(g.Outcome, g.Records, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Filter returns the records whose outcome matches name, ignoring case.
func Filter(records []types.EffectRecord, name string) []types.EffectRecord {
	name = strings.TrimSpace(name)
	var out []types.EffectRecord
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.Outcome), name) {
			out = append(out, r)
		}
	}
	return out
}
