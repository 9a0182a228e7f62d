// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pooling

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// extraction is one data-extraction file: study metadata plus effects
// grouped by outcome.
type extraction struct {
	StudyMetadata struct {
		StudyID string `json:"study_id" yaml:"study_id"`
		DOI     string `json:"doi" yaml:"doi"`
		Title   string `json:"title" yaml:"title"`
	} `json:"study_metadata" yaml:"study_metadata"`
	Effects []extractedEffect `json:"effects_by_outcome" yaml:"effects_by_outcome"`
}

type extractedEffect struct {
	Name           string    `json:"name" yaml:"name"`
	Type           string    `json:"type" yaml:"type"`
	Estimate       flexFloat `json:"estimate" yaml:"estimate"`
	CILow          flexFloat `json:"ci_low" yaml:"ci_low"`
	CIHigh         flexFloat `json:"ci_high" yaml:"ci_high"`
	SE             flexFloat `json:"se" yaml:"se"`
	N              flexFloat `json:"n" yaml:"n"`
	Unit           string    `json:"unit" yaml:"unit"`
	TimepointWeeks flexFloat `json:"timepoint_weeks" yaml:"timepoint_weeks"`
}

// flexFloat accepts numbers, numeric strings and blanks. Blank, "nan",
// "none" and "null" decode as absent.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", n.Line)
	}
	if err := f.parse(n.Value); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return f.parse(s)
}

func (f *flexFloat) parse(raw string) error {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "nan", ".nan", "none", "null", "~", "na", "n/a":
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", raw)
	}
	*f = flexFloat{v: v, ok: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

// LoadEffects reads every *.json, *.yaml and *.yml file in dir, in name
// order. JSON files are decoded as JSON, the rest as YAML. Unparsable files and effects without an outcome name, a known
// type or an estimate are reported as RecordErrors; records missing only
// variance information are returned so pooling can report them.
func LoadEffects(dir string) ([]types.EffectRecord, []error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading effects directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		records []types.EffectRecord
		errs    []error
	)
	for _, name := range names {
		recs, fileErrs := loadFile(filepath.Join(dir, name))
		records = append(records, recs...)
		errs = append(errs, fileErrs...)
	}
	return records, errs, nil
}

func loadFile(path string) ([]types.EffectRecord, []error) {
	base := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&types.RecordError{ID: base, Message: err.Error()}}
	}
	var x extraction
	if strings.EqualFold(filepath.Ext(base), ".json") {
		err = json.Unmarshal(data, &x)
	} else {
		err = yaml.Unmarshal(data, &x)
	}
	if err != nil {
		return nil, []error{&types.RecordError{ID: base, Message: err.Error()}}
	}

	studyID := firstNonEmpty(x.StudyMetadata.StudyID, x.StudyMetadata.DOI, x.StudyMetadata.Title,
		strings.TrimSuffix(base, filepath.Ext(base)))

	var (
		out  []types.EffectRecord
		errs []error
	)
	for i, e := range x.Effects {
		id := fmt.Sprintf("%s#%d", base, i+1)
		name := strings.TrimSpace(e.Name)
		if name == "" {
			errs = append(errs, &types.RecordError{ID: id, Field: "name", Message: "missing outcome name"})
			continue
		}
		typ, err := types.ParseEffectType(e.Type)
		if err != nil {
			errs = append(errs, &types.RecordError{ID: id, Field: "type", Value: e.Type, Message: err.Error()})
			continue
		}
		if !e.Estimate.ok || math.IsNaN(e.Estimate.v) {
			errs = append(errs, &types.RecordError{ID: id, Field: "estimate", Message: "no effect estimate"})
			continue
		}
		rec := types.EffectRecord{
			StudyID:        studyID,
			Outcome:        name,
			Type:           typ,
			Estimate:       e.Estimate.v,
			CILow:          e.CILow.ptr(),
			CIHigh:         e.CIHigh.ptr(),
			StandardError:  e.SE.ptr(),
			Unit:           strings.TrimSpace(e.Unit),
			TimepointWeeks: e.TimepointWeeks.ptr(),
		}
		if e.N.ok && e.N.v > 0 {
			n := int(e.N.v)
			rec.SampleSize = &n
		}
		out = append(out, rec)
	}
	return out, errs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
