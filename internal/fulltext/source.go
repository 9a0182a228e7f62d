// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext is the boundary to the extraction collaborator that
// supplies full-text sections and design metadata per study. Sources
// answer with sections or an explicit unavailable marker; the screening
// stage never calls a collaborator directly.
package fulltext

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Canonical section names used by the eligibility scorer.
const (
	SectionAbstract   = "abstract"
	SectionMethods    = "methods"
	SectionResults    = "results"
	SectionDiscussion = "discussion"
	SectionConclusion = "conclusion"
	SectionBody       = "body"
)

// Source fetches full text for a study. Implementations return
// types.Unavailable when the collaborator has nothing for the study; an
// error means the fetch itself failed. Callers treat both as unavailable.
type Source interface {
	Fetch(ctx context.Context, studyID string) (types.FullText, error)
}

// MemorySource serves canned sections. It is safe for concurrent use.
type MemorySource struct {
	mu    sync.RWMutex
	texts map[string]types.FullText
}

// NewMemorySource returns an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{texts: make(map[string]types.FullText)}
}

// Register stores sections and metadata for a study.
func (m *MemorySource) Register(studyID string, sections map[string]string, meta types.StudyMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[studyID] = types.FullText{
		StudyID:  studyID,
		Status:   types.FulltextAvailable,
		Sections: sections,
		Metadata: meta,
	}
}

// Fetch implements Source.
func (m *MemorySource) Fetch(ctx context.Context, studyID string) (types.FullText, error) {
	if err := ctx.Err(); err != nil {
		return types.FullText{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft, ok := m.texts[studyID]
	if !ok {
		return types.Unavailable(studyID), nil
	}
	return ft, nil
}

// headingAliases maps lowercase heading text to canonical section names.
var headingAliases = []struct {
	prefix  string
	section string
}{
	{"abstract", SectionAbstract},
	{"summary", SectionAbstract},
	{"materials and methods", SectionMethods},
	{"material and methods", SectionMethods},
	{"methods", SectionMethods},
	{"method", SectionMethods},
	{"methodology", SectionMethods},
	{"study design", SectionMethods},
	{"results", SectionResults},
	{"findings", SectionResults},
	{"discussion", SectionDiscussion},
	{"conclusion", SectionConclusion},
}

var headingNumber = regexp.MustCompile(`^(\d+(\.\d+)*\.?|[ivx]+\.)\s+`)

// CanonicalSection maps a heading to its canonical section name. Leading
// numbering such as "2." or "III." is ignored; unknown headings are
// returned lowercased.
func CanonicalSection(heading string) string {
	h := strings.ToLower(strings.TrimSpace(heading))
	h = headingNumber.ReplaceAllString(h, "")
	for _, a := range headingAliases {
		if strings.HasPrefix(h, a.prefix) {
			return a.section
		}
	}
	return h
}
