// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// FulltextStatus reports whether the extraction collaborator could supply text.
type FulltextStatus string

const (
	FulltextAvailable   FulltextStatus = "available"
	FulltextUnavailable FulltextStatus = "unavailable"
)

// StudyMetadata is structured metadata the extraction collaborator may
// supply alongside the text sections.
type StudyMetadata struct {
	StudyDesign string `json:"study_design,omitempty" yaml:"study_design,omitempty"`
	Species     string `json:"species,omitempty" yaml:"species,omitempty"`
	NTotal      int    `json:"n_total,omitempty" yaml:"n_total,omitempty"`
}

// FullText is the collaborator's response for one study: either named
// sections (lowercase keys such as "methods", "results", "abstract") or
// an unavailable marker.
type FullText struct {
	StudyID  string            `json:"id" yaml:"id"`
	Status   FulltextStatus    `json:"status" yaml:"status"`
	Sections map[string]string `json:"sections,omitempty" yaml:"sections,omitempty"`
	Metadata StudyMetadata     `json:"metadata" yaml:"metadata"`
}

// Available reports whether text sections were supplied.
func (f FullText) Available() bool {
	return f.Status != FulltextUnavailable && f.Sections != nil
}

// Section returns the named section text, or "" when absent.
func (f FullText) Section(name string) string {
	return f.Sections[name]
}

// Unavailable returns the unavailable marker for studyID.
func Unavailable(studyID string) FullText {
	return FullText{StudyID: studyID, Status: FulltextUnavailable}
}
