// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DirSource serves converted papers from a directory: <dir>/<slug>.md holds
// the Markdown text and an optional <dir>/<slug>.meta.yaml holds
// StudyMetadata. A missing Markdown file means unavailable.
type DirSource struct {
	dir string
}

// NewDirSource returns a source reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Slug maps a study identifier to a file name stem. DOIs contain slashes,
// which become hyphens.
func Slug(studyID string) string {
	s := strings.TrimSpace(studyID)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ":", "-")
	return s
}

// Fetch implements Source.
func (d *DirSource) Fetch(ctx context.Context, studyID string) (types.FullText, error) {
	if err := ctx.Err(); err != nil {
		return types.FullText{}, err
	}
	slug := Slug(studyID)
	mdPath := filepath.Join(d.dir, slug+".md")

	content, err := os.ReadFile(mdPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Unavailable(studyID), nil
		}
		return types.FullText{}, fmt.Errorf("reading %s: %w", mdPath, err)
	}

	ft := types.FullText{
		StudyID:  studyID,
		Status:   types.FulltextAvailable,
		Sections: Sections(string(content)),
	}

	metaPath := filepath.Join(d.dir, slug+".meta.yaml")
	if data, err := os.ReadFile(metaPath); err == nil {
		if err := yaml.Unmarshal(data, &ft.Metadata); err != nil {
			return types.FullText{}, fmt.Errorf("parsing %s: %w", metaPath, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return types.FullText{}, fmt.Errorf("reading %s: %w", metaPath, err)
	}

	return ft, nil
}

// Sections splits Markdown at ## and ### headings and files each body under
// its canonical section name. Repeated sections are concatenated; text
// before the first heading goes to "body". Page markers such as
// <!-- page 3 --> are dropped.
func Sections(content string) map[string]string {
	sections := make(map[string]string)
	current := SectionBody
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = nil
		if text == "" {
			return
		}
		if prev, ok := sections[current]; ok {
			sections[current] = prev + "\n\n" + text
			return
		}
		sections[current] = text
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isPageMarker(trimmed) {
			continue
		}
		if isHeading(trimmed) {
			flush()
			current = CanonicalSection(strings.TrimLeft(trimmed, "# "))
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// isHeading returns true if the line starts with ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

func isPageMarker(line string) bool {
	return strings.HasPrefix(line, "<!-- page ") && strings.HasSuffix(line, " -->")
}
