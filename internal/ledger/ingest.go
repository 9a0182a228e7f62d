// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/pdiddy/evidence-engine/internal/decisionlog"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// IngestSummary holds counts from an ingest run.
type IngestSummary struct {
	Inserted   int
	Duplicates int
	Malformed  int
	Errors     []error
}

// Total returns the number of log lines considered.
func (s IngestSummary) Total() int {
	return s.Inserted + s.Duplicates + s.Malformed
}

// Ingest loads the JSONL decision and classification logs found in dir.
// Missing logs are skipped. Malformed lines and duplicates are reported
// per record and do not stop the ingest.
func (s *Store) Ingest(ctx context.Context, dir string, w io.Writer) (IngestSummary, error) {
	var sum IngestSummary

	for _, name := range []string{decisionlog.TADecisionsFile, decisionlog.FTDecisionsFile} {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		recs, bad, err := decisionlog.ReadDecisions(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "skipped %s (not found)\n", name)
			continue
		}
		if err != nil {
			return sum, err
		}
		res, dups, err := s.AppendDecisions(ctx, recs)
		if err != nil {
			return sum, err
		}
		sum.add(w, name, res, bad, dups)
	}

	classes, bad, err := decisionlog.ReadClassifications(filepath.Join(dir, decisionlog.ClassificationsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(w, "skipped %s (not found)\n", decisionlog.ClassificationsFile)
	case err != nil:
		return sum, err
	default:
		res, dups, err := s.AppendClassifications(ctx, classes)
		if err != nil {
			return sum, err
		}
		sum.add(w, decisionlog.ClassificationsFile, res, bad, dups)
	}

	fmt.Fprintf(w, "\ninserted: %d, duplicate: %d, malformed: %d\n", sum.Inserted, sum.Duplicates, sum.Malformed)
	return sum, nil
}

func (s *IngestSummary) add(w io.Writer, name string, res AppendSummary, bad, dups []error) {
	for _, e := range bad {
		fmt.Fprintf(w, "failed  %v\n", e)
	}
	fmt.Fprintf(w, "%s: %d new, %d duplicate, %d malformed\n", name, res.Inserted, res.Duplicates, len(bad))
	s.Inserted += res.Inserted
	s.Duplicates += res.Duplicates
	s.Malformed += len(bad)
	s.Errors = append(s.Errors, bad...)
	s.Errors = append(s.Errors, dups...)
}

// AllDecisions returns every recorded decision.
func (s *Store) AllDecisions(ctx context.Context) ([]types.DecisionRecord, error) {
	return s.Decisions(ctx, Filter{})
}
