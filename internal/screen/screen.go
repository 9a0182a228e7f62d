// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package screen runs the two screening stages. Each citation is decided
// independently; batch runners fan work out under a concurrency limit and
// write every record through an append-only sink.
package screen

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DecisionWriter receives decision records. Implementations must be safe
// for concurrent use.
type DecisionWriter interface {
	WriteDecision(types.DecisionRecord) error
}

// ClassificationWriter receives classification records. Implementations
// must be safe for concurrent use.
type ClassificationWriter interface {
	WriteClassification(types.ClassificationRecord) error
}

// Summary holds the counts from one batch run.
type Summary struct {
	Included int
	Maybe    int
	Excluded int

	// HumanReview counts full-text exclusions flagged for a reviewer.
	HumanReview int

	// Unavailable counts full-text exclusions for missing text.
	Unavailable int

	// Skipped counts records not processed: already decided, or excluded
	// at title/abstract when running the full-text stage.
	Skipped int

	// Failed counts invalid input records; Errors holds one entry per failure.
	Failed int
	Errors []error
}

// Processed returns the number of decisions written.
func (s Summary) Processed() int {
	return s.Included + s.Maybe + s.Excluded
}

// Total returns the number of input records seen.
func (s Summary) Total() int {
	return s.Processed() + s.Skipped + s.Failed
}

// HasFailures reports whether any input records were rejected.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// String renders the one-line batch summary.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d included, %d maybe, %d excluded", s.Included, s.Maybe, s.Excluded)
	if s.HumanReview > 0 {
		fmt.Fprintf(&b, " (%d for human review)", s.HumanReview)
	}
	if s.Unavailable > 0 {
		fmt.Fprintf(&b, " (%d full text unavailable)", s.Unavailable)
	}
	fmt.Fprintf(&b, ", %d skipped, %d failed (total: %d)", s.Skipped, s.Failed, s.Total())
	return b.String()
}

// tally guards a Summary shared by workers.
type tally struct {
	mu  sync.Mutex
	sum Summary
}

func (t *tally) decided(rec types.DecisionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch rec.Decision {
	case types.DecisionInclude:
		t.sum.Included++
	case types.DecisionMaybe:
		t.sum.Maybe++
	default:
		t.sum.Excluded++
	}
	if rec.HumanReview {
		t.sum.HumanReview++
	}
	if rec.Reason == types.ReasonFulltextUnavailable {
		t.sum.Unavailable++
	}
}

func (t *tally) skipped() {
	t.mu.Lock()
	t.sum.Skipped++
	t.mu.Unlock()
}

func (t *tally) failed(err error) {
	t.mu.Lock()
	t.sum.Failed++
	t.sum.Errors = append(t.sum.Errors, err)
	t.mu.Unlock()
}

// summary returns the counts with errors in a stable order.
func (t *tally) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sum
	s.Errors = append([]error(nil), t.sum.Errors...)
	sort.Slice(s.Errors, func(i, j int) bool { return s.Errors[i].Error() < s.Errors[j].Error() })
	return s
}

// progress serialises per-record status lines.
type progress struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progress) printf(format string, args ...any) {
	if p.w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *progress) decision(rec types.DecisionRecord) {
	p.printf("%-8s %s: %s (%.2f)\n", rec.Decision, rec.CitationID, rec.Reason, rec.Score)
}

func utcNow() time.Time { return time.Now().UTC() }
