// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package screen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/internal/eligibility"
	"github.com/pdiddy/evidence-engine/internal/fulltext"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Fetch outcomes reported to metrics.
const (
	fetchAvailable   = "available"
	fetchUnavailable = "unavailable"
	fetchError       = "error"
	fetchTimeout     = "timeout"
)

// FullText screens studies that passed title/abstract against their full
// text. Fetch failures and timeouts become fulltext_unavailable decisions.
type FullText struct {
	Source   fulltext.Source
	Protocol types.Protocol
	Config   types.EligibilityConfig

	RunID     string
	Completed map[string]bool

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// NewFullText validates cfg and the protocol and returns a stage using
// the default clock and a no-op logger.
func NewFullText(src fulltext.Source, protocol types.Protocol, cfg types.EligibilityConfig) (*FullText, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := protocol.Validate(); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	if src == nil {
		return nil, errors.New("full-text screening requires a full-text source")
	}
	return &FullText{
		Source:   src,
		Protocol: protocol,
		Config:   cfg,
		Now:      utcNow,
		Logger:   zap.NewNop(),
	}, nil
}

// Screen fetches and scores one study. The error result is non-nil only
// when ctx itself is done; collaborator failures are decisions.
func (s *FullText) Screen(ctx context.Context, studyID string) (types.DecisionRecord, error) {
	ft, outcome := s.fetch(ctx, studyID)
	if err := ctx.Err(); err != nil {
		return types.DecisionRecord{}, err
	}
	s.Metrics.Fetch(outcome)

	rec := types.DecisionRecord{
		CitationID: studyID,
		Stage:      types.StageFullText,
		Threshold:  s.Config.IncludeThreshold,
		RunID:      s.RunID,
		Timestamp:  s.now(),
	}
	if !ft.Available() {
		rec.Decision = types.DecisionExclude
		rec.Reason = types.ReasonFulltextUnavailable
		return rec, nil
	}

	a := eligibility.Evaluate(s.Protocol, ft, s.Config.Weights)
	checks := a.Checks
	rec.Score = a.Score
	rec.Checks = &checks
	rec.Rules = a.Excluded

	switch {
	case a.Score >= s.Config.IncludeThreshold:
		rec.Decision, rec.Reason = types.DecisionInclude, types.ReasonFTScoreHigh
	case a.Score >= s.Config.ReviewThreshold:
		rec.Decision, rec.Reason = types.DecisionExclude, types.ReasonHumanReview
		rec.HumanReview = true
	default:
		rec.Decision, rec.Reason = types.DecisionExclude, types.ReasonFTScoreLow
	}
	return rec, nil
}

type fetchResult struct {
	ft  types.FullText
	err error
}

// fetch calls the source under the per-call timeout. The call runs in its
// own goroutine so a source that ignores its context still cannot hold
// the worker past the deadline.
func (s *FullText) fetch(ctx context.Context, studyID string) (types.FullText, string) {
	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if s.Config.FetchTimeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, s.Config.FetchTimeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		ft, err := s.Source.Fetch(fctx, studyID)
		done <- fetchResult{ft: ft, err: err}
	}()

	log := s.logger()
	select {
	case <-fctx.Done():
		if ctx.Err() == nil {
			log.Warn("full-text fetch timed out", zap.String("id", studyID), zap.Duration("timeout", s.Config.FetchTimeout))
		}
		return types.Unavailable(studyID), fetchTimeout
	case r := <-done:
		switch {
		case errors.Is(r.err, context.DeadlineExceeded):
			log.Warn("full-text fetch timed out", zap.String("id", studyID), zap.Duration("timeout", s.Config.FetchTimeout))
			return types.Unavailable(studyID), fetchTimeout
		case r.err != nil:
			log.Warn("full-text fetch failed", zap.String("id", studyID), zap.Error(r.err))
			return types.Unavailable(studyID), fetchError
		case !r.ft.Available():
			return types.Unavailable(studyID), fetchUnavailable
		}
		return r.ft, fetchAvailable
	}
}

// RunFullText screens every study whose title/abstract decision passed,
// with up to Config.Concurrency fetches in flight. Records from other
// stages, excluded citations and repeated ids are skipped.
func (s *FullText) RunFullText(ctx context.Context, taRecords []types.DecisionRecord, decisions DecisionWriter, w io.Writer) (Summary, error) {
	start := time.Now()
	defer s.Metrics.ObserveStage(string(types.StageFullText), start)

	var (
		t   tally
		out = progress{w: w}
		log = s.logger()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	seen := make(map[string]bool, len(taRecords))
	for _, ta := range taRecords {
		if gctx.Err() != nil {
			break
		}
		if ta.Stage != types.StageTitleAbstract || seen[ta.CitationID] {
			continue
		}
		seen[ta.CitationID] = true

		if !ta.Decision.Passes() {
			t.skipped()
			continue
		}
		if s.Completed[ta.CitationID] {
			t.skipped()
			out.printf("skipped  %s (already assessed)\n", ta.CitationID)
			continue
		}

		id := ta.CitationID
		g.Go(func() error {
			rec, err := s.Screen(gctx, id)
			if err != nil {
				return err
			}
			if err := decisions.WriteDecision(rec); err != nil {
				return fmt.Errorf("writing decision for %s: %w", id, err)
			}
			t.decided(rec)
			s.Metrics.Decision(string(rec.Stage), string(rec.Decision), string(rec.Reason))
			log.Debug("assessed",
				zap.String("id", rec.CitationID),
				zap.String("decision", string(rec.Decision)),
				zap.String("reason", string(rec.Reason)),
				zap.Float64("score", rec.Score),
			)
			out.decision(rec)
			return nil
		})
	}

	err := g.Wait()
	sum := t.summary()
	if err == nil {
		err = ctx.Err()
	}
	log.Info("full-text screening finished",
		zap.String("run_id", s.RunID),
		zap.Int("included", sum.Included),
		zap.Int("excluded", sum.Excluded),
		zap.Int("human_review", sum.HumanReview),
		zap.Int("unavailable", sum.Unavailable),
	)
	return sum, err
}

func (s *FullText) now() time.Time {
	if s.Now == nil {
		return utcNow()
	}
	return s.Now()
}

func (s *FullText) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *FullText) concurrency() int {
	if s.Config.Concurrency <= 0 {
		return 1
	}
	return s.Config.Concurrency
}
