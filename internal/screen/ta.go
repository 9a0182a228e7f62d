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

	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/rules"
	"github.com/pdiddy/evidence-engine/internal/scorer"
	"github.com/pdiddy/evidence-engine/internal/taxonomy"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// TitleAbstract screens citations on title and abstract text.
type TitleAbstract struct {
	Pack       *rules.Pack
	Scorer     scorer.Scorer
	Classifier *taxonomy.Classifier
	Protocol   types.Protocol
	Config     types.ScreeningConfig

	// RunID is stamped on every record.
	RunID string

	// Completed lists citation ids that already have a decision; they are
	// skipped by RunTitleAbstract.
	Completed map[string]bool

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// NewTitleAbstract validates cfg and returns a stage using the default
// clock and a no-op logger.
func NewTitleAbstract(pack *rules.Pack, sc scorer.Scorer, protocol types.Protocol, cfg types.ScreeningConfig) (*TitleAbstract, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, errors.New("title/abstract screening requires a rule pack")
	}
	if sc == nil {
		return nil, errors.New("title/abstract screening requires a scorer")
	}
	return &TitleAbstract{
		Pack:       pack,
		Scorer:     sc,
		Classifier: taxonomy.New(protocol),
		Protocol:   protocol,
		Config:     cfg,
		Now:        utcNow,
		Logger:     zap.NewNop(),
	}, nil
}

// Screen decides one citation. It returns exactly one decision record and
// one classification record, or a RecordError for invalid input.
func (s *TitleAbstract) Screen(c types.Citation) (types.DecisionRecord, types.ClassificationRecord, error) {
	if err := c.Validate(); err != nil {
		return types.DecisionRecord{}, types.ClassificationRecord{}, err
	}

	rec := types.DecisionRecord{
		CitationID: c.ID,
		Stage:      types.StageTitleAbstract,
		Threshold:  s.Config.HighThreshold,
		RunID:      s.RunID,
		Timestamp:  s.now(),
	}
	class := s.classifier().Classify(c)
	text := c.Text()
	excluded := s.excluded(c, class, text)

	if !s.Protocol.Exclusions.YearAllowed(c.Year) {
		rec.Decision = types.DecisionExclude
		rec.Reason = types.ReasonYearOutOfRange
		rec.Rules = excluded
		return rec, class, nil
	}

	hits := s.Pack.Match(text)
	rec.Score = s.Scorer.Score(text)
	rec.Rules = append(append([]string(nil), hits.Rules...), excluded...)
	rec.Decision, rec.Reason = s.decide(hits, rec.Score)
	return rec, class, nil
}

// excluded returns the rule ids of the protocol exclusion flags the
// citation triggers. They are recorded for audit; the full-text design
// check acts on the category flags.
func (s *TitleAbstract) excluded(c types.Citation, class types.ClassificationRecord, text string) []string {
	ex := s.Protocol.Exclusions
	ids := taxonomy.Excluded(ex, class.ArticleType, class.Species, text)
	if !ex.LanguageAllowed(c.Language) {
		ids = append(ids, taxonomy.RuleExcludedLanguage)
	}
	return ids
}

// decide applies the checks in fixed order.
func (s *TitleAbstract) decide(hits rules.Hits, score float64) (types.Decision, types.Reason) {
	switch {
	case hits.Negative && score < s.Config.NegativeCeiling:
		return types.DecisionExclude, types.ReasonNegativeRule
	case score >= s.Config.HighThreshold:
		return types.DecisionInclude, types.ReasonMLHigh
	case score >= s.Config.MidThreshold:
		return types.DecisionMaybe, types.ReasonMLMid
	default:
		return types.DecisionExclude, types.ReasonMLLow
	}
}

// RunTitleAbstract screens citations with up to Config.Workers in flight.
// Invalid citations are counted and reported in the summary without
// stopping the batch; a sink error aborts the run.
func (s *TitleAbstract) RunTitleAbstract(ctx context.Context, citations []types.Citation, decisions DecisionWriter, classes ClassificationWriter, w io.Writer) (Summary, error) {
	start := time.Now()
	defer s.Metrics.ObserveStage(string(types.StageTitleAbstract), start)

	var (
		t   tally
		out = progress{w: w}
		log = s.logger()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	seen := make(map[string]bool, len(citations))
	for i := range citations {
		c := citations[i]
		if gctx.Err() != nil {
			break
		}
		if c.ID != "" && seen[c.ID] {
			err := &types.RecordError{ID: c.ID, Field: "id", Message: "duplicate citation id in batch"}
			t.failed(err)
			s.Metrics.RecordError(string(types.StageTitleAbstract))
			log.Warn("duplicate citation", zap.String("id", c.ID))
			out.printf("failed   %s: %v\n", c.ID, err)
			continue
		}
		seen[c.ID] = true
		if s.Completed[c.ID] {
			t.skipped()
			out.printf("skipped  %s (already screened)\n", c.ID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, class, err := s.Screen(c)
			if err != nil {
				t.failed(err)
				s.Metrics.RecordError(string(types.StageTitleAbstract))
				log.Warn("invalid citation", zap.String("id", c.ID), zap.Error(err))
				out.printf("failed   %s: %v\n", c.ID, err)
				return nil
			}
			if err := decisions.WriteDecision(rec); err != nil {
				return fmt.Errorf("writing decision for %s: %w", c.ID, err)
			}
			if classes != nil {
				if err := classes.WriteClassification(class); err != nil {
					return fmt.Errorf("writing classification for %s: %w", c.ID, err)
				}
			}
			t.decided(rec)
			s.Metrics.Decision(string(rec.Stage), string(rec.Decision), string(rec.Reason))
			log.Debug("screened",
				zap.String("id", rec.CitationID),
				zap.String("decision", string(rec.Decision)),
				zap.String("reason", string(rec.Reason)),
				zap.Float64("score", rec.Score),
				zap.Strings("rules", rec.Rules),
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
	log.Info("title/abstract screening finished",
		zap.String("run_id", s.RunID),
		zap.Int("included", sum.Included),
		zap.Int("maybe", sum.Maybe),
		zap.Int("excluded", sum.Excluded),
		zap.Int("failed", sum.Failed),
	)
	return sum, err
}

func (s *TitleAbstract) classifier() *taxonomy.Classifier {
	if s.Classifier == nil {
		return taxonomy.New(s.Protocol)
	}
	return s.Classifier
}

func (s *TitleAbstract) now() time.Time {
	if s.Now == nil {
		return utcNow()
	}
	return s.Now()
}

func (s *TitleAbstract) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *TitleAbstract) workers() int {
	if s.Config.Workers <= 0 {
		return 1
	}
	return s.Config.Workers
}
