// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/decisionlog"
	"github.com/pdiddy/evidence-engine/internal/fulltext"
	"github.com/pdiddy/evidence-engine/internal/rules"
	"github.com/pdiddy/evidence-engine/internal/scorer"
	"github.com/pdiddy/evidence-engine/internal/screen"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen citations at title/abstract or full-text stage",
	Long: `Screen decides which citations enter the review. Each stage appends one
decision per citation to a JSONL log in --out-dir; rerunning a stage skips
citations that already have a decision.`,
}

// --- ta subcommand ---

var screenTACmd = &cobra.Command{
	Use:   "ta",
	Short: "Title/abstract screening with rule packs and a relevance scorer",
	Long: `TA reads citations (one JSON object per line), applies the topic's rule
pack and the relevance scorer, and writes ta_decisions.jsonl and
classifications.jsonl to --out-dir.

Decisions follow a fixed order: publication year outside the protocol's
bounds, then a negative rule hit with a low score, then the score against
the include and maybe thresholds.`,
	RunE: runScreenTA,
}

func runScreenTA(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	citationsPath, _ := cmd.Flags().GetString("citations")
	protocolPath, _ := cmd.Flags().GetString("protocol")
	outDir, _ := cmd.Flags().GetString("out-dir")

	var protocol types.Protocol
	if protocolPath != "" {
		if protocol, err = loadProtocol(protocolPath); err != nil {
			return err
		}
	}
	if cfg.Screening.Topic == "" {
		cfg.Screening.Topic = protocol.Topic
	}
	if cfg.Screening.Topic == "" {
		cfg.Screening.Topic = types.DefaultScreeningConfig().Topic
	}

	registry := rules.DefaultRegistry()
	if f := viper.GetString("screening.rules_file"); f != "" {
		if err := registry.LoadFile(f); err != nil {
			return err
		}
	}
	pack, err := registry.Lookup(cfg.Screening.Topic)
	if err != nil {
		return fmt.Errorf("screening.topic: %w", err)
	}
	sc, err := scorer.New(scorer.Kind(viper.GetString("screening.scorer")), viper.GetString("screening.model_file"))
	if err != nil {
		return err
	}
	stage, err := screen.NewTitleAbstract(pack, sc, protocol, cfg.Screening)
	if err != nil {
		return err
	}

	citations, bad, err := decisionlog.ReadCitations(citationsPath)
	if err != nil {
		return err
	}
	for _, e := range bad {
		recorder.RecordError(string(types.StageTitleAbstract))
		fmt.Fprintf(os.Stdout, "failed   %v\n", e)
	}

	taPath := filepath.Join(outDir, decisionlog.TADecisionsFile)
	completed, err := completedIDs(taPath)
	if err != nil {
		return err
	}
	decisions, err := decisionlog.Create(taPath)
	if err != nil {
		return err
	}
	defer decisions.Close()
	classes, err := decisionlog.Create(filepath.Join(outDir, decisionlog.ClassificationsFile))
	if err != nil {
		return err
	}
	defer classes.Close()

	stage.RunID = uuid.NewString()
	stage.Completed = completed
	stage.Logger = logger.With(zap.String("stage", string(types.StageTitleAbstract)))
	stage.Metrics = recorder
	stage.Logger.Info("screening citations",
		zap.String("run_id", stage.RunID),
		zap.String("topic", cfg.Screening.Topic),
		zap.Int("citations", len(citations)),
		zap.Int("already_screened", len(completed)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, err := stage.RunTitleAbstract(ctx, citations, decisions, classes, os.Stdout)
	fmt.Fprintf(os.Stdout, "\n%s\n", summary)
	if err != nil {
		return err
	}
	if failed := summary.Failed + len(bad); failed > 0 {
		return fmt.Errorf("%d citation(s) failed screening", failed)
	}
	return nil
}

// --- ft subcommand ---

var screenFTCmd = &cobra.Command{
	Use:   "ft",
	Short: "Full-text eligibility screening",
	Long: `FT assesses every citation included or marked maybe at title/abstract.
Full text comes from a directory of Markdown files (--fulltext-dir) or an
extraction service (--fulltext-url). A fetch that fails or exceeds
--timeout is recorded as fulltext_unavailable.`,
	RunE: runScreenFT,
}

func runScreenFT(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	protocolPath, _ := cmd.Flags().GetString("protocol")
	outDir, _ := cmd.Flags().GetString("out-dir")
	taPath, _ := cmd.Flags().GetString("ta-decisions")
	if taPath == "" {
		taPath = filepath.Join(outDir, decisionlog.TADecisionsFile)
	}

	protocol, err := loadProtocol(protocolPath)
	if err != nil {
		return err
	}
	src, err := fulltext.NewSource(cfg.Fulltext)
	if err != nil {
		return err
	}
	stage, err := screen.NewFullText(src, protocol, cfg.Eligibility)
	if err != nil {
		return err
	}

	taRecords, bad, err := decisionlog.ReadDecisions(taPath)
	if err != nil {
		return err
	}
	for _, e := range bad {
		recorder.RecordError(string(types.StageFullText))
		fmt.Fprintf(os.Stdout, "failed   %v\n", e)
	}

	ftPath := filepath.Join(outDir, decisionlog.FTDecisionsFile)
	completed, err := completedIDs(ftPath)
	if err != nil {
		return err
	}
	decisions, err := decisionlog.Create(ftPath)
	if err != nil {
		return err
	}
	defer decisions.Close()

	stage.RunID = uuid.NewString()
	stage.Completed = completed
	stage.Logger = logger.With(zap.String("stage", string(types.StageFullText)))
	stage.Metrics = recorder
	stage.Logger.Info("assessing full text",
		zap.String("run_id", stage.RunID),
		zap.Int("ta_records", len(taRecords)),
		zap.Int("already_assessed", len(completed)),
		zap.Duration("timeout", cfg.Eligibility.FetchTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, err := stage.RunFullText(ctx, taRecords, decisions, os.Stdout)
	fmt.Fprintf(os.Stdout, "\n%s\n", summary)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("%d malformed title/abstract record(s)", len(bad))
	}
	return nil
}

// completedIDs returns the citation ids already decided in the log at
// path. A missing log means nothing has been decided.
func completedIDs(path string) (map[string]bool, error) {
	recs, _, err := decisionlog.ReadDecisions(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(recs))
	for _, r := range recs {
		done[r.CitationID] = true
	}
	return done, nil
}

func init() {
	screenCmd.PersistentFlags().String("out-dir", ".", "directory for decision logs")

	ta := screenTACmd.Flags()
	ta.String("citations", "", "citations file, one JSON object per line (required)")
	ta.String("protocol", "", "review protocol (YAML or JSON)")
	ta.String("topic", "", "rule pack topic (default: protocol topic, then resveratrol_t2d)")
	ta.String("rules-file", "", "YAML file of additional rule packs")
	ta.String("scorer", "heuristic", "relevance scorer: heuristic or logistic")
	ta.String("model-file", "", "weights file for the logistic scorer")
	ta.Float64("high", 0.7, "minimum score for include")
	ta.Float64("mid", 0.5, "minimum score for maybe")
	ta.Int("workers", 4, "citations screened concurrently")
	screenTACmd.MarkFlagRequired("citations")
	bindFlag("screening.topic", ta.Lookup("topic"))
	bindFlag("screening.rules_file", ta.Lookup("rules-file"))
	bindFlag("screening.scorer", ta.Lookup("scorer"))
	bindFlag("screening.model_file", ta.Lookup("model-file"))
	bindFlag("screening.high_threshold", ta.Lookup("high"))
	bindFlag("screening.mid_threshold", ta.Lookup("mid"))
	bindFlag("screening.workers", ta.Lookup("workers"))

	ft := screenFTCmd.Flags()
	ft.String("ta-decisions", "", "title/abstract decision log (default: <out-dir>/ta_decisions.jsonl)")
	ft.String("protocol", "", "review protocol (YAML or JSON, required)")
	ft.String("fulltext-dir", "", "directory of <id>.md full-text files")
	ft.String("fulltext-url", "", "base URL of the extraction service")
	ft.Float64("rate-limit", 0, "extraction service requests per second (0 = unlimited)")
	ft.Int("concurrency", 4, "full-text fetches in flight")
	ft.Duration("timeout", types.DefaultEligibilityConfig().FetchTimeout, "timeout for one full-text fetch")
	screenFTCmd.MarkFlagRequired("protocol")
	bindFlag("fulltext.dir", ft.Lookup("fulltext-dir"))
	bindFlag("fulltext.url", ft.Lookup("fulltext-url"))
	bindFlag("fulltext.rate_limit", ft.Lookup("rate-limit"))
	bindFlag("eligibility.concurrency", ft.Lookup("concurrency"))
	bindFlag("eligibility.fetch_timeout", ft.Lookup("timeout"))

	screenCmd.AddCommand(screenTACmd)
	screenCmd.AddCommand(screenFTCmd)
	rootCmd.AddCommand(screenCmd)
}
