// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/decisionlog"
	"github.com/pdiddy/evidence-engine/internal/prisma"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var prismaCmd = &cobra.Command{
	Use:   "prisma",
	Short: "Derive PRISMA flow counts from the decision logs",
	Long: `Prisma replays the title/abstract and full-text decision logs and prints
the study-selection counts with exclusion reasons. Counts are recomputed
from the logs on every run. When a citation has more than one record for a
stage the earliest one counts.`,
	RunE: runPrisma,
}

func runPrisma(cmd *cobra.Command, args []string) error {
	taPath, _ := cmd.Flags().GetString("ta-decisions")
	ftPath, _ := cmd.Flags().GetString("ft-decisions")
	outPath, _ := cmd.Flags().GetString("out")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	records, bad, err := decisionlog.ReadDecisions(taPath)
	if err != nil {
		return err
	}
	ft, ftBad, err := decisionlog.ReadDecisions(ftPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no full-text decisions yet", zap.String("path", ftPath))
	case err != nil:
		return err
	}
	records = append(records, ft...)
	bad = append(bad, ftBad...)

	for _, e := range bad {
		fmt.Fprintf(os.Stderr, "failed   %v\n", e)
	}
	for _, e := range prisma.Check(records) {
		logger.Warn("inconsistent decision log", zap.Error(e))
	}

	counts := prisma.Count(records)
	if outPath != "" {
		if err := writeOutput(outPath, counts); err != nil {
			return err
		}
		logger.Info("wrote PRISMA counts", zap.String("path", outPath))
	}

	if jsonOutput {
		if err := encodeJSON(counts); err != nil {
			return err
		}
	} else {
		printPrisma(os.Stdout, counts)
	}

	if len(bad) > 0 {
		return fmt.Errorf("%d malformed decision record(s)", len(bad))
	}
	return nil
}

func printPrisma(w io.Writer, c types.PrismaCounters) {
	fmt.Fprintf(w, "%-28s %d\n", "Records screened", c.Screened)
	fmt.Fprintf(w, "%-28s %d\n", "Excluded at title/abstract", c.TAExcluded)
	printReasons(w, c.TAReasons)
	fmt.Fprintf(w, "%-28s %d\n", "Awaiting full text", c.AwaitingFulltext)
	fmt.Fprintf(w, "%-28s %d\n", "Full texts assessed", c.FulltextAssessed)
	fmt.Fprintf(w, "%-28s %d\n", "Excluded at full text", c.FulltextExcluded)
	printReasons(w, c.FTReasons)
	if c.HumanReview > 0 {
		fmt.Fprintf(w, "%-28s %d\n", "Flagged for human review", c.HumanReview)
	}
	fmt.Fprintf(w, "%-28s %d\n", "Studies included", c.Included)
}

func printReasons(w io.Writer, reasons map[types.Reason]int) {
	keys := make([]string, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-26s %d\n", k, reasons[types.Reason(k)])
	}
}

func init() {
	prismaCmd.Flags().String("ta-decisions", decisionlog.TADecisionsFile, "title/abstract decision log")
	prismaCmd.Flags().String("ft-decisions", decisionlog.FTDecisionsFile, "full-text decision log (may be absent)")
	prismaCmd.Flags().String("out", "", "also write the counts to this file (.json or .yaml)")
	prismaCmd.Flags().Bool("json", false, "print the counts as JSON")

	rootCmd.AddCommand(prismaCmd)
}
