// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/ledger"
	"github.com/pdiddy/evidence-engine/internal/pooling"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Pool extracted effect estimates per outcome",
	Long: `Pool reads extraction files (*.json, *.yaml) from --effects-dir and
combines the per-study effects of each outcome with inverse-variance
(fixed) or DerSimonian-Laird (random) weighting. Ratio measures are pooled
on the log scale and reported exponentiated.

Records without a usable variance are listed as excluded. An outcome whose
records mix incompatible effect types or units is reported as an error and
the other outcomes are still pooled.`,
	RunE: runPool,
}

func runPool(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Pooling.Validate(); err != nil {
		return err
	}
	effectsDir, _ := cmd.Flags().GetString("effects-dir")
	outcome, _ := cmd.Flags().GetString("outcome")
	outPath, _ := cmd.Flags().GetString("out")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	save, _ := cmd.Flags().GetBool("save")

	records, bad, err := pooling.LoadEffects(effectsDir)
	if err != nil {
		return err
	}
	for _, e := range bad {
		recorder.RecordError("pooling")
		fmt.Fprintf(os.Stderr, "failed   %v\n", e)
	}
	if outcome != "" {
		records = pooling.Filter(records, outcome)
		if len(records) == 0 {
			return fmt.Errorf("no effect records for outcome %q", outcome)
		}
	}

	opts := pooling.OptionsFromConfig(cfg.Pooling)
	opts.RunID = uuid.NewString()
	start := time.Now()
	results, errs := pooling.PoolAll(records, opts)
	recorder.ObserveStage("pooling", start)

	for _, r := range results {
		recorder.PoolingRun(string(opts.Model), "ok")
		logger.Debug("pooled outcome",
			zap.String("outcome", r.Outcome),
			zap.Int("k", r.K),
			zap.Int("excluded", len(r.Excluded)),
		)
	}
	for _, e := range errs {
		recorder.PoolingRun(string(opts.Model), "error")
		var pe *pooling.PoolError
		if errors.As(e, &pe) {
			for _, x := range pe.Excluded {
				logger.Info("effect excluded", zap.String("outcome", pe.Outcome), zap.String("study", x.StudyID), zap.String("reason", x.Reason))
			}
		}
		fmt.Fprintf(os.Stderr, "failed   %v\n", e)
	}

	if outPath != "" {
		if err := writeOutput(outPath, results); err != nil {
			return err
		}
		logger.Info("wrote pooled results", zap.String("path", outPath))
	}
	if save {
		if err := savePooled(context.Background(), cfg.Ledger, results); err != nil {
			return err
		}
	}

	if jsonOutput {
		if err := encodeJSON(results); err != nil {
			return err
		}
	} else {
		printPooled(os.Stdout, results)
	}

	if failed := len(bad) + len(errs); failed > 0 {
		return fmt.Errorf("%d effect record(s) or outcome(s) failed", failed)
	}
	return nil
}

func savePooled(ctx context.Context, cfg types.LedgerConfig, results []types.PooledResult) error {
	store, err := ledger.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SavePooled(ctx, results); err != nil {
		return err
	}
	logger.Info("saved pooled results to ledger", zap.String("dir", cfg.Dir), zap.Int("outcomes", len(results)))
	return nil
}

func printPooled(w io.Writer, results []types.PooledResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No outcomes pooled.")
		return
	}
	fmt.Fprintf(w, "%-24s  %-6s  %-6s  %3s  %10s  %-23s  %6s  %8s\n",
		"Outcome", "Type", "Model", "k", "Estimate", "95% CI", "I2 %", "tau2")
	fmt.Fprintln(w, strings.Repeat("-", 98))
	for _, r := range results {
		name := r.Outcome
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%-24s  %-6s  %-6s  %3d  %10.4f  [%9.4f, %9.4f]  %6s  %8s\n",
			name, r.EffectType, r.Model, r.K, r.Estimate, r.CILow, r.CIHigh,
			optional(r.I2, "%.1f"), optional(r.Tau2, "%.4f"))
		if r.Unit != "" {
			fmt.Fprintf(w, "  unit: %s\n", r.Unit)
		}
		for _, x := range r.Excluded {
			fmt.Fprintf(w, "  excluded %s: %s\n", x.StudyID, x.Reason)
		}
	}
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func init() {
	poolCmd.Flags().String("effects-dir", "extraction", "directory of extraction files")
	poolCmd.Flags().String("model", string(types.ModelRandom), "pooling model: fixed or random")
	poolCmd.Flags().String("outcome", "", "pool only this outcome")
	poolCmd.Flags().Int("min-k", 1, "minimum number of usable studies per outcome")
	poolCmd.Flags().Float64("z", pooling.DefaultZ, "normal quantile for confidence intervals")
	poolCmd.Flags().String("out", "", "also write results to this file (.json or .yaml)")
	poolCmd.Flags().Bool("json", false, "print results as JSON")
	poolCmd.Flags().Bool("save", false, "record results in the ledger")
	bindFlag("pooling.model", poolCmd.Flags().Lookup("model"))
	bindFlag("pooling.min_k", poolCmd.Flags().Lookup("min-k"))
	bindFlag("pooling.z", poolCmd.Flags().Lookup("z"))

	rootCmd.AddCommand(poolCmd)
}
