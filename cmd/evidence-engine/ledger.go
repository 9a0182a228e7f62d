// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/ledger"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the SQLite decision ledger (ingest, export, show)",
	Long: `Ledger keeps screening decisions, classifications and pooled results in
a SQLite database under --ledger-dir. Decisions are append-only: a citation
has at most one decision per stage and recorded decisions never change.`,
}

// --- ingest subcommand ---

var ledgerIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load JSONL decision and classification logs into the ledger",
	Long: `Ingest reads ta_decisions.jsonl, ft_decisions.jsonl and
classifications.jsonl from --logs-dir. Records already in the ledger are
reported as duplicates and left unchanged.`,
	RunE: runLedgerIngest,
}

func runLedgerIngest(cmd *cobra.Command, args []string) error {
	logsDir, _ := cmd.Flags().GetString("logs-dir")

	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), logsDir, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Malformed > 0 {
		return fmt.Errorf("%d malformed record(s)", summary.Malformed)
	}
	return nil
}

// --- export subcommand ---

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to YAML or JSON",
	Long: `Export writes decisions, classifications, the latest pooled results
and PRISMA counts recomputed from the decisions to export.yaml or
export.json in the ledger directory.`,
	RunE: runLedgerExport,
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(context.Background())
	case "json":
		path, err = store.ExportJSON(context.Background())
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

// --- show subcommand ---

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List recorded decisions or pooled results",
	RunE:  runLedgerShow,
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	stage, _ := cmd.Flags().GetString("stage")
	decision, _ := cmd.Flags().GetString("decision")
	reason, _ := cmd.Flags().GetString("reason")
	runID, _ := cmd.Flags().GetString("run")
	id, _ := cmd.Flags().GetString("id")
	pooled, _ := cmd.Flags().GetBool("pooled")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	if pooled {
		results, err := store.PooledResults(ctx, runID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return encodeJSON(results)
		}
		printPooled(os.Stdout, results)
		return nil
	}

	recs, err := store.Decisions(ctx, ledger.Filter{
		Stage:      types.Stage(stage),
		Decision:   types.Decision(decision),
		Reason:     types.Reason(reason),
		RunID:      runID,
		CitationID: id,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return encodeJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No decisions found.")
		return nil
	}
	fmt.Printf("%-24s  %-14s  %-8s  %-20s  %5s  %s\n", "ID", "Stage", "Decision", "Reason", "Score", "Time")
	for _, r := range recs {
		cid := r.CitationID
		if len(cid) > 24 {
			cid = cid[:21] + "..."
		}
		fmt.Printf("%-24s  %-14s  %-8s  %-20s  %5.2f  %s\n",
			cid, r.Stage, r.Decision, r.Reason, r.Score, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n%d decisions\n", len(recs))
	return nil
}

// --- shared helpers ---

func openLedger() (*ledger.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Ledger)
}

func encodeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ledgerIngestCmd.Flags().String("logs-dir", ".", "directory containing the JSONL logs")

	ledgerExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	ledgerShowCmd.Flags().String("stage", "", "filter by stage: title_abstract or full_text")
	ledgerShowCmd.Flags().String("decision", "", "filter by decision: include, maybe, exclude")
	ledgerShowCmd.Flags().String("reason", "", "filter by reason")
	ledgerShowCmd.Flags().String("run", "", "filter by run ID")
	ledgerShowCmd.Flags().String("id", "", "filter by citation ID")
	ledgerShowCmd.Flags().Bool("pooled", false, "show pooled results (latest run unless --run)")
	ledgerShowCmd.Flags().Bool("json", false, "output as JSON")

	ledgerCmd.AddCommand(ledgerIngestCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)

	rootCmd.AddCommand(ledgerCmd)
}
