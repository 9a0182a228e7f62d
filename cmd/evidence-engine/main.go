// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the evidence-engine CLI.
// Each pipeline stage is a subcommand: screen ta, screen ft, prisma, pool
// and ledger. Stages communicate through JSONL decision logs so any stage
// can be rerun on its own.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/metrics"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger is built from the log.* settings before any command runs.
	logger = zap.NewNop()

	// recorder collects counters for the run; --metrics-file exports them.
	recorder = metrics.New()
)

// rootCmd is the base command for the evidence-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "evidence-engine",
	Short: "Screening, PRISMA accounting and meta-analysis for systematic reviews",
	Long: `evidence-engine screens citations for a systematic review and pools the
extracted effect estimates.

Title/abstract screening (screen ta) combines topic rule packs with a
relevance scorer; full-text screening (screen ft) scores PICO eligibility
against text supplied by an extraction collaborator. Decisions are appended
to JSONL logs from which prisma derives the study-selection counts, and pool
combines per-study effects under a fixed- or random-effects model. The
ledger command keeps a SQLite record of all of it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", zap.String("path", f))
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./evidence-engine.yaml or ~/.config/evidence-engine/evidence-engine.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", logging.FormatConsole, "log format: console or json")
	pf.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.String("ledger-dir", "ledger", "directory holding ledger.db")

	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.format", pf.Lookup("log-format"))
	bindFlag("ledger.dir", pf.Lookup("ledger-dir"))
	setDefaults()
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("evidence-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "evidence-engine"))
		}
	}

	viper.SetEnvPrefix("EVIDENCE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
			os.Exit(1)
		}
	}
}

func main() {
	err := rootCmd.Execute()
	if path, _ := rootCmd.PersistentFlags().GetString("metrics-file"); path != "" {
		if werr := recorder.WriteTextfile(path); werr != nil {
			fmt.Fprintln(os.Stderr, "writing metrics:", werr)
		}
	}
	logging.Sync(logger)
	if err != nil {
		os.Exit(1)
	}
}
