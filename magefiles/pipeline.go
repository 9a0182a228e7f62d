//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline runs the review stages against the directories created by Init.
// PROTOCOL names the protocol file (default protocol.yaml).
type Pipeline mg.Namespace

func protocolFile() string {
	if p := os.Getenv("PROTOCOL"); p != "" {
		return p
	}
	return "protocol.yaml"
}

// Screen runs title/abstract screening over citations/citations.jsonl.
func (Pipeline) Screen() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "screen", "ta",
		"--citations", filepath.Join("citations", "citations.jsonl"),
		"--protocol", protocolFile(),
		"--out-dir", "decisions")
}

// Fulltext runs full-text screening with Markdown files from fulltext/.
func (Pipeline) Fulltext() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "screen", "ft",
		"--protocol", protocolFile(),
		"--out-dir", "decisions",
		"--fulltext-dir", "fulltext")
}

// Prisma writes output/prisma.yaml from the decision logs.
func (Pipeline) Prisma() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "prisma",
		"--ta-decisions", filepath.Join("decisions", "ta_decisions.jsonl"),
		"--ft-decisions", filepath.Join("decisions", "ft_decisions.jsonl"),
		"--out", filepath.Join("output", "prisma.yaml"))
}

// Pool pools extraction/ into output/pooled.yaml and records it in the ledger.
func (Pipeline) Pool() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "pool",
		"--effects-dir", "extraction",
		"--out", filepath.Join("output", "pooled.yaml"),
		"--save")
}

// All runs every stage in order and ingests the logs into the ledger.
func (p Pipeline) All() error {
	mg.SerialDeps(p.Screen, p.Fulltext, p.Prisma, p.Pool)
	if err := sh.RunV(binPath, "ledger", "ingest", "--logs-dir", "decisions"); err != nil {
		return err
	}
	fmt.Println("Pipeline complete.")
	return nil
}
