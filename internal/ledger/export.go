// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/prisma"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Export file names written under the ledger directory.
const (
	ExportYAMLFile = "export.yaml"
	ExportJSONFile = "export.json"
)

// Snapshot is the exported state of the ledger. PRISMA counters are
// recomputed from the decisions at export time.
type Snapshot struct {
	ExportedAt      time.Time                    `json:"exported_at" yaml:"exported_at"`
	Prisma          types.PrismaCounters         `json:"prisma" yaml:"prisma"`
	Decisions       []types.DecisionRecord       `json:"decisions" yaml:"decisions"`
	Classifications []types.ClassificationRecord `json:"classifications" yaml:"classifications"`
	Pooled          []types.PooledResult         `json:"pooled" yaml:"pooled"`
}

// Snapshot collects the current ledger contents.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	decisions, err := s.AllDecisions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying for export: %w", err)
	}
	classes, err := s.Classifications(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying for export: %w", err)
	}
	pooled, err := s.PooledResults(ctx, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying for export: %w", err)
	}
	return Snapshot{
		ExportedAt:      time.Now().UTC(),
		Prisma:          prisma.Count(decisions),
		Decisions:       decisions,
		Classifications: classes,
		Pooled:          pooled,
	}, nil
}

// ExportYAML writes the snapshot to <dir>/export.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, ExportYAMLFile)
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the snapshot to <dir>/export.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dir, ExportJSONFile)
	return path, os.WriteFile(path, data, 0o644)
}
