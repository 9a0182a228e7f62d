// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists screening decisions, classifications and pooled
// results in SQLite. Decisions are append-only: a citation has at most one
// row per stage and rows are never updated.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const dbFile = "ledger.db"

// ErrDuplicate reports a decision or classification that is already recorded.
var ErrDuplicate = errors.New("already recorded")

// Store manages the ledger database.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates dir/ledger.db and its schema.
func Open(cfg types.LedgerConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("ledger.dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: cfg.Dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			citation_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			decision TEXT NOT NULL,
			reason TEXT NOT NULL,
			score REAL NOT NULL,
			threshold REAL NOT NULL,
			rules TEXT,
			human_review INTEGER NOT NULL DEFAULT 0,
			checks TEXT,
			run_id TEXT,
			ts TEXT NOT NULL,
			UNIQUE(citation_id, stage)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_stage ON decisions(stage, decision)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id)`,
		`CREATE TABLE IF NOT EXISTS classifications (
			citation_id TEXT PRIMARY KEY,
			article_type TEXT NOT NULL,
			study_design TEXT,
			species TEXT,
			data_types TEXT,
			confidence REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pooled_results (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			outcome TEXT NOT NULL,
			effect_type TEXT NOT NULL,
			model TEXT NOT NULL,
			estimate REAL NOT NULL,
			ci_low REAL NOT NULL,
			ci_high REAL NOT NULL,
			k INTEGER NOT NULL,
			computed_at TEXT NOT NULL,
			result TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pooled_run ON pooled_results(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// AppendSummary holds counts from an append call.
type AppendSummary struct {
	Inserted   int
	Duplicates int
}

// AppendDecisions inserts records in one transaction. Records whose
// (citation, stage) is already present are skipped and reported as
// ErrDuplicate errors; the error result is reserved for database failures.
func (s *Store) AppendDecisions(ctx context.Context, recs []types.DecisionRecord) (AppendSummary, []error, error) {
	var sum AppendSummary
	var dups []error

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO decisions (citation_id, stage, decision, reason, score, threshold, rules, human_review, checks, run_id, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(citation_id, stage) DO NOTHING`)
	if err != nil {
		return sum, nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		rulesJSON, _ := json.Marshal(r.Rules)
		var checks sql.NullString
		if r.Checks != nil {
			data, _ := json.Marshal(r.Checks)
			checks = sql.NullString{String: string(data), Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			r.CitationID, string(r.Stage), string(r.Decision), string(r.Reason),
			r.Score, r.Threshold, string(rulesJSON), r.HumanReview, checks,
			r.RunID, r.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return sum, dups, fmt.Errorf("inserting decision %s/%s: %w", r.CitationID, r.Stage, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			sum.Duplicates++
			dups = append(dups, fmt.Errorf("%s %s decision: %w", r.CitationID, r.Stage, ErrDuplicate))
			continue
		}
		sum.Inserted++
	}
	if err := tx.Commit(); err != nil {
		return AppendSummary{}, nil, fmt.Errorf("committing decisions: %w", err)
	}
	return sum, dups, nil
}

// AppendClassifications inserts one classification per citation; repeats
// are skipped like duplicate decisions.
func (s *Store) AppendClassifications(ctx context.Context, recs []types.ClassificationRecord) (AppendSummary, []error, error) {
	var sum AppendSummary
	var dups []error

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO classifications (citation_id, article_type, study_design, species, data_types, confidence)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(citation_id) DO NOTHING`)
	if err != nil {
		return sum, nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range recs {
		speciesJSON, _ := json.Marshal(c.Species)
		dataJSON, _ := json.Marshal(c.DataTypes)
		res, err := stmt.ExecContext(ctx,
			c.CitationID, c.ArticleType, c.StudyDesign, string(speciesJSON), string(dataJSON), c.Confidence)
		if err != nil {
			return sum, dups, fmt.Errorf("inserting classification %s: %w", c.CitationID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			sum.Duplicates++
			dups = append(dups, fmt.Errorf("%s classification: %w", c.CitationID, ErrDuplicate))
			continue
		}
		sum.Inserted++
	}
	if err := tx.Commit(); err != nil {
		return AppendSummary{}, nil, fmt.Errorf("committing classifications: %w", err)
	}
	return sum, dups, nil
}

// Filter narrows a decision query. Zero fields match everything.
type Filter struct {
	Stage      types.Stage
	Decision   types.Decision
	Reason     types.Reason
	RunID      string
	CitationID string
}

// Decisions returns matching decisions ordered by citation and stage.
func (s *Store) Decisions(ctx context.Context, f Filter) ([]types.DecisionRecord, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT citation_id, stage, decision, reason, score, threshold, rules, human_review, checks, run_id, ts
		FROM decisions WHERE 1=1`)
	for _, c := range []struct {
		col string
		val string
	}{
		{"stage", string(f.Stage)},
		{"decision", string(f.Decision)},
		{"reason", string(f.Reason)},
		{"run_id", f.RunID},
		{"citation_id", f.CitationID},
	} {
		if c.val != "" {
			qb.WriteString(" AND " + c.col + " = ?")
			args = append(args, c.val)
		}
	}
	qb.WriteString(` ORDER BY citation_id, CASE stage WHEN 'title_abstract' THEN 0 ELSE 1 END`)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []types.DecisionRecord
	for rows.Next() {
		var (
			r                       types.DecisionRecord
			stage, decision, reason string
			rulesJSON, checksJSON   sql.NullString
			runID                   sql.NullString
			ts                      string
		)
		if err := rows.Scan(&r.CitationID, &stage, &decision, &reason, &r.Score, &r.Threshold,
			&rulesJSON, &r.HumanReview, &checksJSON, &runID, &ts); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		r.Stage, r.Decision, r.Reason = types.Stage(stage), types.Decision(decision), types.Reason(reason)
		r.RunID = runID.String
		if rulesJSON.Valid && rulesJSON.String != "null" {
			if err := json.Unmarshal([]byte(rulesJSON.String), &r.Rules); err != nil {
				return nil, fmt.Errorf("decoding rules for %s: %w", r.CitationID, err)
			}
		}
		if checksJSON.Valid {
			r.Checks = &types.EligibilityChecks{}
			if err := json.Unmarshal([]byte(checksJSON.String), r.Checks); err != nil {
				return nil, fmt.Errorf("decoding checks for %s: %w", r.CitationID, err)
			}
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp for %s: %w", r.CitationID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Classifications returns all classifications ordered by citation.
func (s *Store) Classifications(ctx context.Context) ([]types.ClassificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT citation_id, article_type, study_design, species, data_types, confidence
		 FROM classifications ORDER BY citation_id`)
	if err != nil {
		return nil, fmt.Errorf("querying classifications: %w", err)
	}
	defer rows.Close()

	var out []types.ClassificationRecord
	for rows.Next() {
		var (
			c                     types.ClassificationRecord
			design                sql.NullString
			speciesJSON, dataJSON string
		)
		if err := rows.Scan(&c.CitationID, &c.ArticleType, &design, &speciesJSON, &dataJSON, &c.Confidence); err != nil {
			return nil, fmt.Errorf("scanning classification: %w", err)
		}
		c.StudyDesign = design.String
		if err := json.Unmarshal([]byte(speciesJSON), &c.Species); err != nil {
			return nil, fmt.Errorf("decoding species for %s: %w", c.CitationID, err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &c.DataTypes); err != nil {
			return nil, fmt.Errorf("decoding data types for %s: %w", c.CitationID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SavePooled records pooled results. Each run adds rows; earlier runs are
// kept for audit.
func (s *Store) SavePooled(ctx context.Context, results []types.PooledResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding pooled result %s: %w", r.Outcome, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pooled_results (run_id, outcome, effect_type, model, estimate, ci_low, ci_high, k, computed_at, result)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Outcome, string(r.EffectType), string(r.Model),
			r.Estimate, r.CILow, r.CIHigh, r.K,
			r.ComputedAt.UTC().Format(time.RFC3339Nano), string(payload),
		)
		if err != nil {
			return fmt.Errorf("inserting pooled result %s: %w", r.Outcome, err)
		}
	}
	return tx.Commit()
}

// PooledResults returns the results of one run, or of the most recent run
// when runID is empty, ordered by outcome.
func (s *Store) PooledResults(ctx context.Context, runID string) ([]types.PooledResult, error) {
	if runID == "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(run_id, '') FROM pooled_results ORDER BY rowid DESC LIMIT 1`).Scan(&runID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding latest pooling run: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM pooled_results WHERE COALESCE(run_id, '') = ? ORDER BY outcome, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying pooled results: %w", err)
	}
	defer rows.Close()

	var out []types.PooledResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning pooled result: %w", err)
		}
		var r types.PooledResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decoding pooled result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
