// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decisionlog stores screening output as append-only JSON Lines.
// Each stream is a set of records; order carries no meaning.
package decisionlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Stream file names inside an output directory.
const (
	TADecisionsFile     = "ta_decisions.jsonl"
	FTDecisionsFile     = "ft_decisions.jsonl"
	ClassificationsFile = "classifications.jsonl"
)

// maxLineBytes bounds a single record line.
const maxLineBytes = 4 << 20

// Writer appends records to one stream. Each record is encoded first and
// written as a single complete line, so concurrent callers never
// interleave partial records.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewWriter wraps w. The caller keeps ownership of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create opens path for appending, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Writer{w: f, c: f}, nil
}

// Append encodes v and writes it as one line.
func (l *Writer) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

// WriteDecision appends a decision record.
func (l *Writer) WriteDecision(rec types.DecisionRecord) error {
	return l.Append(rec)
}

// WriteClassification appends a classification record.
func (l *Writer) WriteClassification(rec types.ClassificationRecord) error {
	return l.Append(rec)
}

// Close closes the underlying file when the writer opened it.
func (l *Writer) Close() error {
	if l.c == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Close()
}

// ReadDecisions replays a decision log. Malformed lines are returned as
// RecordErrors and skipped; the error result is reserved for I/O failures.
func ReadDecisions(path string) ([]types.DecisionRecord, []error, error) {
	return readFile(path, func(r types.DecisionRecord) error {
		if r.CitationID == "" {
			return errors.New("missing id")
		}
		if r.Stage != types.StageTitleAbstract && r.Stage != types.StageFullText {
			return fmt.Errorf("unknown stage %q", r.Stage)
		}
		switch r.Decision {
		case types.DecisionInclude, types.DecisionMaybe, types.DecisionExclude:
		default:
			return fmt.Errorf("unknown decision %q", r.Decision)
		}
		return nil
	})
}

// ReadClassifications replays a classification log.
func ReadClassifications(path string) ([]types.ClassificationRecord, []error, error) {
	return readFile(path, func(r types.ClassificationRecord) error {
		if r.CitationID == "" {
			return errors.New("missing id")
		}
		return nil
	})
}

// ReadCitations reads citations from a JSON Lines file, validating each.
func ReadCitations(path string) ([]types.Citation, []error, error) {
	return readFile(path, func(c types.Citation) error {
		return c.Validate()
	})
}

func readFile[T any](path string, validate func(T) error) ([]T, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path), validate)
}

// Read decodes one JSON value per non-blank line of r. name prefixes the
// line numbers in RecordErrors.
func Read[T any](r io.Reader, name string, validate func(T) error) ([]T, []error, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		out     []T
		badRecs []error
		line    int
	)
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			badRecs = append(badRecs, lineError(name, line, err.Error()))
			continue
		}
		if validate != nil {
			if err := validate(v); err != nil {
				badRecs = append(badRecs, lineError(name, line, err.Error()))
				continue
			}
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return out, badRecs, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, badRecs, nil
}

func lineError(name string, line int, msg string) *types.RecordError {
	return &types.RecordError{ID: name + ":" + strconv.Itoa(line), Message: msg}
}
