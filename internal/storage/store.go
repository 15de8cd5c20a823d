// Package storage persists benchmark runs and tracks the promoted baseline.
package storage

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

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/ragbench/pkg/models"
)

var (
	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrGatesFailed is returned when promoting a run whose quality gates failed.
	ErrGatesFailed = errors.New("run did not pass quality gates")
	// ErrNoBaseline is returned when no run has been promoted yet.
	ErrNoBaseline = errors.New("no baseline promoted")
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	dataset_size   INTEGER NOT NULL,
	completed      INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	gates_passed   INTEGER NOT NULL,
	precision_at_5 REAL NOT NULL,
	metrics        TEXT NOT NULL,
	artifact       TEXT NOT NULL,
	is_baseline    INTEGER NOT NULL DEFAULT 0,
	promoted_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
`

// RunSummary is a row of the run history.
type RunSummary struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	DatasetSize  int       `json:"dataset_size"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	GatesPassed  bool      `json:"quality_gates_passed"`
	PrecisionAt5 float64   `json:"precision_at_5"`
	IsBaseline   bool      `json:"is_baseline"`
}

// Baseline is the promoted run used for regression gating.
type Baseline struct {
	RunID      string                `json:"run_id"`
	PromotedAt time.Time             `json:"promoted_at"`
	Metrics    models.QualityMetrics `json:"metrics"`
}

// RunStore stores run artifacts in SQLite.
type RunStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*RunStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases database resources.
func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores an artifact. Saving an existing run ID replaces it and
// keeps its baseline flag.
func (s *RunStore) SaveRun(ctx context.Context, a *models.ResultArtifact) error {
	if a == nil {
		return nil
	}
	if a.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	metricsJSON, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	artifactJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, dataset_size, completed, failed, gates_passed, precision_at_5, metrics, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			dataset_size = excluded.dataset_size,
			completed = excluded.completed,
			failed = excluded.failed,
			gates_passed = excluded.gates_passed,
			precision_at_5 = excluded.precision_at_5,
			metrics = excluded.metrics,
			artifact = excluded.artifact
	`,
		a.RunID,
		a.Timestamp.UTC().Format(timeLayout),
		a.DatasetSize,
		a.Completed,
		a.Failed,
		boolToInt(a.QualityGatesPassed),
		a.Metrics.PrecisionAt5,
		string(metricsJSON),
		string(artifactJSON),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun returns the stored artifact for id.
func (s *RunStore) GetRun(ctx context.Context, id string) (*models.ResultArtifact, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT artifact FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var a models.ResultArtifact
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &a, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// defaults to 20.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, dataset_size, completed, failed, gates_passed, precision_at_5, is_baseline
		FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r           RunSummary
			createdAt   string
			gatesPassed int
			isBaseline  int
		)
		if err := rows.Scan(&r.ID, &createdAt, &r.DatasetSize, &r.Completed, &r.Failed, &gatesPassed, &r.PrecisionAt5, &isBaseline); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Timestamp, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse run time: %w", err)
		}
		r.GatesPassed = gatesPassed != 0
		r.IsBaseline = isBaseline != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Promote makes run id the baseline. Only runs that passed their quality
// gates can be promoted, and the previous baseline is demoted in the same
// transaction.
func (s *RunStore) Promote(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var gatesPassed int
	err = tx.QueryRowContext(ctx, `SELECT gates_passed FROM runs WHERE id = ?`, id).Scan(&gatesPassed)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if gatesPassed == 0 {
		return fmt.Errorf("promote %s: %w", id, ErrGatesFailed)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET is_baseline = 0, promoted_at = NULL WHERE is_baseline = 1`); err != nil {
		return fmt.Errorf("demote baseline: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET is_baseline = 1, promoted_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id); err != nil {
		return fmt.Errorf("promote run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit promote: %w", err)
	}
	return nil
}

// Baseline returns the promoted run's metrics.
func (s *RunStore) Baseline(ctx context.Context) (*Baseline, error) {
	var (
		b          Baseline
		promotedAt sql.NullString
		payload    string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, promoted_at, metrics FROM runs WHERE is_baseline = 1`).
		Scan(&b.RunID, &promotedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	if promotedAt.Valid {
		if b.PromotedAt, err = time.Parse(timeLayout, promotedAt.String); err != nil {
			return nil, fmt.Errorf("parse promotion time: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(payload), &b.Metrics); err != nil {
		return nil, fmt.Errorf("decode baseline metrics: %w", err)
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
