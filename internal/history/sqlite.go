package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite score-run store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a ScoreRun struct.
func scanRun(s scanner) (*ScoreRun, error) {
	run := &ScoreRun{}
	var componentsJSON string

	err := s.Scan(
		&run.ID, &run.PatientID, &run.ScoreKind, &run.Total,
		&run.RiskLabel, &componentsJSON, &run.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	if componentsJSON != "" {
		if err := json.Unmarshal([]byte(componentsJSON), &run.Components); err != nil {
			return nil, fmt.Errorf("failed to decode components: %w", err)
		}
	}
	return run, nil
}

func encodeComponents(components []domain.ScoreComponent) (string, error) {
	if components == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(components)
	if err != nil {
		return "", fmt.Errorf("failed to encode components: %w", err)
	}
	return string(raw), nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS score_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id TEXT NOT NULL,
		score_kind TEXT NOT NULL,
		total INTEGER NOT NULL,
		risk_label TEXT NOT NULL,
		components TEXT NOT NULL DEFAULT '[]',
		computed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_patient_id ON score_runs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_score_kind ON score_runs(score_kind);
	CREATE INDEX IF NOT EXISTS idx_computed_at ON score_runs(computed_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save appends a score run to the history.
func (s *SQLiteStore) Save(ctx context.Context, run *ScoreRun) error {
	if run.ComputedAt.IsZero() {
		run.ComputedAt = time.Now()
	}

	componentsJSON, err := encodeComponents(run.Components)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO score_runs (
			patient_id, score_kind, total, risk_label, components, computed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.PatientID,
		run.ScoreKind,
		run.Total,
		run.RiskLabel,
		componentsJSON,
		run.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	run.ID = id

	return nil
}

// Latest returns the most recent run for a patient and score kind.
func (s *SQLiteStore) Latest(ctx context.Context, patientID string, scoreKind string) (*ScoreRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		WHERE patient_id = ? AND score_kind = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`, patientID, scoreKind)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return run, nil
}

// ListByPatient returns a patient's runs, newest first, with pagination.
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ScoreRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		WHERE patient_id = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*ScoreRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// Count returns the total number of recorded runs.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM score_runs").Scan(&count)
	return count, err
}

// Delete removes a run by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM score_runs WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all runs to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		ORDER BY computed_at DESC, id DESC
		LIMIT ?
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var all []*ScoreRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		all = append(all, run)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	export := &HistoryExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Runs:       all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports runs from a JSON reader. Runs whose patient, kind and
// computation time already exist are skipped.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, run := range export.Runs {
		var existing int64
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM score_runs WHERE patient_id = ? AND score_kind = ? AND computed_at = ?",
			run.PatientID, run.ScoreKind, run.ComputedAt,
		).Scan(&existing)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing > 0 {
			skipped++
			continue
		}

		run.ID = 0
		if err := s.Save(ctx, run); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
