package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL score-run store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL score-run store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save appends a score run to the history.
func (s *PostgresStore) Save(ctx context.Context, run *ScoreRun) error {
	if run.ComputedAt.IsZero() {
		run.ComputedAt = time.Now()
	}

	componentsJSON, err := encodeComponents(run.Components)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO score_runs (
			patient_id, score_kind, total, risk_label, components, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		run.PatientID,
		run.ScoreKind,
		run.Total,
		run.RiskLabel,
		componentsJSON,
		run.ComputedAt,
	).Scan(&run.ID)

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// Latest returns the most recent run for a patient and score kind.
func (s *PostgresStore) Latest(ctx context.Context, patientID string, scoreKind string) (*ScoreRun, error) {
	query := `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		WHERE patient_id = $1 AND score_kind = $2
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, patientID, scoreKind))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListByPatient returns a patient's runs, newest first, with pagination.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ScoreRun, error) {
	query := `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		WHERE patient_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM score_runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM score_runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all runs to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	query := `
		SELECT id, patient_id, score_kind, total, risk_label, components, computed_at
		FROM score_runs
		ORDER BY computed_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, pgMaxExportLimit)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, run := range export.Runs {
		var existing int64
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM score_runs WHERE patient_id = $1 AND score_kind = $2 AND computed_at = $3",
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
