package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
)

// PostgresSink stores one row per group and run.
type PostgresSink struct {
	db     *sql.DB
	ownsDB bool
}

// OpenPostgresSink connects to databaseURL and prepares the results table.
func OpenPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sink, err := NewPostgresSink(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	sink.ownsDB = true
	return sink, nil
}

// NewPostgresSink uses an existing connection pool. Close does not close db.
func NewPostgresSink(ctx context.Context, db *sql.DB) (*PostgresSink, error) {
	sink := &PostgresSink{db: db}
	if err := sink.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure results table: %w", err)
	}
	return sink, nil
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS visionbatch_results (
			run_id TEXT NOT NULL,
			group_name TEXT NOT NULL,
			status TEXT NOT NULL,
			requests INTEGER NOT NULL DEFAULT 0,
			operation TEXT,
			output_uri TEXT,
			error TEXT,
			submitted_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			duration_ms BIGINT,
			recorded_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (run_id, group_name)
		)
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create visionbatch_results table: %w", err)
	}
	return nil
}

// Record upserts the result for (runID, group).
func (s *PostgresSink) Record(ctx context.Context, runID string, res batch.GroupResult) error {
	query := `
		INSERT INTO visionbatch_results
			(run_id, group_name, status, requests, operation, output_uri, error, submitted_at, completed_at, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (run_id, group_name) DO UPDATE
		SET status = EXCLUDED.status,
		    requests = EXCLUDED.requests,
		    operation = EXCLUDED.operation,
		    output_uri = EXCLUDED.output_uri,
		    error = EXCLUDED.error,
		    submitted_at = EXCLUDED.submitted_at,
		    completed_at = EXCLUDED.completed_at,
		    duration_ms = EXCLUDED.duration_ms,
		    recorded_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		runID,
		res.Group,
		string(res.Status),
		res.Requests,
		nullString(res.Operation),
		nullString(res.OutputURI),
		nullString(res.Error),
		nullTime(res.SubmittedAt),
		nullTime(res.CompletedAt),
		res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result for %s: %w", res.Group, err)
	}
	return nil
}

// Results returns the stored results of a run ordered by group.
func (s *PostgresSink) Results(ctx context.Context, runID string) ([]batch.GroupResult, error) {
	query := `
		SELECT group_name, status, requests, operation, output_uri, error, submitted_at, completed_at, duration_ms
		FROM visionbatch_results
		WHERE run_id = $1
		ORDER BY group_name
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []batch.GroupResult
	for rows.Next() {
		var (
			res                  batch.GroupResult
			status               string
			operation, uri, msg  sql.NullString
			submitted, completed sql.NullTime
			durationMs           sql.NullInt64
		)
		if err := rows.Scan(&res.Group, &status, &res.Requests, &operation, &uri, &msg,
			&submitted, &completed, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Status = batch.Status(status)
		res.Operation = operation.String
		res.OutputURI = uri.String
		res.Error = msg.String
		res.SubmittedAt = submitted.Time
		res.CompletedAt = completed.Time
		res.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

// Close releases the connection pool if the sink opened it.
func (s *PostgresSink) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
