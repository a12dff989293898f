// Package store persists bulk task results to Postgres through a pgx pool.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool scoped to the v1_task_result table.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, connString string) (*Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(openCtx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(openCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(openCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// migrate creates v1_task_result if it doesn't exist yet: one row per
// completed bulk task, keyed by job_id and backend_name, with either result
// or error populated.
func (s *Store) migrate(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS v1_task_result (
		id SERIAL PRIMARY KEY,
		payload JSONB NOT NULL,
		job_id INT NOT NULL,
		backend_name TEXT NOT NULL,
		result JSONB,
		error TEXT
	);`

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migration failed (v1_task_result): %w", err)
	}
	return nil
}

// SaveSuccess inserts a row for a task whose pipeline run completed without
// a task-level error.
func (s *Store) SaveSuccess(ctx context.Context, payload interface{}, jobID int, backendName string, result interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO v1_task_result (payload, job_id, backend_name, result)
		VALUES ($1, $2, $3, $4)
	`, payloadJSON, jobID, backendName, resultJSON)
	if err != nil {
		return fmt.Errorf("insert v1_task_result (success): %w", err)
	}
	return nil
}

// SaveFailure inserts a row for a task that failed at the worker boundary,
// populating the error column instead of result.
func (s *Store) SaveFailure(ctx context.Context, payload interface{}, jobID int, backendName string, taskErr error) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO v1_task_result (payload, job_id, backend_name, error)
		VALUES ($1, $2, $3, $4)
	`, payloadJSON, jobID, backendName, taskErr.Error())
	if err != nil {
		return fmt.Errorf("insert v1_task_result (failure): %w", err)
	}
	return nil
}
