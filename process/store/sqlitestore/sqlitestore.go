// Package sqlitestore provides a SQLite-backed store.Manager, the default
// durable backend for single-node deployments and local tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flowkernel/flowkernel/process/store"
	_ "modernc.org/sqlite"
)

// Store is a SQLite implementation of store.Manager.
//
// Schema:
//   - processes: process snapshots keyed by (step_id, run_id)
//   - step_state: step state metadata keyed by (step_id, run_id)
//   - edge_data: edge-group accumulation data keyed by (step_id, run_id)
//
// Uses WAL mode so concurrent superstep dispatch goroutines can read
// while a snapshot write is in flight.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// New opens (creating if necessary) a SQLite database at path and
// migrates its schema. Pass ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes (
			step_id TEXT NOT NULL, run_id TEXT NOT NULL, data TEXT NOT NULL,
			PRIMARY KEY (step_id, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS step_state (
			step_id TEXT NOT NULL, run_id TEXT NOT NULL, data TEXT NOT NULL,
			PRIMARY KEY (step_id, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS edge_data (
			step_id TEXT NOT NULL, run_id TEXT NOT NULL,
			is_group_edge INTEGER NOT NULL, data TEXT NOT NULL,
			PRIMARY KEY (step_id, run_id)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlitestore: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveProcess(ctx context.Context, stepID, runID string, processInfo any) error {
	data, err := json.Marshal(processInfo)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal process: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processes (step_id, run_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(step_id, run_id) DO UPDATE SET data=excluded.data`,
		stepID, runID, string(data))
	return err
}

func (s *Store) GetProcess(ctx context.Context, stepID, runID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM processes WHERE step_id = ? AND run_id = ?`, stepID, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal process: %w", err)
	}
	return v, nil
}

func (s *Store) SaveStepState(ctx context.Context, stepID, runID string, metadata any) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal step state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_state (step_id, run_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(step_id, run_id) DO UPDATE SET data=excluded.data`,
		stepID, runID, string(data))
	return err
}

func (s *Store) GetStepState(ctx context.Context, stepID, runID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM step_state WHERE step_id = ? AND run_id = ?`, stepID, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal step state: %w", err)
	}
	return v, nil
}

func (s *Store) SaveStepEdgeData(ctx context.Context, stepID, runID string, data map[string]map[string]any, isGroupEdge bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal edge data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edge_data (step_id, run_id, is_group_edge, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(step_id, run_id) DO UPDATE SET is_group_edge=excluded.is_group_edge, data=excluded.data`,
		stepID, runID, isGroupEdge, string(raw))
	return err
}

func (s *Store) GetStepEdgeData(ctx context.Context, stepID, runID string) (bool, map[string]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	var isGroupEdge bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_group_edge, data FROM edge_data WHERE step_id = ? AND run_id = ?`, stepID, runID).
		Scan(&isGroupEdge, &raw)
	if err == sql.ErrNoRows {
		return false, nil, store.ErrNotFound
	}
	if err != nil {
		return false, nil, err
	}
	data := make(map[string]map[string]any)
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return false, nil, fmt.Errorf("sqlitestore: unmarshal edge data: %w", err)
	}
	return isGroupEdge, data, nil
}

func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
