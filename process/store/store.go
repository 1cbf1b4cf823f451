// Package store provides persistence implementations for the orchestration
// runtime's durable snapshots: process/step state and edge-group partial
// join data.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when nothing is stored under a requested
// (stepID, runID) key.
var ErrNotFound = errors.New("store: not found")

// Manager is the storage manager contract consumed by the orchestrator,
// step executor, and edge-group processor. It is pure glue: callers
// invoke it at well-defined checkpoints (after invocation success, after
// partial group accumulation, after release, once per successful
// superstep) and never hold it open across a suspension point themselves.
//
// Storage errors are non-fatal to a running process: callers treat a
// failed read as if the key were absent, and a failed write as a no-op;
// the failure is not reported further.
type Manager interface {
	// SaveProcess persists a process snapshot (ProcessInfo, opaque to
	// this package to avoid an import cycle with process).
	SaveProcess(ctx context.Context, stepID, runID string, processInfo any) error
	// GetProcess retrieves a previously saved process snapshot.
	GetProcess(ctx context.Context, stepID, runID string) (any, error)

	// SaveStepState persists one step's state metadata.
	SaveStepState(ctx context.Context, stepID, runID string, metadata any) error
	// GetStepState retrieves one step's state metadata.
	GetStepState(ctx context.Context, stepID, runID string) (any, error)

	// SaveStepEdgeData persists a step's partial or released edge-group
	// accumulation data, keyed by group id. isGroupEdge distinguishes a
	// true AllOf accumulation from an ordinary single-source edge value
	// recorded for diagnostics.
	SaveStepEdgeData(ctx context.Context, stepID, runID string, data map[string]map[string]any, isGroupEdge bool) error
	// GetStepEdgeData retrieves a step's edge-group accumulation data.
	GetStepEdgeData(ctx context.Context, stepID, runID string) (isGroupEdge bool, data map[string]map[string]any, err error)

	// Close releases any resources (connections, file handles) held by
	// the backend.
	Close(ctx context.Context) error
}
