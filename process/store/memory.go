package store

import (
	"context"
	"sync"
)

// MemManager is an in-memory Manager implementation. Designed for tests
// and single-process development; data is lost when the process exits.
//
// Thread-safe: all methods may be called concurrently from superstep
// dispatch goroutines.
type MemManager struct {
	mu        sync.RWMutex
	processes map[string]any
	stepState map[string]any
	edgeData  map[string]edgeDataEntry
}

type edgeDataEntry struct {
	isGroupEdge bool
	data        map[string]map[string]any
}

// NewMemManager creates an empty in-memory storage manager.
func NewMemManager() *MemManager {
	return &MemManager{
		processes: make(map[string]any),
		stepState: make(map[string]any),
		edgeData:  make(map[string]edgeDataEntry),
	}
}

func key(stepID, runID string) string {
	return stepID + ":" + runID
}

func (m *MemManager) SaveProcess(_ context.Context, stepID, runID string, processInfo any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[key(stepID, runID)] = processInfo
	return nil
}

func (m *MemManager) GetProcess(_ context.Context, stepID, runID string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.processes[key(stepID, runID)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemManager) SaveStepState(_ context.Context, stepID, runID string, metadata any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepState[key(stepID, runID)] = metadata
	return nil
}

func (m *MemManager) GetStepState(_ context.Context, stepID, runID string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.stepState[key(stepID, runID)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemManager) SaveStepEdgeData(_ context.Context, stepID, runID string, data map[string]map[string]any, isGroupEdge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edgeData[key(stepID, runID)] = edgeDataEntry{isGroupEdge: isGroupEdge, data: data}
	return nil
}

func (m *MemManager) GetStepEdgeData(_ context.Context, stepID, runID string) (bool, map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.edgeData[key(stepID, runID)]
	if !ok {
		return false, nil, ErrNotFound
	}
	return v.isGroupEdge, v.data, nil
}

func (m *MemManager) Close(_ context.Context) error {
	return nil
}
