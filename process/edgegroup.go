package process

import (
	"context"

	"github.com/flowkernel/flowkernel/process/store"
)

// EdgeGroupProcessor accumulates one value per required source of an
// AllOf join and releases a single combined message once every declared
// source has contributed. Each (groupId, destinationId, runId) has at
// most one open processor; once released, the owning step discards it.
type EdgeGroupProcessor struct {
	group            EdgeGroup
	processID        string
	destinationRunID string
	storage          store.Manager

	required   map[string]bool
	absent     map[string]bool
	data       map[string]any
	rehydrated bool
}

// NewEdgeGroupProcessor creates a processor for one open instance of
// group, scoped to destinationRunID. storage may be nil to disable
// persistence (tests, ephemeral runs).
func NewEdgeGroupProcessor(group EdgeGroup, processID, destinationRunID string, storage store.Manager) *EdgeGroupProcessor {
	required := make(map[string]bool, len(group.Sources))
	absent := make(map[string]bool, len(group.Sources))
	for _, src := range group.Sources {
		required[src.Key()] = true
		absent[src.Key()] = true
	}
	return &EdgeGroupProcessor{
		group:            group,
		processID:        processID,
		destinationRunID: destinationRunID,
		storage:          storage,
		required:         required,
		absent:           absent,
		data:             make(map[string]any),
	}
}

// rehydrate loads any prior partial accumulation from storage, once, on
// first observation after a process restart.
func (p *EdgeGroupProcessor) rehydrate(ctx context.Context) {
	if p.rehydrated || p.storage == nil {
		return
	}
	p.rehydrated = true
	isGroupEdge, stored, err := p.storage.GetStepEdgeData(ctx, p.group.DestinationStepID, p.destinationRunID)
	if err != nil || !isGroupEdge {
		return
	}
	groupData, ok := stored[p.group.GroupID]
	if !ok {
		return
	}
	for k, v := range groupData {
		if p.required[k] {
			p.data[k] = v
			delete(p.absent, k)
		}
	}
}

// Observe processes one message destined for this group.
//
//  1. Compute sourceKey as msg.SourceID + "." + msg.SourceLocalEventID,
//     the same <stepId>.<eventName> shape GroupSource.Key() produces.
//  2. Store data[sourceKey] = msg.Data, overwriting any prior value:
//     repeated arrival from the same source is last-wins and never
//     releases the group by itself.
//  3. Remove sourceKey from absent.
//  4. If absent is now empty, apply the group's InputMapping (or pass the
//     accumulated map through unchanged) and return the release.
//  5. Otherwise persist the partial accumulation and report incomplete.
//
// A message whose source is not among the group's declared sources is
// ignored: it neither contributes nor releases.
func (p *EdgeGroupProcessor) Observe(ctx context.Context, msg StepMessage) (complete bool, result map[string]any) {
	p.rehydrate(ctx)

	sourceKey := msg.SourceID + "." + msg.SourceLocalEventID
	if !p.required[sourceKey] {
		return false, nil
	}

	p.data[sourceKey] = msg.Data
	delete(p.absent, sourceKey)

	if len(p.absent) > 0 {
		p.persist(ctx)
		return false, nil
	}

	mapped := p.group.apply(cloneAnyMap(p.data))
	p.clear(ctx)
	return true, mapped
}

func (p *EdgeGroupProcessor) persist(ctx context.Context) {
	if p.storage == nil {
		return
	}
	stored := p.storedGroups(ctx)
	stored[p.group.GroupID] = cloneAnyMap(p.data)
	_ = p.storage.SaveStepEdgeData(ctx, p.group.DestinationStepID, p.destinationRunID, stored, true)
}

// clear removes this group's stored partial data once it has released.
func (p *EdgeGroupProcessor) clear(ctx context.Context) {
	if p.storage == nil {
		return
	}
	stored := p.storedGroups(ctx)
	delete(stored, p.group.GroupID)
	_ = p.storage.SaveStepEdgeData(ctx, p.group.DestinationStepID, p.destinationRunID, stored, true)
}

// storedGroups returns a copy of the destination step's stored edge-group
// data, keyed by group id, so one group's write keeps the other groups'.
func (p *EdgeGroupProcessor) storedGroups(ctx context.Context) map[string]map[string]any {
	out := make(map[string]map[string]any)
	if _, stored, err := p.storage.GetStepEdgeData(ctx, p.group.DestinationStepID, p.destinationRunID); err == nil {
		for id, d := range stored {
			out[id] = d
		}
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
