package process

import (
	"context"

	"github.com/flowkernel/flowkernel/process/emit"
	"github.com/flowkernel/flowkernel/process/store"
)

// ExternalChannel is the optional outbound adapter for events whose
// target is an external topic rather than another step.
type ExternalChannel interface {
	Publish(ctx context.Context, topic, channelKey string, data any) error
}

// KernelServices bundles the shared, reusable collaborators a step kernel
// may need beyond its own state: an agent-step provider registry, a
// tool-step invoker. Concrete types live in process/agentstep and
// process/toolstep; this struct is only the seam those wire through, kept
// here to avoid a dependency cycle.
type KernelServices struct {
	AgentProvider any
	ToolInvoker   any
}

// ProcessContext is the per-process resource bundle threaded through the
// orchestrator, bus, executor, edge-group processors, and step kernels.
//
// It is immutable after construction except for the Bus, EventFilter,
// Metrics and CostTracker fields, which NewOrchestrator fills in when they
// are nil (Bus with a fresh MessageBus, the others from its Options) and
// which are never reassigned afterward.
type ProcessContext struct {
	ProcessID       string
	RunID           string
	ParentProcessID string
	RootProcessID   string

	Services    KernelServices
	EventFilter func(Event) bool
	External    ExternalChannel
	Storage     store.Manager
	Emitter     emit.Emitter
	Metrics     *Metrics
	CostTracker *CostTracker

	Bus *MessageBus
}

// IsRoot reports whether this context belongs to the top-level process
// rather than a nested sub-process instance.
func (p *ProcessContext) IsRoot() bool {
	return p.ParentProcessID == ""
}

// Child builds the ProcessContext for a sub-process instance: storage,
// event filter, external channel, and kernel services are inherited;
// ParentProcessID is set to this context's ProcessID and RootProcessID is
// carried through unchanged.
func (p *ProcessContext) Child(childProcessID, childRunID string) *ProcessContext {
	root := p.RootProcessID
	if root == "" {
		root = p.ProcessID
	}
	return &ProcessContext{
		ProcessID:       childProcessID,
		RunID:           childRunID,
		ParentProcessID: p.ProcessID,
		RootProcessID:   root,
		Services:        p.Services,
		EventFilter:     p.EventFilter,
		External:        p.External,
		Storage:         p.Storage,
		Emitter:         p.Emitter,
		Metrics:         p.Metrics,
		CostTracker:     p.CostTracker,
	}
}

func (p *ProcessContext) emitDiagnostic(superstep int, stepID, msg string, meta map[string]interface{}) {
	if p.Emitter == nil {
		return
	}
	p.Emitter.Emit(emit.Event{
		ProcessID: p.ProcessID,
		Superstep: superstep,
		StepID:    stepID,
		Msg:       msg,
		Meta:      meta,
	})
}
