package process

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs a Step instance for stepID given the owning
// process's context and its restored state (nil if nothing was
// persisted). Invoked once per step, when the orchestrator materializes
// every declared step at the start of its first run.
type Factory func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error)

// StepRegistry maps a step id to the factory that materializes it and
// owns the resulting instances' lifecycle (materialize once, activate
// once, dispose in declaration order).
type StepRegistry struct {
	mu        sync.Mutex
	factories map[string]Factory
	order     []string
	instances map[string]Step
}

// NewStepRegistry creates an empty registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{
		factories: make(map[string]Factory),
		instances: make(map[string]Step),
	}
}

// Register associates stepID with factory. Registration order is
// preserved as declaration order for Dispose.
func (r *StepRegistry) Register(stepID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[stepID]; !exists {
		r.order = append(r.order, stepID)
	}
	r.factories[stepID] = factory
}

// Materialize returns the Step for stepID, constructing it via its
// factory and running Activate on first call. Restored state is read
// from pctx.Storage if configured; storage errors are treated as if the
// key were absent (a process with no prior snapshot activates fresh).
func (r *StepRegistry) Materialize(ctx context.Context, pctx *ProcessContext, stepID string) (Step, error) {
	r.mu.Lock()
	if inst, ok := r.instances[stepID]; ok {
		r.mu.Unlock()
		return inst, nil
	}
	factory, ok := r.factories[stepID]
	r.mu.Unlock()
	if !ok {
		return nil, &OrchestratorError{Kind: ErrDispatch, Message: fmt.Sprintf("step %q not registered", stepID), ProcessID: pctx.ProcessID, StepID: stepID, Cause: ErrUnknownStep}
	}

	var restored any
	if pctx.Storage != nil {
		if v, err := pctx.Storage.GetStepState(ctx, stepID, pctx.RunID); err == nil {
			restored = v
		}
	}

	step, err := factory(ctx, pctx, stepID, restored)
	if err != nil {
		return nil, &OrchestratorError{Kind: ErrConfiguration, Message: "step construction failed", ProcessID: pctx.ProcessID, StepID: stepID, Cause: err}
	}

	if activatable, ok := step.(Activatable); ok {
		if err := activatable.OnActivate(ctx, restored); err != nil {
			return nil, &OrchestratorError{Kind: ErrUserStep, Message: "step activation failed", ProcessID: pctx.ProcessID, StepID: stepID, Cause: err}
		}
	} else if err := step.Activate(ctx, restored); err != nil {
		return nil, &OrchestratorError{Kind: ErrUserStep, Message: "step activation failed", ProcessID: pctx.ProcessID, StepID: stepID, Cause: err}
	}

	r.mu.Lock()
	r.instances[stepID] = step
	r.mu.Unlock()
	return step, nil
}

// Lookup returns an already-materialized step without constructing one.
func (r *StepRegistry) Lookup(stepID string) (Step, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[stepID]
	return inst, ok
}

// DisposeAll disposes every materialized step in declaration order,
// collecting but not stopping on individual errors.
func (r *StepRegistry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	var firstErr error
	for _, stepID := range order {
		r.mu.Lock()
		inst, ok := r.instances[stepID]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := inst.Dispose(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
