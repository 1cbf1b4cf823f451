package process

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/sjson"
)

// StepExecutor is the per-step driver that holds current inputs per
// entry point, recognizes readiness, invokes the entry point, persists
// updated state, and emits the resulting success/error event.
//
// One StepExecutor is created per materialized Step instance and lives
// for the lifetime of the owning process.
type StepExecutor struct {
	step  Step
	pctx  *ProcessContext
	runID string

	mu        sync.Mutex
	templates map[string]map[string]any
	groups    map[string]*EdgeGroupProcessor
}

// NewStepExecutor builds the executor for step, seeding one input
// template per entry point from its declared data parameters.
func NewStepExecutor(step Step, pctx *ProcessContext, runID string) *StepExecutor {
	templates := make(map[string]map[string]any)
	for name, ep := range step.EntryPoints() {
		slots := make(map[string]any, len(ep.DataParams()))
		for _, p := range ep.DataParams() {
			slots[p.Name] = nil
		}
		templates[name] = slots
	}
	return &StepExecutor{
		step:      step,
		pctx:      pctx,
		runID:     runID,
		templates: templates,
		groups:    make(map[string]*EdgeGroupProcessor),
	}
}

// Deliver routes msg to this step. A message targeting the end sentinel
// is a no-op here: the orchestrator handles termination directly. A
// TargetStateUpdate message mutates the step's own persisted state and
// never invokes an entry point. A message carrying a GroupID is routed
// through this step's local edge-group processor instead of the
// per-slot template path.
func (e *StepExecutor) Deliver(ctx context.Context, msg StepMessage) error {
	if msg.IsEnd() {
		return nil
	}
	if msg.TargetKind == TargetStateUpdate {
		return e.applyStateUpdate(ctx, msg)
	}
	if msg.GroupID != "" {
		return e.deliverGrouped(ctx, msg)
	}
	return e.deliverDirect(ctx, msg)
}

// applyStateUpdate mutates the step's persisted state at msg.StatePath
// using msg.StateOp ("set" writes msg.Data at the path, "delete" removes
// it) without invoking any entry point. The state is treated as JSON:
// the current value is marshaled, patched with sjson, and unmarshaled
// back into a map before being handed to SetState.
func (e *StepExecutor) applyStateUpdate(ctx context.Context, msg StepMessage) error {
	stateful, ok := e.step.(Stateful)
	if !ok {
		return fmt.Errorf("process: step %q has no persisted state to update", e.step.ID())
	}

	raw, err := json.Marshal(stateful.State())
	if err != nil {
		return fmt.Errorf("process: marshal state for update: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var patched []byte
	if msg.StateOp == "delete" {
		patched, err = sjson.DeleteBytes(raw, msg.StatePath)
	} else {
		patched, err = sjson.SetBytes(raw, msg.StatePath, msg.Data)
	}
	if err != nil {
		return fmt.Errorf("process: apply state update at %q: %w", msg.StatePath, err)
	}

	var next map[string]any
	if err := json.Unmarshal(patched, &next); err != nil {
		return fmt.Errorf("process: decode updated state: %w", err)
	}
	stateful.SetState(next)

	if e.pctx.Storage != nil {
		_ = e.pctx.Storage.SaveStepState(ctx, e.step.ID(), e.runID, next)
	}
	return nil
}

func (e *StepExecutor) deliverGrouped(ctx context.Context, msg StepMessage) error {
	e.mu.Lock()
	proc, ok := e.groups[msg.GroupID]
	if !ok {
		group, found := e.pctx.Bus.EdgeGroup(msg.GroupID)
		if !found {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrGroupAlreadyReleased, msg.GroupID)
		}
		proc = NewEdgeGroupProcessor(group, e.pctx.ProcessID, e.runID, e.pctx.Storage)
		e.groups[msg.GroupID] = proc
	}
	complete, params := proc.Observe(ctx, msg)
	if complete {
		delete(e.groups, msg.GroupID)
	}
	e.mu.Unlock()
	if !complete {
		return nil
	}

	if e.pctx.Metrics != nil {
		e.pctx.Metrics.recordGroupRelease(e.pctx.ProcessID, msg.GroupID)
	}

	group, _ := e.pctx.Bus.EdgeGroup(msg.GroupID)
	return e.invoke(ctx, group.FunctionName, params, msg.ThreadID)
}

func (e *StepExecutor) deliverDirect(ctx context.Context, msg StepMessage) error {
	entryPoints := e.step.EntryPoints()
	ep, ok := entryPoints[msg.FunctionName]
	if !ok {
		e.emitError(ctx, msg.FunctionName, fmt.Errorf("%w: %s", ErrUnknownFunction, msg.FunctionName))
		return nil
	}

	e.mu.Lock()
	slots := e.templates[msg.FunctionName]
	for name, value := range msg.Parameters {
		if _, declared := slots[name]; declared {
			slots[name] = value
		}
	}
	dataParams := ep.DataParams()
	if msg.Data != nil && len(dataParams) == 1 {
		slots[dataParams[0].Name] = msg.Data
	}

	ready := true
	for _, v := range slots {
		if v == nil {
			ready = false
			break
		}
	}
	args := make(map[string]any, len(slots))
	for k, v := range slots {
		args[k] = v
	}
	e.mu.Unlock()

	if !ready {
		return nil
	}

	return e.invoke(ctx, msg.FunctionName, args, msg.ThreadID)
}

// invoke calls the bound entry point, persists resulting state, emits the
// outcome event, and resets the entry point's slots to the initial
// template so the next invocation requires fresh inputs.
func (e *StepExecutor) invoke(ctx context.Context, functionName string, args map[string]any, threadID string) error {
	ep, ok := e.step.EntryPoints()[functionName]
	if !ok {
		e.emitError(ctx, functionName, fmt.Errorf("%w: %s", ErrUnknownFunction, functionName))
		return nil
	}

	kctx := e.newKernelContext(threadID)
	result, err := func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("process: panic in %s: %v", functionName, r)
			}
		}()
		return ep.Invoke(ctx, kctx, args)
	}()

	defer e.resetSlots(functionName)

	if err != nil {
		e.emitError(ctx, functionName, err)
		return nil
	}

	if e.pctx.Storage != nil {
		if s, ok := e.step.(Stateful); ok {
			_ = e.pctx.Storage.SaveStepState(ctx, e.step.ID(), e.runID, s.State())
		}
	}

	event := Event{
		SourceID:     e.step.ID(),
		Namespace:    StepNamespace(e.step.ID(), e.runID),
		LocalEventID: ResultEventID(functionName),
		Data:         result,
		Visibility:   VisibilityPublic,
		ThreadID:     threadID,
	}
	e.pctx.Bus.EmitEvent(event, e.pctx.EventFilter, e.stateSnapshot())
	return nil
}

func (e *StepExecutor) emitError(ctx context.Context, functionName string, cause error) {
	event := Event{
		SourceID:     e.step.ID(),
		Namespace:    StepNamespace(e.step.ID(), e.runID),
		LocalEventID: ErrorEventID(functionName),
		Data:         cause.Error(),
		Visibility:   VisibilityPublic,
		IsError:      true,
	}
	e.pctx.Bus.EmitEvent(event, e.pctx.EventFilter, e.stateSnapshot())
	e.pctx.emitDiagnostic(0, e.step.ID(), "dispatch_error", map[string]interface{}{
		"function_name": functionName,
		"error":         cause.Error(),
	})
}

func (e *StepExecutor) resetSlots(functionName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slots := e.templates[functionName]
	for k := range slots {
		slots[k] = nil
	}
}

func (e *StepExecutor) stateSnapshot() any {
	if s, ok := e.step.(Stateful); ok {
		return s.State()
	}
	return nil
}

func (e *StepExecutor) newKernelContext(threadID string) *KernelContext {
	return &KernelContext{
		ProcessID: e.pctx.ProcessID,
		StepID:    e.step.ID(),
		RunID:     e.runID,
		ThreadID:  threadID,
		emit: func(localEventID string, data any, visibility Visibility, isError bool) {
			e.pctx.Bus.EmitEvent(Event{
				SourceID:     e.step.ID(),
				Namespace:    StepNamespace(e.step.ID(), e.runID),
				LocalEventID: localEventID,
				Data:         data,
				Visibility:   visibility,
				IsError:      isError,
				ThreadID:     threadID,
			}, e.pctx.EventFilter, e.stateSnapshot())
		},
		state: e.stateSnapshot,
		setState: func(v any) {
			if s, ok := e.step.(Stateful); ok {
				s.SetState(v)
			}
		},
	}
}
