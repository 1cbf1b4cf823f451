package process

import "context"

// SubProcessFactory builds the nested process definition and its step
// registry for one sub-process instance. Invoked lazily, once, the first
// time the wrapper step's entry point runs.
type SubProcessFactory func(ctx context.Context, pctx *ProcessContext, stepID string) (ProcessInfo, *StepRegistry, error)

// NewSubProcessFactory adapts a SubProcessFactory into the Factory shape
// StepRegistry expects, producing a *SubProcessStep bound to the parent
// ProcessContext at materialization time.
func NewSubProcessFactory(build SubProcessFactory) Factory {
	return func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return &SubProcessStep{id: stepID, build: build, pctx: pctx, state: state}, nil
	}
}

// SubProcessStep is the sub-process step-kernel variant: a single entry
// point that hosts a nested process instance for the lifetime of the
// owning process. The child runs to quiescence inside the parent's
// calling superstep; any public event the child could not route
// internally is forwarded upward into the parent bus under this step's
// own namespace.
type SubProcessStep struct {
	id    string
	build SubProcessFactory
	pctx  *ProcessContext
	state any

	child *ProcessOrchestrator
}

func (s *SubProcessStep) ID() string       { return s.id }
func (s *SubProcessStep) Kind() KernelType { return KernelSubProcess }
func (s *SubProcessStep) State() any       { return s.state }
func (s *SubProcessStep) SetState(v any)   { s.state = v }

func (s *SubProcessStep) Activate(ctx context.Context, state any) error {
	s.state = state
	return nil
}

// Dispose closes the child orchestrator, if one was ever started.
func (s *SubProcessStep) Dispose(ctx context.Context) error {
	if s.child == nil {
		return nil
	}
	return s.child.Close(ctx)
}

func (s *SubProcessStep) EntryPoints() map[string]*EntryPoint {
	return map[string]*EntryPoint{
		"Run": {
			Name: "Run",
			Parameters: []ParamSpec{
				{Name: "targetEventId", Kind: ParamData},
				{Name: "data", Kind: ParamData},
			},
			Invoke: s.run,
		},
	}
}

// run builds the synthetic internal initial event from targetEventId and
// data and drives the child orchestrator to quiescence before returning.
func (s *SubProcessStep) run(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
	targetEventID, _ := args["targetEventId"].(string)
	data := args["data"]

	orch, err := s.childOrchestrator(ctx, kctx.RunID)
	if err != nil {
		return nil, err
	}

	initial := Event{
		SourceID:     s.id,
		Namespace:    orch.pctx.ProcessID,
		LocalEventID: targetEventID,
		Data:         data,
		Visibility:   VisibilityInternal,
	}
	if err := orch.ExecuteOnce(ctx, initial); err != nil {
		return nil, err
	}
	s.state = orch.info
	return orch.info, nil
}

func (s *SubProcessStep) childOrchestrator(ctx context.Context, runID string) (*ProcessOrchestrator, error) {
	if s.child != nil {
		return s.child, nil
	}
	info, registry, err := s.build(ctx, s.pctx, s.id)
	if err != nil {
		return nil, err
	}
	childProcessID := s.pctx.ProcessID + "/" + s.id
	childPctx := s.pctx.Child(childProcessID, runID)
	orch, err := NewOrchestrator(info, childPctx, registry)
	if err != nil {
		return nil, err
	}
	orch.pctx.Bus.SetUnconsumedHandler(func(event Event, state any) {
		s.pctx.Bus.EmitEvent(Event{
			SourceID:     s.id,
			Namespace:    StepNamespace(s.id, runID),
			LocalEventID: event.LocalEventID,
			Data:         event.Data,
			Visibility:   VisibilityPublic,
			IsError:      event.IsError,
			ThreadID:     event.ThreadID,
		}, s.pctx.EventFilter, state)
	})
	s.child = orch
	return orch, nil
}
