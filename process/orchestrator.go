package process

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProcessOrchestrator owns one process instance: it runs the superstep
// loop, drains the bus per superstep, dispatches pending messages to
// step executors in parallel, and enforces termination.
type ProcessOrchestrator struct {
	info     ProcessInfo
	pctx     *ProcessContext
	registry *StepRegistry
	opts     Options

	mu        sync.Mutex
	executors map[string]*StepExecutor
	superstep int
	cancel    context.CancelFunc
	activated bool
}

// NewOrchestrator creates an orchestrator for info and wires a fresh
// MessageBus into pctx when pctx has none. options accepts either an Options struct, one or
// more Option values, or both (Option values apply last).
func NewOrchestrator(info ProcessInfo, pctx *ProcessContext, registry *StepRegistry, options ...interface{}) (*ProcessOrchestrator, error) {
	opts, err := resolveOptions(options...)
	if err != nil {
		return nil, &OrchestratorError{Kind: ErrConfiguration, Message: "invalid options", ProcessID: pctx.ProcessID, Cause: err}
	}
	if pctx.EventFilter == nil {
		pctx.EventFilter = opts.EventFilter
	}
	if pctx.Metrics == nil {
		pctx.Metrics = opts.Metrics
	}
	if pctx.CostTracker == nil {
		pctx.CostTracker = opts.CostTracker
	}
	if pctx.Bus == nil {
		pctx.Bus = NewMessageBus(pctx.ProcessID, info)
	}
	return &ProcessOrchestrator{
		info:      info,
		pctx:      pctx,
		registry:  registry,
		opts:      opts,
		executors: make(map[string]*StepExecutor),
	}, nil
}

// ExecuteOnce enqueues initial, then drives the superstep loop until
// quiescence (empty-superstep threshold, one-shot mode only), the end
// sentinel, MaxSupersteps exhaustion, or cancellation.
//
// Cancellation is not reported as an error: the orchestrator drains the
// current superstep and returns normally, per the cancellation error
// kind's contract.
func (o *ProcessOrchestrator) ExecuteOnce(ctx context.Context, initial Event) error {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	if err := o.ensureActivated(ctx); err != nil {
		return err
	}

	o.pctx.Bus.EmitEvent(initial, o.pctx.EventFilter, nil)

	emptyCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pending := o.pctx.Bus.DrainPending()
		o.mu.Lock()
		o.superstep++
		superstep := o.superstep
		o.mu.Unlock()

		o.pctx.emitDiagnostic(superstep, "", "superstep_start", map[string]interface{}{"pending": len(pending)})
		if o.pctx.Metrics != nil {
			o.pctx.Metrics.setQueueDepth(o.pctx.ProcessID, len(pending))
		}

		if len(pending) == 0 {
			if o.opts.Continuous {
				if err := sleepOrDone(ctx, o.opts.EmptySuperstepIdleInterval); err != nil {
					return nil
				}
				continue
			}
			emptyCount++
			if emptyCount > o.opts.EmptySuperstepThreshold {
				return nil
			}
			if err := sleepOrDone(ctx, o.opts.EmptySuperstepIdleInterval); err != nil {
				return nil
			}
			continue
		}
		emptyCount = 0

		terminal := false
		for _, msg := range pending {
			if msg.IsEnd() {
				terminal = true
			}
		}

		if err := o.dispatchSuperstep(ctx, pending); err != nil {
			return err
		}

		if o.pctx.Storage != nil {
			_ = o.pctx.Storage.SaveProcess(ctx, o.pctx.ProcessID, o.pctx.RunID, o.info)
		}
		if o.pctx.Metrics != nil {
			o.pctx.Metrics.recordSuperstep(o.pctx.ProcessID)
		}

		if terminal {
			return nil
		}
		if o.opts.MaxSupersteps > 0 && superstep >= o.opts.MaxSupersteps {
			return ErrMaxSuperstepsExceeded
		}
	}
}

// ensureActivated materializes every declared step via the registry on
// first run, registering their edge groups with the bus, and emits any
// OnEnter configuration edges as synthetic internal events.
func (o *ProcessOrchestrator) ensureActivated(ctx context.Context) error {
	o.mu.Lock()
	if o.activated {
		o.mu.Unlock()
		return nil
	}
	o.activated = true
	o.mu.Unlock()

	for stepID, step := range o.info.Steps {
		if _, err := o.executorFor(ctx, stepID); err != nil {
			var oe *OrchestratorError
			if errors.As(err, &oe) && oe.IsFatal() {
				return err
			}
		}
		for groupID, group := range step.IncomingEdgeGroups {
			o.pctx.Bus.RegisterEdgeGroup(EdgeGroup{
				GroupID:           groupID,
				DestinationStepID: group.DestinationStepID,
				FunctionName:      group.FunctionName,
				Sources:           group.Sources,
				InputMapping:      group.InputMapping,
			})
		}
		o.pctx.Bus.EmitEvent(Event{
			SourceID:     stepID,
			Namespace:    StepNamespace(stepID, step.RunID),
			LocalEventID: "OnEnter",
			Visibility:   VisibilityInternal,
		}, o.pctx.EventFilter, nil)
	}
	return nil
}

func (o *ProcessOrchestrator) dispatchSuperstep(ctx context.Context, pending []StepMessage) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, msg := range pending {
		msg := msg
		if msg.IsEnd() {
			continue
		}
		if msg.TargetKind == TargetEmit {
			g.Go(func() error { return o.handleEmit(gctx, msg) })
			continue
		}
		g.Go(func() error {
			start := time.Now()
			ex, err := o.executorFor(gctx, msg.DestinationID)
			if err != nil {
				if isFatal(err) {
					return err
				}
				o.emitDispatchError(msg, err)
				o.recordDispatchMetric(msg.DestinationID, "error", start)
				return nil
			}
			dctx := gctx
			if o.opts.DefaultStepTimeout > 0 {
				var cancel context.CancelFunc
				dctx, cancel = context.WithTimeout(gctx, o.opts.DefaultStepTimeout)
				defer cancel()
			}
			if err := ex.Deliver(dctx, msg); err != nil {
				if isFatal(err) {
					return err
				}
				o.emitDispatchError(msg, err)
				o.recordDispatchMetric(msg.DestinationID, "error", start)
				return nil
			}
			o.recordDispatchMetric(msg.DestinationID, "ok", start)
			return nil
		})
	}
	return g.Wait()
}

func (o *ProcessOrchestrator) recordDispatchMetric(stepID, status string, start time.Time) {
	if o.pctx.Metrics != nil {
		o.pctx.Metrics.recordDispatch(o.pctx.ProcessID, stepID, status, time.Since(start))
	}
}

// handleEmit forwards a TargetEmit message to the process's
// ExternalChannel. There is no destination step to dispatch through: an
// emit never invokes an entry point, so it never reaches executorFor.
func (o *ProcessOrchestrator) handleEmit(ctx context.Context, msg StepMessage) error {
	start := time.Now()
	if o.pctx.External == nil {
		o.recordDispatchMetric("__emit__", "no_channel", start)
		return nil
	}
	if err := o.pctx.External.Publish(ctx, msg.Topic, msg.ChannelKey, msg.Data); err != nil {
		o.pctx.emitDiagnostic(o.superstep, "", "emit_error", map[string]interface{}{"topic": msg.Topic, "error": err.Error()})
		o.recordDispatchMetric("__emit__", "error", start)
		return nil
	}
	o.recordDispatchMetric("__emit__", "ok", start)
	return nil
}

func isFatal(err error) bool {
	var oe *OrchestratorError
	return errors.As(err, &oe) && oe.IsFatal()
}

func (o *ProcessOrchestrator) emitDispatchError(msg StepMessage, cause error) {
	o.pctx.emitDiagnostic(o.superstep, msg.DestinationID, "dispatch_error", map[string]interface{}{"error": cause.Error()})
	o.pctx.Bus.EmitEvent(Event{
		SourceID:     msg.DestinationID,
		Namespace:    o.pctx.ProcessID,
		LocalEventID: "OnError",
		Data:         cause.Error(),
		Visibility:   VisibilityPublic,
		IsError:      true,
	}, o.pctx.EventFilter, nil)
}

func (o *ProcessOrchestrator) executorFor(ctx context.Context, stepID string) (*StepExecutor, error) {
	o.mu.Lock()
	if ex, ok := o.executors[stepID]; ok {
		o.mu.Unlock()
		return ex, nil
	}
	o.mu.Unlock()

	step, err := o.registry.Materialize(ctx, o.pctx, stepID)
	if err != nil {
		return nil, err
	}

	runID := stepID
	if si, ok := o.info.Steps[stepID]; ok && si.RunID != "" {
		runID = si.RunID
	}
	ex := NewStepExecutor(step, o.pctx, runID)

	o.mu.Lock()
	o.executors[stepID] = ex
	o.mu.Unlock()
	return ex, nil
}

// Close disposes every materialized step in declaration order and closes
// the storage handle.
func (o *ProcessOrchestrator) Close(ctx context.Context) error {
	err := o.registry.DisposeAll(ctx)
	if o.pctx.Storage != nil {
		if closeErr := o.pctx.Storage.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handle is the external facade returned by Start: inject external
// events, request cancellation, and read the live process state.
type Handle struct {
	orch *ProcessOrchestrator
	done chan error
}

// Start creates an orchestrator over info and runs it in a background
// goroutine, returning a Handle immediately.
func Start(ctx context.Context, info ProcessInfo, pctx *ProcessContext, registry *StepRegistry, initial Event, options ...interface{}) (*Handle, error) {
	orch, err := NewOrchestrator(info, pctx, registry, options...)
	if err != nil {
		return nil, err
	}
	h := &Handle{orch: orch, done: make(chan error, 1)}
	go func() {
		runErr := orch.ExecuteOnce(ctx, initial)
		closeErr := orch.Close(context.Background())
		if runErr == nil {
			runErr = closeErr
		}
		h.done <- runErr
	}()
	return h, nil
}

// SendEvent injects an external event into the running process.
func (h *Handle) SendEvent(event Event) {
	h.orch.pctx.Bus.AddExternalEvent(event, h.orch.pctx.EventFilter, nil)
}

// Stop requests cancellation and blocks until the orchestrator has
// drained and returned.
func (h *Handle) Stop() error {
	h.orch.mu.Lock()
	cancel := h.orch.cancel
	h.orch.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return <-h.done
}

// Wait blocks until the orchestrator terminates on its own (end
// sentinel, empty-superstep threshold, or MaxSupersteps) without
// requesting cancellation.
func (h *Handle) Wait() error {
	return <-h.done
}

// GetState returns the process's live ProcessInfo.
func (h *Handle) GetState() ProcessInfo {
	o := h.orch
	info := o.info
	info.Steps = make(map[string]StepInfo, len(o.info.Steps))
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, si := range o.info.Steps {
		if ex, ok := o.executors[id]; ok {
			if s, ok := ex.step.(Stateful); ok {
				si.State = s.State()
			}
		}
		info.Steps[id] = si
	}
	return info
}

// GetProcessID returns the owning process's id.
func (h *Handle) GetProcessID() string {
	return h.orch.pctx.ProcessID
}
