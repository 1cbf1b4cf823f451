package process

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestOrchestrator_AllOfJoinReleasesThroughRealBus drives an AllOf join
// through the real bus -> executor -> EdgeGroupProcessor path (not
// EdgeGroupProcessor.Observe in isolation): two steps, A and B, each fan
// out from a single Start event and each emit a custom "Done" event that
// feeds the same edge group. The join must only release once both have
// contributed, and the merged map must carry both contributions keyed by
// their real <stepId>.<eventName> identity.
func TestOrchestrator_AllOfJoinReleasesThroughRealBus(t *testing.T) {
	var mu sync.Mutex
	var combined map[string]any

	registry := NewStepRegistry()
	registry.Register("A", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("A", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				kctx.Emit("Done", "from-A")
				return nil, nil
			}},
		}), nil
	})
	registry.Register("B", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("B", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				kctx.Emit("Done", "from-B")
				return nil, nil
			}},
		}), nil
	})
	registry.Register("merge", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("merge", map[string]*EntryPoint{
			"Combine": {Name: "Combine", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				mu.Lock()
				combined = make(map[string]any, len(args))
				for k, v := range args {
					combined[k] = v
				}
				mu.Unlock()
				return true, nil
			}},
		}), nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "allof", RunID: "allof"},
		Steps: map[string]StepInfo{
			"A": {
				StepID: "A", RunID: "A",
				Edges: map[string][]Edge{
					"Done": {{SourceStepID: "A", EventName: "Done", Target: FunctionTarget("merge", "Combine"), GroupID: "join1"}},
				},
			},
			"B": {
				StepID: "B", RunID: "B",
				Edges: map[string][]Edge{
					"Done": {{SourceStepID: "B", EventName: "Done", Target: FunctionTarget("merge", "Combine"), GroupID: "join1"}},
				},
			},
			"merge": {
				StepID: "merge", RunID: "merge",
				IncomingEdgeGroups: map[string]EdgeGroup{
					"join1": {
						GroupID:           "join1",
						DestinationStepID: "merge",
						FunctionName:      "Combine",
						Sources: []GroupSource{
							{SourceStepID: "A", EventName: "Done"},
							{SourceStepID: "B", EventName: "Done"},
						},
					},
				},
				Edges: map[string][]Edge{
					"Combine.OnResult": {{SourceStepID: "merge", EventName: "Combine.OnResult", Target: EndTarget()}},
				},
			},
		},
		Edges: map[string][]Edge{
			"allof.Start": {
				{EventName: "Start", Target: FunctionTarget("A", "Run")},
				{EventName: "Start", Target: FunctionTarget("B", "Run")},
			},
		},
	}

	pctx := newTestContext("allof")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(3), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "allof", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if combined == nil {
		t.Fatal("expected Combine to have been invoked once both sources arrived")
	}
	if combined["A.Done"] != "from-A" || combined["B.Done"] != "from-B" {
		t.Fatalf("expected merged contributions from both sources, got %+v", combined)
	}
}

// TestOrchestrator_StateUpdateDispatchAppliesPatch drives a TargetStateUpdate
// edge through ProcessOrchestrator.ExecuteOnce and asserts the owning
// step's persisted state reflects the sjson-applied mutation.
func TestOrchestrator_StateUpdateDispatchAppliesPatch(t *testing.T) {
	counter := NewFunctionStep("counter", map[string]*EntryPoint{
		"Bump": {Name: "Bump", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
			return 42, nil
		}},
	})

	registry := NewStepRegistry()
	registry.Register("counter", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return counter, nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "stateupd", RunID: "stateupd"},
		Steps: map[string]StepInfo{
			"counter": {
				StepID: "counter", RunID: "counter",
				Edges: map[string][]Edge{
					"Bump.OnResult": {{SourceStepID: "counter", EventName: "Bump.OnResult", Target: StateUpdateTarget("value", "set")}},
				},
			},
		},
		Edges: map[string][]Edge{
			"stateupd.Start": {{EventName: "Start", Target: FunctionTarget("counter", "Bump")}},
		},
	}

	pctx := newTestContext("stateupd")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(2), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "stateupd", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	state, ok := counter.State().(map[string]any)
	if !ok {
		t.Fatalf("expected counter state to be a map after the patch, got %#v", counter.State())
	}
	if state["value"] != float64(42) {
		t.Fatalf("expected state[value]=42, got %v", state["value"])
	}
}

// TestOrchestrator_StateUpdateDispatchDeletesPath verifies the "delete"
// StateOp removes the targeted path instead of writing Data there.
func TestOrchestrator_StateUpdateDispatchDeletesPath(t *testing.T) {
	holder := NewFunctionStep("holder", map[string]*EntryPoint{
		"Clear": {Name: "Clear", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
			return "ignored", nil
		}},
	})
	holder.OnActivate(func(ctx context.Context, state any) error {
		holder.SetState(map[string]any{"value": "seed", "keep": "me"})
		return nil
	})

	registry := NewStepRegistry()
	registry.Register("holder", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return holder, nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "statedel", RunID: "statedel"},
		Steps: map[string]StepInfo{
			"holder": {
				StepID: "holder", RunID: "holder",
				Edges: map[string][]Edge{
					"Clear.OnResult": {{SourceStepID: "holder", EventName: "Clear.OnResult", Target: StateUpdateTarget("value", "delete")}},
				},
			},
		},
		Edges: map[string][]Edge{
			"statedel.Start": {{EventName: "Start", Target: FunctionTarget("holder", "Clear")}},
		},
	}

	pctx := newTestContext("statedel")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(2), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "statedel", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	state, ok := holder.State().(map[string]any)
	if !ok {
		t.Fatalf("expected holder state to be a map after the patch, got %#v", holder.State())
	}
	if _, present := state["value"]; present {
		t.Fatalf("expected value to be deleted, got %+v", state)
	}
	if state["keep"] != "me" {
		t.Fatalf("expected unrelated key to survive the delete, got %+v", state)
	}
}

// recordingChannel is a test-local ExternalChannel that records every
// Publish call under a mutex.
type recordingChannel struct {
	mu    sync.Mutex
	calls []recordedPublish
}

type recordedPublish struct {
	Topic      string
	ChannelKey string
	Data       any
}

func (r *recordingChannel) Publish(ctx context.Context, topic, channelKey string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedPublish{Topic: topic, ChannelKey: channelKey, Data: data})
	return nil
}

// TestOrchestrator_EmitDispatchPublishesToExternalChannel drives a
// TargetEmit edge through ProcessOrchestrator.ExecuteOnce and asserts the
// process's ExternalChannel receives the forwarded topic/channelKey/data.
func TestOrchestrator_EmitDispatchPublishesToExternalChannel(t *testing.T) {
	registry := NewStepRegistry()
	registry.Register("reporter", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("reporter", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				return "report-body", nil
			}},
		}), nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "emitproc", RunID: "emitproc"},
		Steps: map[string]StepInfo{
			"reporter": {
				StepID: "reporter", RunID: "reporter",
				Edges: map[string][]Edge{
					"Run.OnResult": {{SourceStepID: "reporter", EventName: "Run.OnResult", Target: EmitTarget("reports", "ch1")}},
				},
			},
		},
		Edges: map[string][]Edge{
			"emitproc.Start": {{EventName: "Start", Target: FunctionTarget("reporter", "Run")}},
		},
	}

	channel := &recordingChannel{}
	pctx := newTestContext("emitproc")
	pctx.External = channel
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(2), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "emitproc", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	channel.mu.Lock()
	defer channel.mu.Unlock()
	if len(channel.calls) != 1 {
		t.Fatalf("expected exactly one Publish call, got %d: %+v", len(channel.calls), channel.calls)
	}
	got := channel.calls[0]
	if got.Topic != "reports" || got.ChannelKey != "ch1" || got.Data != "report-body" {
		t.Fatalf("unexpected publish: %+v", got)
	}
}

// TestOrchestrator_EmitDispatchWithoutChannelIsNoOp verifies a TargetEmit
// message is a harmless no-op (not a dispatch error) when the process has
// no ExternalChannel configured.
func TestOrchestrator_EmitDispatchWithoutChannelIsNoOp(t *testing.T) {
	registry := NewStepRegistry()
	registry.Register("reporter", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("reporter", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				return "report-body", nil
			}},
		}), nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "emitnochan", RunID: "emitnochan"},
		Steps: map[string]StepInfo{
			"reporter": {
				StepID: "reporter", RunID: "reporter",
				Edges: map[string][]Edge{
					"Run.OnResult": {{SourceStepID: "reporter", EventName: "Run.OnResult", Target: EmitTarget("reports")}},
				},
			},
		},
		Edges: map[string][]Edge{
			"emitnochan.Start": {{EventName: "Start", Target: FunctionTarget("reporter", "Run")}},
		},
	}

	pctx := newTestContext("emitnochan")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(2), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "emitnochan", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}
}
