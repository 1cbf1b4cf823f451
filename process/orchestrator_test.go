package process

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestContext(processID string) *ProcessContext {
	return &ProcessContext{ProcessID: processID, RunID: processID}
}

// TestOrchestrator_LinearFanThrough exercises a two-step chain: an
// external event reaches step A, A's result reaches step B, and B's
// result routes to the end sentinel.
func TestOrchestrator_LinearFanThrough(t *testing.T) {
	var mu sync.Mutex
	var seenByB string

	registry := NewStepRegistry()
	registry.Register("A", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("A", map[string]*EntryPoint{
			"Run": {
				Name:       "Run",
				Parameters: []ParamSpec{{Name: "input", Kind: ParamData}},
				Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
					s, _ := args["input"].(string)
					return s + "-A", nil
				},
			},
		}), nil
	})
	registry.Register("B", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("B", map[string]*EntryPoint{
			"Run": {
				Name:       "Run",
				Parameters: []ParamSpec{{Name: "input", Kind: ParamData}},
				Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
					s, _ := args["input"].(string)
					mu.Lock()
					seenByB = s
					mu.Unlock()
					return s + "-B", nil
				},
			},
		}), nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "linear", RunID: "linear"},
		Steps: map[string]StepInfo{
			"A": {
				StepID: "A", RunID: "A",
				Edges: map[string][]Edge{
					"Run.OnResult": {{SourceStepID: "A", EventName: "Run.OnResult", Target: FunctionTarget("B", "Run")}},
				},
			},
			"B": {
				StepID: "B", RunID: "B",
				Edges: map[string][]Edge{
					"Run.OnResult": {{SourceStepID: "B", EventName: "Run.OnResult", Target: EndTarget()}},
				},
			},
		},
		Edges: map[string][]Edge{
			"linear.Start": {{EventName: "Start", Target: FunctionTarget("A", "Run")}},
		},
	}

	pctx := newTestContext("linear")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(3), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "linear", LocalEventID: "Start", Data: "hello", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	mu.Lock()
	got := seenByB
	mu.Unlock()
	if got != "hello-A" {
		t.Fatalf("expected step B to observe %q, got %q", "hello-A", got)
	}
}

// TestOrchestrator_ConditionalDefault verifies that when a non-default
// edge's condition fails to match, the default edge fires instead.
func TestOrchestrator_ConditionalDefault(t *testing.T) {
	var mu sync.Mutex
	var reached string

	registry := NewStepRegistry()
	registry.Register("fast", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("fast", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				mu.Lock()
				reached = "fast"
				mu.Unlock()
				return nil, nil
			}},
		}), nil
	})
	registry.Register("slow", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("slow", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				mu.Lock()
				reached = "slow"
				mu.Unlock()
				return nil, nil
			}},
		}), nil
	})

	alwaysFalse := Predicate(func(event Event, state any) bool { return false })

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "cond", RunID: "cond"},
		Steps: map[string]StepInfo{
			"fast": {StepID: "fast", RunID: "fast"},
			"slow": {StepID: "slow", RunID: "slow"},
		},
		Edges: map[string][]Edge{
			"cond.Start": {
				{EventName: "Start", Target: FunctionTarget("fast", "Run"), Condition: alwaysFalse},
				{EventName: "Start", Target: FunctionTarget("slow", "Run"), Default: true},
			},
		},
	}

	pctx := newTestContext("cond")
	orch, err := NewOrchestrator(info, pctx, registry, WithEmptySuperstepThreshold(3), WithEmptySuperstepIdleInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "cond", LocalEventID: "Start", Visibility: VisibilityPublic}
	if err := orch.ExecuteOnce(context.Background(), initial); err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}

	mu.Lock()
	got := reached
	mu.Unlock()
	if got != "slow" {
		t.Fatalf("expected default edge to fire (slow), got %q", got)
	}
}

// TestOrchestrator_MaxSuperstepsExceeded verifies the loop terminates
// with an error once a continuously-firing cycle exceeds its bound.
func TestOrchestrator_MaxSuperstepsExceeded(t *testing.T) {
	registry := NewStepRegistry()
	registry.Register("loop", func(ctx context.Context, pctx *ProcessContext, stepID string, state any) (Step, error) {
		return NewFunctionStep("loop", map[string]*EntryPoint{
			"Run": {Name: "Run", Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				return nil, nil
			}},
		}), nil
	})

	info := ProcessInfo{
		StepInfo: StepInfo{StepID: "cycle", RunID: "cycle"},
		Steps: map[string]StepInfo{
			"loop": {
				StepID: "loop", RunID: "loop",
				Edges: map[string][]Edge{
					"Run.OnResult": {{SourceStepID: "loop", EventName: "Run.OnResult", Target: FunctionTarget("loop", "Run")}},
				},
			},
		},
		Edges: map[string][]Edge{
			"cycle.Start": {{EventName: "Start", Target: FunctionTarget("loop", "Run")}},
		},
	}

	pctx := newTestContext("cycle")
	orch, err := NewOrchestrator(info, pctx, registry, WithMaxSupersteps(3))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	initial := Event{SourceID: ExternalSourceID, Namespace: "cycle", LocalEventID: "Start", Visibility: VisibilityPublic}
	err = orch.ExecuteOnce(context.Background(), initial)
	if err != ErrMaxSuperstepsExceeded {
		t.Fatalf("expected ErrMaxSuperstepsExceeded, got %v", err)
	}
}
