package process

import (
	"context"
	"testing"

	"github.com/flowkernel/flowkernel/process/store"
)

func TestEdgeGroupProcessor_ReleasesOnceAllSourcesArrive(t *testing.T) {
	group := EdgeGroup{
		GroupID:           "join1",
		DestinationStepID: "merge",
		FunctionName:      "Combine",
		Sources: []GroupSource{
			{SourceStepID: "A", EventName: "Done"},
			{SourceStepID: "B", EventName: "Done"},
		},
	}
	proc := NewEdgeGroupProcessor(group, "proc", "run1", store.NewMemManager())

	complete, _ := proc.Observe(context.Background(), StepMessage{SourceID: "A", SourceLocalEventID: "Done", Data: 1})
	if complete {
		t.Fatal("expected incomplete after only one of two sources arrived")
	}

	complete, result := proc.Observe(context.Background(), StepMessage{SourceID: "B", SourceLocalEventID: "Done", Data: 2})
	if !complete {
		t.Fatal("expected release once every source contributed")
	}
	if result["A.Done"] != 1 || result["B.Done"] != 2 {
		t.Fatalf("unexpected merged result: %+v", result)
	}
}

func TestEdgeGroupProcessor_LastWinsOnRepeatedSource(t *testing.T) {
	group := EdgeGroup{
		GroupID:           "join1",
		DestinationStepID: "merge",
		Sources: []GroupSource{
			{SourceStepID: "A", EventName: "Done"},
			{SourceStepID: "B", EventName: "Done"},
		},
	}
	proc := NewEdgeGroupProcessor(group, "proc", "run1", nil)

	if complete, _ := proc.Observe(context.Background(), StepMessage{SourceID: "A", SourceLocalEventID: "Done", Data: "first"}); complete {
		t.Fatal("expected incomplete")
	}
	if complete, _ := proc.Observe(context.Background(), StepMessage{SourceID: "A", SourceLocalEventID: "Done", Data: "second"}); complete {
		t.Fatal("a repeated source must not release the group by itself")
	}
	complete, result := proc.Observe(context.Background(), StepMessage{SourceID: "B", SourceLocalEventID: "Done", Data: "b"})
	if !complete {
		t.Fatal("expected release once B arrives")
	}
	if result["A.Done"] != "second" {
		t.Fatalf("expected last-wins value %q, got %v", "second", result["A.Done"])
	}
}

func TestEdgeGroupProcessor_UnrelatedSourceIgnored(t *testing.T) {
	group := EdgeGroup{
		GroupID: "join1",
		Sources: []GroupSource{{SourceStepID: "A", EventName: "Done"}},
	}
	proc := NewEdgeGroupProcessor(group, "proc", "run1", nil)
	complete, result := proc.Observe(context.Background(), StepMessage{SourceID: "Z", SourceLocalEventID: "Done", Data: "nope"})
	if complete || result != nil {
		t.Fatalf("expected an unrelated source to be ignored, got complete=%v result=%v", complete, result)
	}
}

func TestEdgeGroupProcessor_InputMappingAppliedOnRelease(t *testing.T) {
	group := EdgeGroup{
		GroupID: "join1",
		Sources: []GroupSource{{SourceStepID: "A", EventName: "Done"}},
		InputMapping: func(data map[string]any) map[string]any {
			return map[string]any{"combined": data["A.Done"]}
		},
	}
	proc := NewEdgeGroupProcessor(group, "proc", "run1", nil)
	complete, result := proc.Observe(context.Background(), StepMessage{SourceID: "A", SourceLocalEventID: "Done", Data: "value"})
	if !complete {
		t.Fatal("expected release with a single required source")
	}
	if result["combined"] != "value" {
		t.Fatalf("expected InputMapping to run, got %+v", result)
	}
}

func TestEdgeGroupProcessor_RehydratesPartialStateFromStorage(t *testing.T) {
	mem := store.NewMemManager()
	group := EdgeGroup{
		GroupID:           "join1",
		DestinationStepID: "merge",
		Sources: []GroupSource{
			{SourceStepID: "A", EventName: "Done"},
			{SourceStepID: "B", EventName: "Done"},
		},
	}

	first := NewEdgeGroupProcessor(group, "proc", "run1", mem)
	if complete, _ := first.Observe(context.Background(), StepMessage{SourceID: "A", SourceLocalEventID: "Done", Data: "a-value"}); complete {
		t.Fatal("expected incomplete after first source")
	}

	// Simulate a restart: a fresh processor over the same (group,
	// destination, run) rehydrates A's partial contribution from storage
	// before B arrives.
	second := NewEdgeGroupProcessor(group, "proc", "run1", mem)
	complete, result := second.Observe(context.Background(), StepMessage{SourceID: "B", SourceLocalEventID: "Done", Data: "b-value"})
	if !complete {
		t.Fatal("expected release after rehydrating A and observing B")
	}
	if result["A.Done"] != "a-value" || result["B.Done"] != "b-value" {
		t.Fatalf("unexpected rehydrated result: %+v", result)
	}
}
