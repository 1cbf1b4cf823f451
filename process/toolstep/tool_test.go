package toolstep

import (
	"context"
	"errors"
	"testing"
)

func TestRegistry_InvokeKnownTool(t *testing.T) {
	reg := NewRegistry()
	mock := &MockTool{ToolName: "echo", Responses: []map[string]interface{}{{"out": "first"}, {"out": "second"}}}
	reg.Register(mock)

	out, err := reg.Invoke(context.Background(), "echo", map[string]interface{}{"in": "a"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["out"] != "first" {
		t.Fatalf("unexpected first response: %+v", out)
	}

	out, err = reg.Invoke(context.Background(), "echo", map[string]interface{}{"in": "b"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["out"] != "second" {
		t.Fatalf("unexpected second response: %+v", out)
	}

	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", mock.CallCount())
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Invoke(context.Background(), "missing", nil)
	var notFound ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestMockTool_ErrInjection(t *testing.T) {
	mock := &MockTool{ToolName: "boom", Err: errors.New("nope")}
	_, err := mock.Call(context.Background(), nil)
	if err == nil || err.Error() != "nope" {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestMockTool_Reset(t *testing.T) {
	mock := &MockTool{ToolName: "t", Responses: []map[string]interface{}{{"a": 1}}}
	_, _ = mock.Call(context.Background(), nil)
	_, _ = mock.Call(context.Background(), nil)
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls before reset, got %d", mock.CallCount())
	}
	mock.Reset()
	if mock.CallCount() != 0 {
		t.Fatalf("expected 0 calls after reset, got %d", mock.CallCount())
	}
}
