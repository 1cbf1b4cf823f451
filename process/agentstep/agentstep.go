package agentstep

import (
	"context"
	"fmt"

	"github.com/flowkernel/flowkernel/process"
	"github.com/flowkernel/flowkernel/process/toolstep"
)

// State is an agent step's persisted conversation history, keyed by
// thread id so concurrent conversations on the same step never mix.
type State struct {
	Threads map[string][]Message
}

// Step is the agent step-kernel variant: its "Invoke" entry point appends
// the incoming message to the named thread's history, calls model, runs
// any tool calls the model requests through invoker, and returns the
// model's text.
type Step struct {
	id           string
	model        ChatModel
	systemPrompt string
	tools        []ToolSpec
	invoker      toolstep.Invoker
	pctx         *process.ProcessContext

	state State
}

// NewFactory builds the process.Factory StepRegistry expects, producing a
// *Step bound to the parent ProcessContext and restored conversation
// state (if any).
func NewFactory(model ChatModel, systemPrompt string, tools []ToolSpec, invoker toolstep.Invoker) process.Factory {
	return func(ctx context.Context, pctx *process.ProcessContext, stepID string, restored any) (process.Step, error) {
		s := &Step{
			id:           stepID,
			model:        model,
			systemPrompt: systemPrompt,
			tools:        tools,
			invoker:      invoker,
			pctx:         pctx,
			state:        State{Threads: make(map[string][]Message)},
		}
		if st, ok := restored.(State); ok && st.Threads != nil {
			s.state = st
		}
		return s, nil
	}
}

func (s *Step) ID() string               { return s.id }
func (s *Step) Kind() process.KernelType { return process.KernelAgent }
func (s *Step) State() any               { return s.state }

func (s *Step) SetState(v any) {
	if st, ok := v.(State); ok {
		s.state = st
	}
}

func (s *Step) Activate(ctx context.Context, state any) error {
	if st, ok := state.(State); ok && st.Threads != nil {
		s.state = st
	}
	return nil
}

func (s *Step) Dispose(ctx context.Context) error { return nil }

func (s *Step) EntryPoints() map[string]*process.EntryPoint {
	return map[string]*process.EntryPoint{
		"Invoke": {
			Name:       "Invoke",
			Parameters: []process.ParamSpec{{Name: "message", Kind: process.ParamData}},
			Invoke:     s.invoke,
		},
	}
}

func (s *Step) invoke(ctx context.Context, kctx *process.KernelContext, args map[string]any) (any, error) {
	text, _ := args["message"].(string)
	threadID := kctx.ThreadID
	if threadID == "" {
		threadID = "default"
	}

	history := s.state.Threads[threadID]
	if s.systemPrompt != "" && len(history) == 0 {
		history = append(history, Message{Role: RoleSystem, Content: s.systemPrompt})
	}
	history = append(history, Message{Role: RoleUser, Content: text})

	out, err := s.model.Chat(ctx, history, s.tools)
	if err != nil {
		return nil, fmt.Errorf("agent step %s: %w", s.id, err)
	}

	if s.pctx != nil && s.pctx.CostTracker != nil {
		s.pctx.CostTracker.RecordInvocation(s.pctx.ProcessID, s.id, kctx.RunID, s.modelName(), out.Usage.InputTokens, out.Usage.OutputTokens)
	}

	for _, call := range out.ToolCalls {
		if s.invoker == nil {
			continue
		}
		result, toolErr := s.invoker.Invoke(ctx, call.Name, call.Input)
		if toolErr != nil {
			history = append(history, Message{Role: RoleAssistant, Content: fmt.Sprintf("tool %s failed: %v", call.Name, toolErr)})
			continue
		}
		history = append(history, Message{Role: RoleAssistant, Content: fmt.Sprintf("tool %s -> %v", call.Name, result)})
	}

	if out.Text != "" {
		history = append(history, Message{Role: RoleAssistant, Content: out.Text})
	}
	s.state.Threads[threadID] = history

	return out.Text, nil
}

func (s *Step) modelName() string {
	if named, ok := s.model.(Named); ok {
		return named.ModelName()
	}
	return "unknown"
}
