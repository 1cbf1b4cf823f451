package process

import (
	"sync"
)

// MessageBus owns one process's pending message queue, its edge routing
// table (indexed by qualified event id), and its registered edge groups.
// It consumes Events and produces StepMessages.
//
// A MessageBus belongs to exactly one ProcessContext and is driven by
// exactly one orchestrator: the single-writer invariant means enqueue and
// drainPending never race with each other across goroutines other than
// the owning orchestrator's superstep loop.
type MessageBus struct {
	processID string

	mu      sync.Mutex
	pending []StepMessage

	routes map[string][]Edge
	groups map[string]EdgeGroup

	globalErrorTarget []Edge

	// unconsumed, when set, is called for any public event with no
	// matching edge instead of discarding it silently. Sub-process
	// wrappers install this to forward surviving child events upward.
	unconsumed func(event Event, state any)
}

// NewMessageBus builds a bus for processID and indexes info's routing
// table: process-level edges first, then every step's declared edges
// folded in under keys qualified by that step's own namespace
// (<stepName>_<runId>.<event>) so a step-emitted event and a
// process-level edge never collide in the same key space.
func NewMessageBus(processID string, info ProcessInfo) *MessageBus {
	b := &MessageBus{
		processID: processID,
		routes:    make(map[string][]Edge),
		groups:    make(map[string]EdgeGroup),
	}
	for qualifiedID, edges := range info.Edges {
		b.routes[qualifiedID] = append(b.routes[qualifiedID], edges...)
	}
	for _, step := range info.Steps {
		ns := StepNamespace(step.StepID, step.RunID)
		for localEventID, edges := range step.Edges {
			key := ns + "." + localEventID
			b.routes[key] = append(b.routes[key], edges...)
		}
		for groupID, group := range step.IncomingEdgeGroups {
			b.groups[groupID] = group
		}
	}
	return b
}

// SetGlobalErrorTarget installs the edges an unrouted error event falls
// back to.
func (b *MessageBus) SetGlobalErrorTarget(edges []Edge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalErrorTarget = edges
}

// SetUnconsumedHandler installs the callback invoked for a public event
// that matches no edge in this bus's routing table.
func (b *MessageBus) SetUnconsumedHandler(fn func(event Event, state any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unconsumed = fn
}

// RegisterEdgeGroup makes group discoverable by id, for messages that
// declare GroupID.
func (b *MessageBus) RegisterEdgeGroup(group EdgeGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[group.GroupID] = group
}

// EdgeGroup looks up a previously registered group by id.
func (b *MessageBus) EdgeGroup(groupID string) (EdgeGroup, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	return g, ok
}

// EmitEvent applies the optional filter, finds the edge list for
// event.QualifiedID(), and enqueues the resulting StepMessages.
//
// If no edges match and the event IsError, the bus falls back to the
// global-error routing list. If that is also empty, a public event is
// handed to the unconsumed-event handler when one is installed; any other
// unrouted event is discarded silently.
func (b *MessageBus) EmitEvent(event Event, filter func(Event) bool, state any) {
	if filter != nil && !filter(event) {
		return
	}
	edges := b.edgesFor(event.QualifiedID())
	if len(edges) == 0 && event.IsError {
		b.mu.Lock()
		edges = b.globalErrorTarget
		b.mu.Unlock()
	}
	if len(edges) == 0 {
		if event.Visibility == VisibilityPublic {
			b.mu.Lock()
			handler := b.unconsumed
			b.mu.Unlock()
			if handler != nil {
				handler(event, state)
			}
		}
		return
	}
	for _, msg := range materializeEdges(edges, event, state) {
		b.Enqueue(msg)
	}
}

// AddExternalEvent routes an externally injected event identically to
// EmitEvent, against the process-level (not step-local) routing entries.
func (b *MessageBus) AddExternalEvent(event Event, filter func(Event) bool, state any) {
	event.SourceID = ExternalSourceID
	b.EmitEvent(event, filter, state)
}

func (b *MessageBus) edgesFor(qualifiedID string) []Edge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.routes[qualifiedID]
}

// materializeEdges applies edge condition semantics: every matching
// non-default edge fires; if none match, every default edge fires.
// Ordering among parallel edges carries no meaning beyond this
// default/non-default tie-break.
func materializeEdges(edges []Edge, event Event, state any) []StepMessage {
	var nonDefaultFired []StepMessage
	var defaultFired []StepMessage
	for _, edge := range edges {
		if edge.Condition != nil && !edge.Condition(event, state) {
			continue
		}
		msg := buildMessage(edge, event)
		if edge.Default {
			defaultFired = append(defaultFired, msg)
		} else {
			nonDefaultFired = append(nonDefaultFired, msg)
		}
	}
	if len(nonDefaultFired) > 0 {
		return nonDefaultFired
	}
	return defaultFired
}

func buildMessage(edge Edge, event Event) StepMessage {
	msg := StepMessage{
		SourceID:           event.SourceID,
		SourceLocalEventID: event.LocalEventID,
		SourceEventID:      event.QualifiedID(),
		Data:               event.Data,
		GroupID:            edge.GroupID,
		ThreadID:           event.ThreadID,
	}
	switch edge.Target.Kind {
	case TargetFunction:
		msg.TargetKind = TargetFunction
		msg.DestinationID = edge.Target.StepID
		msg.FunctionName = edge.Target.FunctionName
		if edge.Target.ParameterName != "" {
			msg.Parameters = map[string]any{edge.Target.ParameterName: event.Data}
		}
	case TargetAgentInvoke:
		msg.TargetKind = TargetAgentInvoke
		msg.DestinationID = edge.Target.StepID
		if edge.Target.ThreadID != "" {
			msg.ThreadID = edge.Target.ThreadID
		}
	case TargetStateUpdate:
		msg.TargetKind = TargetStateUpdate
		msg.DestinationID = edge.SourceStepID
		msg.StatePath = edge.Target.StatePath
		msg.StateOp = edge.Target.StateOp
	case TargetEmit:
		msg.TargetKind = TargetEmit
		msg.Topic = edge.Target.Topic
		msg.ChannelKey = edge.Target.ChannelKey
	case TargetEnd:
		msg.TargetKind = TargetEnd
		msg.DestinationID = EndStepID
	}
	return msg
}

// Enqueue appends message to the pending queue in O(1).
func (b *MessageBus) Enqueue(message StepMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, message)
}

// DrainPending returns the queue's current contents and empties it
// atomically. Safe only under the bus's single-writer invariant: exactly
// one orchestrator superstep loop calls this per process.
func (b *MessageBus) DrainPending() []StepMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	drained := b.pending
	b.pending = nil
	return drained
}

// Len reports the current pending queue depth without draining it.
func (b *MessageBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
