// Package process implements a Pregel-style process orchestration runtime:
// a graph of user-defined steps connected by event-driven edges, driven to
// quiescence by a superstep loop over a per-process message bus.
//
// The hard subsystem is the orchestrator and its bus: routing events to
// edges, joining multi-source AllOf groups, tracking per-step invocation
// readiness, and persisting durable snapshots between supersteps. Step
// bodies themselves are user/plugin code invoked through the Step
// interface and its EntryPoint callables; this package only specifies how they are
// scheduled and wired together.
package process
