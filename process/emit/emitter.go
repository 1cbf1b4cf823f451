package emit

import "context"

// Emitter receives diagnostic events from a running orchestrator.
//
// Implementations should be non-blocking and thread-safe: the
// orchestrator calls Emit from every concurrent superstep dispatch
// goroutine and must never be slowed down or panicked by a backend
// failure.
type Emitter interface {
	// Emit sends a single diagnostic event. Must not block or panic;
	// backend failures should be handled internally.
	Emit(event Event)

	// EmitBatch sends multiple events in one call. Implementations
	// should preserve event order. Returns error only on catastrophic,
	// non-recoverable failures.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been delivered to the
	// backend, or ctx is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
