package emit

import "context"

// NullEmitter implements Emitter by discarding every event. Use it to
// disable diagnostics without threading a nil check through the
// orchestrator.
type NullEmitter struct{}

// NewNullEmitter creates an Emitter that discards everything.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error {
	return nil
}

func (n *NullEmitter) Flush(context.Context) error {
	return nil
}
