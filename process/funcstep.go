package process

import "context"

// FunctionStep is the plain function-step kernel: a named bag of entry
// points with no sub-process nesting and no model involvement. Most
// process definitions are built almost entirely out of these.
type FunctionStep struct {
	id          string
	entryPoints map[string]*EntryPoint
	state       any
	onActivate  func(ctx context.Context, state any) error
	onDispose   func(ctx context.Context) error
}

// NewFunctionStep builds a function-step kernel exposing entryPoints.
func NewFunctionStep(id string, entryPoints map[string]*EntryPoint) *FunctionStep {
	return &FunctionStep{id: id, entryPoints: entryPoints}
}

// OnActivate registers a hook run once with the step's restored state.
func (s *FunctionStep) OnActivate(fn func(ctx context.Context, state any) error) *FunctionStep {
	s.onActivate = fn
	return s
}

// OnDispose registers a hook run once on process shutdown.
func (s *FunctionStep) OnDispose(fn func(ctx context.Context) error) *FunctionStep {
	s.onDispose = fn
	return s
}

func (s *FunctionStep) ID() string                          { return s.id }
func (s *FunctionStep) Kind() KernelType                    { return KernelFunction }
func (s *FunctionStep) EntryPoints() map[string]*EntryPoint { return s.entryPoints }
func (s *FunctionStep) State() any                          { return s.state }
func (s *FunctionStep) SetState(v any)                      { s.state = v }

func (s *FunctionStep) Activate(ctx context.Context, state any) error {
	s.state = state
	if s.onActivate != nil {
		return s.onActivate(ctx, state)
	}
	return nil
}

func (s *FunctionStep) Dispose(ctx context.Context) error {
	if s.onDispose != nil {
		return s.onDispose(ctx)
	}
	return nil
}

// MapFunc applies fn to one element; index is the element's position in
// the incoming slice.
type MapFunc func(ctx context.Context, index int, item any) (any, error)

// MapStep is the map step-kernel variant: a single "Apply" entry point
// that runs fn over each element of an incoming slice and emits the
// collected results as one event. Elements run sequentially; this kernel
// models fan-out over data, not fan-out over steps (that is the
// orchestrator's per-message concurrency, one layer up).
type MapStep struct {
	id    string
	fn    MapFunc
	state any
}

// NewMapStep builds a map-kernel step named id, applying fn to each
// element of its "items" parameter.
func NewMapStep(id string, fn MapFunc) *MapStep {
	return &MapStep{id: id, fn: fn}
}

func (s *MapStep) ID() string       { return s.id }
func (s *MapStep) Kind() KernelType { return KernelMap }
func (s *MapStep) State() any       { return s.state }
func (s *MapStep) SetState(v any)   { s.state = v }

func (s *MapStep) Activate(ctx context.Context, state any) error {
	s.state = state
	return nil
}

func (s *MapStep) Dispose(ctx context.Context) error { return nil }

func (s *MapStep) EntryPoints() map[string]*EntryPoint {
	return map[string]*EntryPoint{
		"Apply": {
			Name:       "Apply",
			Parameters: []ParamSpec{{Name: "items", Kind: ParamData}},
			Invoke:     s.apply,
		},
	}
}

func (s *MapStep) apply(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
	items, _ := args["items"].([]any)
	results := make([]any, len(items))
	for i, item := range items {
		r, err := s.fn(ctx, i, item)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

// ProxyFunc forwards a call to an out-of-process collaborator (another
// orchestrator instance, a remote service) and returns its response.
type ProxyFunc func(ctx context.Context, functionName string, args map[string]any) (any, error)

// ProxyStep is the proxy step-kernel variant: every entry point call is
// forwarded verbatim to fn rather than executed locally. Used to front a
// remote process or a non-Go collaborator behind the same Step
// capability every local kernel implements.
type ProxyStep struct {
	id          string
	entryPoints map[string]*EntryPoint
	fn          ProxyFunc
	state       any
}

// NewProxyStep builds a proxy-kernel step named id exposing the named
// entry points, each forwarding through fn.
func NewProxyStep(id string, functionNames []string, fn ProxyFunc) *ProxyStep {
	s := &ProxyStep{id: id, fn: fn, entryPoints: make(map[string]*EntryPoint, len(functionNames))}
	for _, name := range functionNames {
		name := name
		s.entryPoints[name] = &EntryPoint{
			Name: name,
			Invoke: func(ctx context.Context, kctx *KernelContext, args map[string]any) (any, error) {
				return s.fn(ctx, name, args)
			},
		}
	}
	return s
}

func (s *ProxyStep) ID() string                          { return s.id }
func (s *ProxyStep) Kind() KernelType                    { return KernelProxy }
func (s *ProxyStep) EntryPoints() map[string]*EntryPoint { return s.entryPoints }
func (s *ProxyStep) State() any                          { return s.state }
func (s *ProxyStep) SetState(v any)                      { s.state = v }

func (s *ProxyStep) Activate(ctx context.Context, state any) error {
	s.state = state
	return nil
}

func (s *ProxyStep) Dispose(ctx context.Context) error { return nil }
