// Package procfmt loads a process definition's topology — steps, edges,
// and edge groups — from a YAML document into a process.ProcessInfo.
//
// Step bodies, edge conditions, and input mappings are Go values and
// cannot round-trip through YAML; a Registry supplies them by name so a
// document can reference "retryable" or "mergeResults" without
// describing what they do.
package procfmt

import (
	"fmt"

	yaml "go.yaml.in/yaml/v2"

	"github.com/flowkernel/flowkernel/process"
)

// Registry supplies the named Go values a ProcessDoc references: edge
// predicates and group input mappings. Conditions and mappings with no
// matching registration fail Load with a descriptive error rather than
// silently defaulting to an always-true predicate.
type Registry struct {
	predicates map[string]process.Predicate
	mappings   map[string]process.InputMapping
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[string]process.Predicate),
		mappings:   make(map[string]process.InputMapping),
	}
}

// RegisterPredicate makes fn available to edges under name.
func (r *Registry) RegisterPredicate(name string, fn process.Predicate) {
	r.predicates[name] = fn
}

// RegisterMapping makes fn available to edge groups under name.
func (r *Registry) RegisterMapping(name string, fn process.InputMapping) {
	r.mappings[name] = fn
}

// SourceDoc identifies one contributor to an edge group.
type SourceDoc struct {
	Step  string `yaml:"step"`
	Event string `yaml:"event"`
}

// EdgeDoc describes one Edge. From is the owning step id; empty means a
// process-level edge (an external trigger). Kind selects the
// OutputTarget variant: "function" (default), "state", "emit", "agent",
// "end".
type EdgeDoc struct {
	From          string `yaml:"from"`
	Event         string `yaml:"event"`
	Kind          string `yaml:"kind"`
	ToStep        string `yaml:"to_step"`
	ToFunction    string `yaml:"to_function"`
	ParameterName string `yaml:"parameter_name"`
	ThreadID      string `yaml:"thread_id"`
	StatePath     string `yaml:"state_path"`
	StateOp       string `yaml:"state_op"`
	Topic         string `yaml:"topic"`
	ChannelKey    string `yaml:"channel_key"`
	ConditionName string `yaml:"condition"`
	Default       bool   `yaml:"default"`
	GroupID       string `yaml:"group_id"`
}

// GroupDoc describes one EdgeGroup.
type GroupDoc struct {
	GroupID     string      `yaml:"group_id"`
	DestStep    string      `yaml:"dest_step"`
	Function    string      `yaml:"function"`
	Sources     []SourceDoc `yaml:"sources"`
	MappingName string      `yaml:"mapping"`
}

// StepDoc describes one step's declared identity. Its Go body is wired
// separately through a StepRegistry; this only records enough to build
// the routing table and edge groups.
type StepDoc struct {
	ID      string     `yaml:"id"`
	RunID   string     `yaml:"run_id"`
	Version string     `yaml:"version"`
	Kind    string     `yaml:"kind"`
	Edges   []EdgeDoc  `yaml:"edges"`
	Groups  []GroupDoc `yaml:"groups"`
}

// ProcessDoc is the root of a process definition document.
type ProcessDoc struct {
	ProcessID string    `yaml:"process_id"`
	Steps     []StepDoc `yaml:"steps"`
	Edges     []EdgeDoc `yaml:"edges"`
}

// Load parses data as a ProcessDoc and builds the corresponding
// process.ProcessInfo, resolving named conditions and mappings against
// registry.
func Load(data []byte, registry *Registry) (process.ProcessInfo, error) {
	var doc ProcessDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return process.ProcessInfo{}, fmt.Errorf("procfmt: parse: %w", err)
	}
	return build(doc, registry)
}

func build(doc ProcessDoc, registry *Registry) (process.ProcessInfo, error) {
	info := process.ProcessInfo{
		StepInfo: process.StepInfo{StepID: doc.ProcessID, RunID: doc.ProcessID},
		Steps:    make(map[string]process.StepInfo, len(doc.Steps)),
		Edges:    make(map[string][]process.Edge),
	}

	for _, ed := range doc.Edges {
		edge, err := resolveEdge(ed, registry)
		if err != nil {
			return process.ProcessInfo{}, err
		}
		key := doc.ProcessID + "." + ed.Event
		info.Edges[key] = append(info.Edges[key], edge)
	}

	for _, sd := range doc.Steps {
		runID := sd.RunID
		if runID == "" {
			runID = sd.ID
		}
		stepInfo := process.StepInfo{
			StepID:             sd.ID,
			RunID:              runID,
			Version:            sd.Version,
			InnerStepType:      kernelTypeFromString(sd.Kind),
			Edges:              make(map[string][]process.Edge),
			IncomingEdgeGroups: make(map[string]process.EdgeGroup),
		}
		for _, ed := range sd.Edges {
			edge, err := resolveEdge(ed, registry)
			if err != nil {
				return process.ProcessInfo{}, err
			}
			edge.SourceStepID = sd.ID
			stepInfo.Edges[ed.Event] = append(stepInfo.Edges[ed.Event], edge)
		}
		for _, gd := range sd.Groups {
			group, err := resolveGroup(gd, registry)
			if err != nil {
				return process.ProcessInfo{}, err
			}
			stepInfo.IncomingEdgeGroups[gd.GroupID] = group
		}
		info.Steps[sd.ID] = stepInfo
	}

	return info, nil
}

func resolveEdge(ed EdgeDoc, registry *Registry) (process.Edge, error) {
	var condition process.Predicate
	if ed.ConditionName != "" {
		fn, ok := registry.predicates[ed.ConditionName]
		if !ok {
			return process.Edge{}, fmt.Errorf("procfmt: condition %q not registered", ed.ConditionName)
		}
		condition = fn
	}

	var target process.OutputTarget
	switch ed.Kind {
	case "", "function":
		target = process.FunctionTarget(ed.ToStep, ed.ToFunction, nonEmpty(ed.ParameterName)...)
		if ed.ThreadID != "" {
			target.ThreadID = ed.ThreadID
		}
	case "agent":
		target = process.AgentInvokeTarget(ed.ToStep, nonEmpty(ed.ThreadID)...)
	case "state":
		target = process.StateUpdateTarget(ed.StatePath, ed.StateOp)
	case "emit":
		target = process.EmitTarget(ed.Topic, nonEmpty(ed.ChannelKey)...)
	case "end":
		target = process.EndTarget()
	default:
		return process.Edge{}, fmt.Errorf("procfmt: unknown edge kind %q", ed.Kind)
	}

	return process.Edge{
		SourceStepID: ed.From,
		EventName:    ed.Event,
		Target:       target,
		Condition:    condition,
		Default:      ed.Default,
		GroupID:      ed.GroupID,
	}, nil
}

func resolveGroup(gd GroupDoc, registry *Registry) (process.EdgeGroup, error) {
	var mapping process.InputMapping
	if gd.MappingName != "" {
		fn, ok := registry.mappings[gd.MappingName]
		if !ok {
			return process.EdgeGroup{}, fmt.Errorf("procfmt: mapping %q not registered", gd.MappingName)
		}
		mapping = fn
	}
	sources := make([]process.GroupSource, len(gd.Sources))
	for i, sd := range gd.Sources {
		sources[i] = process.GroupSource{SourceStepID: sd.Step, EventName: sd.Event}
	}
	return process.EdgeGroup{
		GroupID:           gd.GroupID,
		DestinationStepID: gd.DestStep,
		FunctionName:      gd.Function,
		Sources:           sources,
		InputMapping:      mapping,
	}, nil
}

func kernelTypeFromString(s string) process.KernelType {
	switch s {
	case "sub-process":
		return process.KernelSubProcess
	case "map":
		return process.KernelMap
	case "proxy":
		return process.KernelProxy
	case "agent":
		return process.KernelAgent
	default:
		return process.KernelFunction
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
