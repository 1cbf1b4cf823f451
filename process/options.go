package process

import "time"

// Options configures a ProcessOrchestrator. The zero value is usable:
// every field has a documented default applied by NewOrchestrator.
//
// Options can be passed as a struct literal or built up with functional
// Option values; NewOrchestrator accepts either, mirroring each other
// when both are supplied (Option values apply after the Options struct).
type Options struct {
	// MaxSupersteps bounds the superstep loop. Zero means unlimited; use
	// EmptySuperstepThreshold to still guarantee termination on
	// quiescence.
	MaxSupersteps int

	// EmptySuperstepThreshold is the number of consecutive empty
	// supersteps (drainPending returning nothing) tolerated before a
	// one-shot orchestrator concludes no further progress is possible
	// and exits. Ignored in continuous mode. Default 5.
	EmptySuperstepThreshold int

	// EmptySuperstepIdleInterval is how long the orchestrator sleeps
	// between an empty drain and the next one, to allow asynchronous
	// step work to enqueue further messages. Default 10ms.
	EmptySuperstepIdleInterval time.Duration

	// DefaultStepTimeout bounds the delivery of a single message to a
	// step: the context passed to that delivery, and so to any entry-point
	// invocation it triggers, carries this deadline. Zero means unlimited.
	DefaultStepTimeout time.Duration

	// Continuous, when true, puts the orchestrator in continuous mode:
	// empty supersteps never count toward EmptySuperstepThreshold: the
	// orchestrator idles until externally cancelled or the end sentinel
	// is reached.
	Continuous bool

	// Metrics is an optional Prometheus metrics sink. Nil disables
	// metrics collection.
	Metrics *Metrics

	// CostTracker is an optional LLM cost/usage accumulator, consulted
	// by agent-kernel steps. Nil disables cost attribution.
	CostTracker *CostTracker

	// EventFilter, if set, is consulted by the bus before routing any
	// event; returning false drops the event silently.
	EventFilter func(Event) bool
}

// Option is a functional option for configuring a ProcessOrchestrator.
// Chainable: NewOrchestrator(info, pctx, registry, WithMaxSupersteps(50), WithMetrics(m)).
type Option func(*orchestratorConfig) error

// orchestratorConfig collects options before they are applied, the same
// indirection the Options struct itself uses so struct and functional
// forms compose predictably.
type orchestratorConfig struct {
	opts Options
}

// WithMaxSupersteps bounds the superstep loop. See Options.MaxSupersteps.
func WithMaxSupersteps(n int) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.MaxSupersteps = n
		return nil
	}
}

// WithEmptySuperstepThreshold sets the idle-drain tolerance in one-shot
// mode. See Options.EmptySuperstepThreshold.
func WithEmptySuperstepThreshold(n int) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.EmptySuperstepThreshold = n
		return nil
	}
}

// WithEmptySuperstepIdleInterval sets the sleep between empty drains.
func WithEmptySuperstepIdleInterval(d time.Duration) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.EmptySuperstepIdleInterval = d
		return nil
	}
}

// WithDefaultStepTimeout sets the per-delivery timeout applied to every
// step. See Options.DefaultStepTimeout.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.DefaultStepTimeout = d
		return nil
	}
}

// WithContinuous puts the orchestrator in continuous mode. See
// Options.Continuous.
func WithContinuous(enabled bool) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.Continuous = enabled
		return nil
	}
}

// WithMetrics attaches a Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}

// WithCostTracker attaches an LLM cost/usage accumulator for agent steps.
func WithCostTracker(c *CostTracker) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.CostTracker = c
		return nil
	}
}

// WithEventFilter installs a predicate consulted before every event is
// routed; returning false drops the event silently.
func WithEventFilter(f func(Event) bool) Option {
	return func(cfg *orchestratorConfig) error {
		cfg.opts.EventFilter = f
		return nil
	}
}

func defaultOptions() Options {
	return Options{
		EmptySuperstepThreshold:    5,
		EmptySuperstepIdleInterval: 10 * time.Millisecond,
	}
}

// resolveOptions applies a mix of Options structs and Option functional
// values: every Options struct first, in order, then every Option value,
// in order, the same "legacy struct first, functional overrides after"
// convention used throughout this package's constructors.
func resolveOptions(options ...interface{}) (Options, error) {
	cfg := &orchestratorConfig{opts: defaultOptions()}
	for _, opt := range options {
		if v, ok := opt.(Options); ok {
			merged := defaultOptions()
			if v.EmptySuperstepThreshold != 0 {
				merged.EmptySuperstepThreshold = v.EmptySuperstepThreshold
			}
			if v.EmptySuperstepIdleInterval != 0 {
				merged.EmptySuperstepIdleInterval = v.EmptySuperstepIdleInterval
			}
			merged.MaxSupersteps = v.MaxSupersteps
			merged.DefaultStepTimeout = v.DefaultStepTimeout
			merged.Continuous = v.Continuous
			merged.Metrics = v.Metrics
			merged.CostTracker = v.CostTracker
			merged.EventFilter = v.EventFilter
			cfg.opts = merged
		}
	}
	for _, opt := range options {
		if v, ok := opt.(Option); ok {
			if err := v(cfg); err != nil {
				return Options{}, err
			}
		}
	}
	return cfg.opts, nil
}
