package process

import (
	"sync"
	"time"
)

// ModelPricing holds per-million-token input/output costs in USD.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the providers process/agentstep ships
// clients for. Update as providers adjust pricing.
var defaultModelPricing = map[string]ModelPricing{
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// AgentInvocation records one chat-completion call made by an agent-kernel
// step, attributed to the process/step/run that made it.
type AgentInvocation struct {
	ProcessID    string
	StepID       string
	RunID        string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker accumulates LLM token usage and USD cost across the
// agent-kernel steps of a running process, attributed to the
// (processId, stepId, runId) that invoked them.
type CostTracker struct {
	Currency string
	Pricing  map[string]ModelPricing

	mu          sync.Mutex
	calls       []AgentInvocation
	totalCost   float64
	costByModel map[string]float64
}

// NewCostTracker creates a tracker seeded with the default pricing table.
func NewCostTracker(currency string) *CostTracker {
	return &CostTracker{
		Currency:    currency,
		Pricing:     defaultModelPricing,
		costByModel: make(map[string]float64),
	}
}

// RecordInvocation records one agent-step chat call and updates running
// totals. Unknown models are recorded at zero cost rather than rejected:
// an agent step should never fail because its pricing entry is missing.
func (ct *CostTracker) RecordInvocation(processID, stepID, runID, model string, inputTokens, outputTokens int) AgentInvocation {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.Pricing[model]
	cost := (float64(inputTokens)*pricing.InputPer1M + float64(outputTokens)*pricing.OutputPer1M) / 1_000_000

	call := AgentInvocation{
		ProcessID:    processID,
		StepID:       stepID,
		RunID:        runID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	}
	ct.calls = append(ct.calls, call)
	ct.totalCost += cost
	ct.costByModel[model] += cost
	return call
}

// TotalCost returns the cumulative cost recorded so far.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.totalCost
}

// CostByStep attributes total cost to each (processId, stepId, runId).
func (ct *CostTracker) CostByStep() map[string]float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make(map[string]float64)
	for _, c := range ct.calls {
		key := c.ProcessID + "/" + c.StepID + "/" + c.RunID
		out[key] += c.CostUSD
	}
	return out
}
