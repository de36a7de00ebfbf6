package cost

import "sync"

// Tracker accumulates API spend for a single analysis run. Safe for
// concurrent use by the per-peer augmentation workers.
type Tracker struct {
	mu           sync.Mutex
	calc         *Calculator
	inputTokens  int64
	outputTokens int64
	llmCalls     int
	xapiCalls    int
	totalUSD     float64
}

// NewTracker creates a run-scoped tracker using the given calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// RecordCompletion records token usage for one LLM call and returns its cost.
func (t *Tracker) RecordCompletion(model string, input, output int) float64 {
	cost := t.calc.Completion(model, input, output)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTokens += int64(input)
	t.outputTokens += int64(output)
	t.llmCalls++
	t.totalUSD += cost
	return cost
}

// RecordXAPIRequests records n X API requests at the flat per-request rate.
func (t *Tracker) RecordXAPIRequests(n int) float64 {
	cost := t.calc.XAPIRequest() * float64(n)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.xapiCalls += n
	t.totalUSD += cost
	return cost
}

// Summary is a point-in-time snapshot of a run's accumulated spend.
type Summary struct {
	InputTokens  int64
	OutputTokens int64
	LLMCalls     int
	XAPICalls    int
	TotalUSD     float64
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		LLMCalls:     t.llmCalls,
		XAPICalls:    t.xapiCalls,
		TotalUSD:     t.totalUSD,
	}
}
