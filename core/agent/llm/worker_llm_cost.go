package llm

import (
	"sort"
	"sync"
	"time"
)

// pricing per 1M tokens (input, output) in USD
var modelPricing = map[string][2]float64{
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4o":       {2.50, 10.00},
	"gpt-4.1-mini": {0.40, 1.60},
}

// CalculateCost estimates the cost of one call. Unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p[0] + float64(outputTokens)/1e6*p[1]
}

// UsageTracker tracks token usage per oracle operation
type UsageTracker struct {
	mu        sync.RWMutex
	ops       map[string]*opUsage
	dailyCost map[string]float64
}

type opUsage struct {
	requests         int64
	promptTokens     int64
	completionTokens int64
	cost             float64
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		ops:       make(map[string]*opUsage),
		dailyCost: make(map[string]float64),
	}
}

func (t *UsageTracker) Track(op, model string, inputTokens, outputTokens int) float64 {
	cost := CalculateCost(model, inputTokens, outputTokens)

	t.mu.Lock()
	u, ok := t.ops[op]
	if !ok {
		u = &opUsage{}
		t.ops[op] = u
	}
	u.requests++
	u.promptTokens += int64(inputTokens)
	u.completionTokens += int64(outputTokens)
	u.cost += cost
	t.dailyCost[time.Now().UTC().Format("2006-01-02")] += cost
	t.mu.Unlock()

	return cost
}

type UsageStats struct {
	Operation        string  `json:"operation"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost_usd"`
}

// Stats returns per-operation usage ordered by operation name.
func (t *UsageTracker) Stats() []UsageStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make([]UsageStats, 0, len(t.ops))
	for op, u := range t.ops {
		stats = append(stats, UsageStats{
			Operation:        op,
			Requests:         u.requests,
			PromptTokens:     u.promptTokens,
			CompletionTokens: u.completionTokens,
			Cost:             u.cost,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}

// CostToday returns today's estimated spend (UTC).
func (t *UsageTracker) CostToday() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dailyCost[time.Now().UTC().Format("2006-01-02")]
}
