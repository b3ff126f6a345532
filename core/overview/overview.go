package overview

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type contextKey string

const overviewContextKey contextKey = "overview"

// Usage counts tokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns u + other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Call is one finished resource call. A streamed call is recorded once, when
// its last chunk arrives.
type Call struct {
	Resource          string        `json:"resource"`
	Model             string        `json:"model"`
	ResponseID        string        `json:"response_id,omitempty"`
	Streaming         bool          `json:"streaming,omitempty"`
	Usage             Usage         `json:"usage"`
	RequestLatency    time.Duration `json:"request_latency"`
	FirstTokenLatency time.Duration `json:"first_token_latency,omitempty"`
	TotalLatency      time.Duration `json:"total_latency"`
	Err               string        `json:"error,omitempty"`
}

// ModelPrice is the list price of a model in CNY per thousand tokens.
type ModelPrice struct {
	InputPerThousand  float64 `json:"input_per_thousand"`
	OutputPerThousand float64 `json:"output_per_thousand"`
}

// Cost returns the price of usage.
func (p ModelPrice) Cost(usage Usage) float64 {
	return float64(usage.PromptTokens)/1000*p.InputPerThousand +
		float64(usage.CompletionTokens)/1000*p.OutputPerThousand
}

// CostSummary is the cost breakdown returned by Overview.CostSummary.
type CostSummary struct {
	ModelCosts map[string]float64 `json:"model_costs"`
	// Unpriced lists models that were called but have no price set.
	Unpriced  []string `json:"unpriced,omitempty"`
	TotalCost float64  `json:"total_cost"`
	Currency  string   `json:"currency"`
}

// Overview collects calls. It is safe for concurrent use; embedding batches
// record from several goroutines.
type Overview struct {
	mu sync.Mutex

	calls        []Call
	totalUsage   Usage
	usageByModel map[string]Usage
	errors       int
	prices       map[string]ModelPrice

	startTime time.Time
	endTime   time.Time
}

// New returns an empty Overview whose clock starts now.
func New() *Overview {
	return &Overview{
		usageByModel: make(map[string]Usage),
		prices:       make(map[string]ModelPrice),
		startTime:    time.Now(),
	}
}

// OverviewFromContext retrieves the Overview from the context, creating one
// if none is stored. When one is created *ctx is replaced by the enriched
// context so the caller's later calls see it.
func OverviewFromContext(ctx *context.Context) *Overview {
	if o := FromContext(*ctx); o != nil {
		return o
	}
	o := New()
	*ctx = o.ToContext(*ctx)
	return o
}

// FromContext returns the Overview stored in ctx, or nil.
func FromContext(ctx context.Context) *Overview {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(overviewContextKey).(*Overview)
	return o
}

// ToContext stores the Overview in ctx.
func (o *Overview) ToContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, overviewContextKey, o)
}

// Record adds a finished call.
func (o *Overview) Record(call Call) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, call)
	if call.Err != "" {
		o.errors++
		return
	}
	o.totalUsage = o.totalUsage.Add(call.Usage)
	if o.usageByModel == nil {
		o.usageByModel = make(map[string]Usage)
	}
	o.usageByModel[call.Model] = o.usageByModel[call.Model].Add(call.Usage)
}

// SetPrice sets the price used by CostSummary for model.
func (o *Overview) SetPrice(model string, price ModelPrice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prices == nil {
		o.prices = make(map[string]ModelPrice)
	}
	o.prices[model] = price
}

// End stops the clock used by Duration.
func (o *Overview) End() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endTime = time.Now()
}

// Duration is the time between New and End, or until now if End was not
// called.
func (o *Overview) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startTime.IsZero() {
		return 0
	}
	if o.endTime.IsZero() {
		return time.Since(o.startTime)
	}
	return o.endTime.Sub(o.startTime)
}

// Calls returns a copy of the recorded calls in recording order.
func (o *Overview) Calls() []Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.calls)
}

// TotalUsage sums the usage of every successful call.
func (o *Overview) TotalUsage() Usage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalUsage
}

// UsageByModel returns a copy of the per-model usage.
func (o *Overview) UsageByModel() map[string]Usage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.usageByModel)
}

// ErrorCount is the number of recorded calls that failed.
func (o *Overview) ErrorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errors
}

// AverageLatency is the mean TotalLatency of successful calls.
func (o *Overview) AverageLatency() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		sum time.Duration
		n   int
	)
	for _, c := range o.calls {
		if c.Err == "" {
			sum += c.TotalLatency
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// CostSummary prices the per-model usage.
func (o *Overview) CostSummary() CostSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	summary := CostSummary{
		ModelCosts: make(map[string]float64),
		Currency:   "CNY",
	}
	for _, model := range slices.Sorted(maps.Keys(o.usageByModel)) {
		price, ok := o.prices[model]
		if !ok {
			summary.Unpriced = append(summary.Unpriced, model)
			continue
		}
		c := price.Cost(o.usageByModel[model])
		summary.ModelCosts[model] = c
		summary.TotalCost += c
	}
	return summary
}
