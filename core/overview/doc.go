// Package overview aggregates what a sequence of Qianfan calls consumed:
// token usage per model, latencies, and an optional cost estimate.
// Bind an [Overview] to a [context.Context] with [OverviewFromContext]; every
// resource call made with that context records itself into it. Use
// [Overview.CostSummary] once the work is done.
package overview
