package executors

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowforge/flowforge/dispatcher"
)

// AnalyticsExecutor is the default "analytics" kind TaskExecutor: it reduces
// tc.Inputs["values"] (a numeric array, typically a fan-out's aggregated
// results) with tc.Inputs["op"] ("count", "sum", "avg", "min", "max",
// "p50", "p90", "p99"), no external call required.
type AnalyticsExecutor struct{}

// NewAnalyticsExecutor returns a ready-to-register AnalyticsExecutor.
func NewAnalyticsExecutor() *AnalyticsExecutor { return &AnalyticsExecutor{} }

func (a *AnalyticsExecutor) Execute(_ context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	values, ok := toFloat64Slice(tc.Inputs["values"])
	if !ok {
		return nil, taskErrorf(tc.StepID, "values")
	}
	op, _ := tc.Inputs["op"].(string)
	if op == "" {
		op = "count"
	}

	result, err := reduce(op, values)
	if err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest, err)
	}
	return &dispatcher.TaskResult{Value: result, Metadata: map[string]interface{}{"op": op, "count": len(values)}}, nil
}

func reduce(op string, values []float64) (float64, error) {
	if op == "count" {
		return float64(len(values)), nil
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("op %q requires a non-empty values array", op)
	}
	switch op {
	case "sum":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case "avg":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case "min":
		return minMax(values, false), nil
	case "max":
		return minMax(values, true), nil
	case "p50":
		return percentile(values, 50), nil
	case "p90":
		return percentile(values, 90), nil
	case "p99":
		return percentile(values, 99), nil
	default:
		return 0, fmt.Errorf("unknown analytics op %q", op)
	}
}

func minMax(values []float64, max bool) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if (max && v > best) || (!max && v < best) {
			best = v
		}
	}
	return best
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
