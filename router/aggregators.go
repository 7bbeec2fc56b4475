package router

import "fmt"

// Aggregator combines a parallel block's fan-out instance results at its
// fan-in join point (spec §4.10).
type Aggregator interface {
	Aggregate(results []interface{}) (interface{}, error)
}

// ArrayAggregator preserves fan-out order as a plain slice.
type ArrayAggregator struct{}

func (ArrayAggregator) Aggregate(results []interface{}) (interface{}, error) {
	out := make([]interface{}, len(results))
	copy(out, results)
	return out, nil
}

// MapAggregator keys each result by By(index, result); By defaults to the
// fan-out index stringified when nil, matching spec §4.10's
// "MapAggregator{by: step_id}" when the caller supplies a By that looks up
// each instance's materialized step_id.
type MapAggregator struct {
	By func(index int, result interface{}) string
}

func (m MapAggregator) Aggregate(results []interface{}) (interface{}, error) {
	out := make(map[string]interface{}, len(results))
	for i, r := range results {
		key := fmt.Sprintf("%d", i)
		if m.By != nil {
			key = m.By(i, r)
		}
		out[key] = r
	}
	return out, nil
}

// ReduceAggregator folds results left-to-right starting from Initial.
type ReduceAggregator struct {
	Fn      func(acc, next interface{}) (interface{}, error)
	Initial interface{}
}

func (r ReduceAggregator) Aggregate(results []interface{}) (interface{}, error) {
	acc := r.Initial
	for _, res := range results {
		var err error
		acc, err = r.Fn(acc, res)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
