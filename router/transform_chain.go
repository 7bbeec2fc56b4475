// Package router implements the output router and aggregator layer from
// spec §4.10: transform chains applied to an executor's raw result before
// binding, the three fan-in aggregators parallel blocks use at their join
// point, and streaming fan-out for stream-producer steps.
package router

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Transformer is one stage of a TransformChain, applied in order to an
// executor's raw result before output binding (spec §4.10: "JSON path
// extraction, template rewrite, schema validation").
type Transformer func(value interface{}) (interface{}, error)

// TransformChain runs an ordered list of Transformers over a value.
type TransformChain struct {
	stages []Transformer
}

// NewTransformChain builds a chain from the given stages, applied in order.
func NewTransformChain(stages ...Transformer) *TransformChain {
	return &TransformChain{stages: stages}
}

// Apply runs every stage, short-circuiting on the first error.
func (c *TransformChain) Apply(value interface{}) (interface{}, error) {
	for i, stage := range c.stages {
		v, err := stage(value)
		if err != nil {
			return nil, fmt.Errorf("transform stage %d: %w", i, err)
		}
		value = v
	}
	return value, nil
}

// JSONPathTransform selects a sub-value via a gjson path, the same
// extraction primitive execctx's template engine and the dispatcher's
// output_mapping both use.
func JSONPathTransform(path string) Transformer {
	return func(value interface{}) (interface{}, error) {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		r := gjson.GetBytes(raw, path)
		if !r.Exists() {
			return nil, fmt.Errorf("json path %q not found", path)
		}
		return r.Value(), nil
	}
}

// SchemaValidateTransform rejects a value unless validate returns nil,
// passing the value through unchanged on success.
func SchemaValidateTransform(validate func(value interface{}) error) Transformer {
	return func(value interface{}) (interface{}, error) {
		if err := validate(value); err != nil {
			return nil, err
		}
		return value, nil
	}
}
