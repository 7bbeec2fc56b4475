package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExpressionKind is the closed sum from spec §3's ValueExpression definition.
type ExpressionKind string

const (
	ExprLiteral      ExpressionKind = "literal"
	ExprInputRef     ExpressionKind = "input_ref"      // inputs.<name>
	ExprStepOutputRef ExpressionKind = "step_output_ref" // steps.<id>.<out>
	ExprTemplate     ExpressionKind = "template"        // "${{ ... }}" string
	ExprJSONPath     ExpressionKind = "json_path"        // selector into a prior output
)

// ValueExpression is one of: literal value; workflow-input reference;
// step-output reference; template string; JSON-path selector. Exactly one
// Kind applies at a time; the others are zero-valued.
type ValueExpression struct {
	Kind ExpressionKind

	Literal interface{}

	InputName string

	StepID     string
	OutputName string

	Template string

	JSONPathSource *ValueExpression
	JSONPath       string
}

// Literal builds a literal ValueExpression.
func Literal(v interface{}) *ValueExpression {
	return &ValueExpression{Kind: ExprLiteral, Literal: v}
}

// InputRef builds an inputs.<name> reference.
func InputRef(name string) *ValueExpression {
	return &ValueExpression{Kind: ExprInputRef, InputName: name}
}

// StepOutputRef builds a steps.<id>.<out> reference.
func StepOutputRef(stepID, output string) *ValueExpression {
	return &ValueExpression{Kind: ExprStepOutputRef, StepID: stepID, OutputName: output}
}

// Template builds a "${{ ... }}"-bearing template-string expression.
func Template(s string) *ValueExpression {
	return &ValueExpression{Kind: ExprTemplate, Template: s}
}

// JSONPath builds a JSON-path selector over another expression's resolved value.
func JSONPath(source *ValueExpression, path string) *ValueExpression {
	return &ValueExpression{Kind: ExprJSONPath, JSONPathSource: source, JSONPath: path}
}

// References returns every steps.<id> this expression transitively reads,
// used by the validator to check that every reference is statically
// upstream, and by the graph builder to add implicit Data edges.
func (e *ValueExpression) References() []string {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprStepOutputRef:
		return []string{e.StepID}
	case ExprTemplate:
		return extractStepRefs(e.Template)
	case ExprJSONPath:
		return e.JSONPathSource.References()
	default:
		return nil
	}
}

// extractStepRefs does a light scan for "steps.<id>." substrings inside a
// template body. The expression engine (execctx) does the real parse; this
// is only used for static validation/graph-edge purposes so it is
// deliberately conservative (over-approximates rather than misses an edge).
func extractStepRefs(tpl string) []string {
	var refs []string
	seen := map[string]bool{}
	idx := 0
	for {
		pos := strings.Index(tpl[idx:], "steps.")
		if pos < 0 {
			break
		}
		start := idx + pos + len("steps.")
		end := start
		for end < len(tpl) && (isIdentByte(tpl[end])) {
			end++
		}
		id := tpl[start:end]
		if id != "" && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
		idx = end
		if idx >= len(tpl) {
			break
		}
	}
	return refs
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ParseScalarExpression turns a plain scalar/string from the workflow
// document into a ValueExpression, with "${{ }}" and "steps."/
// "inputs." prefixes disambiguating the kind at parse time. This is a thin
// convenience layer over the explicit constructors above; engine code that
// builds workflows programmatically uses the constructors directly.
func ParseScalarExpression(raw interface{}) (*ValueExpression, error) {
	s, ok := raw.(string)
	if !ok {
		return Literal(raw), nil
	}
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}"):
		return Template(trimmed), nil
	case strings.HasPrefix(trimmed, "inputs."):
		return InputRef(strings.TrimPrefix(trimmed, "inputs.")), nil
	case strings.HasPrefix(trimmed, "steps."):
		rest := strings.TrimPrefix(trimmed, "steps.")
		parts := strings.SplitN(rest, ".", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed step-output reference %q: want steps.<id>.<out>", trimmed)
		}
		return StepOutputRef(parts[0], parts[1]), nil
	default:
		return Literal(s), nil
	}
}

// String renders a human-readable form, used in validation diagnostics.
func (e *ValueExpression) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ExprLiteral:
		b, _ := json.Marshal(e.Literal)
		return string(b)
	case ExprInputRef:
		return "inputs." + e.InputName
	case ExprStepOutputRef:
		return fmt.Sprintf("steps.%s.%s", e.StepID, e.OutputName)
	case ExprTemplate:
		return e.Template
	case ExprJSONPath:
		return fmt.Sprintf("%s|jsonpath(%s)", e.JSONPathSource.String(), e.JSONPath)
	default:
		return "<invalid-expression>"
	}
}
