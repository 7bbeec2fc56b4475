package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern governs step ids: letters (either case), digits,
// underscore and dash, must start with a letter.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ValidationError aggregates every violation found in one pass, following
// the teacher's validateWorkflow pattern of collecting all problems instead
// of stopping at the first (orchestration/workflow_engine.go).
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed with %d error(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validate runs the full spec §4.1 check list against a workflow and
// returns a single aggregated error, or nil if the workflow is sound.
func Validate(w *Workflow) error {
	v := &validation{w: w, seen: make(map[string]bool, len(w.Steps))}
	v.checkIdentifiers()
	v.checkDuplicateIDs()
	v.checkDependsOnResolve()
	v.checkExpressions()
	v.checkJoinStrategy()
	v.checkRetryPolicy()

	// Cycle detection only makes sense once identifiers/references are
	// otherwise sound; building the graph on a malformed step set would
	// produce misleading cycle diagnostics.
	if len(v.violations) == 0 {
		g := Build(w.Steps)
		if g.HasCycles() {
			v.violations = append(v.violations, "dependency graph contains a cycle")
		}
	}

	if len(v.violations) > 0 {
		return &ValidationError{Violations: v.violations}
	}
	return nil
}

type validation struct {
	w          *Workflow
	seen       map[string]bool
	violations []string
}

func (v *validation) fail(format string, args ...interface{}) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

// checkIdentifiers enforces step id / executor_ref shape.
func (v *validation) checkIdentifiers() {
	if v.w.Name == "" {
		v.fail("workflow name must not be empty")
	}
	for _, s := range v.w.Steps {
		if !identifierPattern.MatchString(s.StepID) {
			v.fail("step id %q is not a valid identifier", s.StepID)
		}
		if s.ExecutorRef == "" {
			v.fail("step %q: executor_ref must not be empty", s.StepID)
		}
		if s.Kind == "" {
			v.fail("step %q: kind must not be empty", s.StepID)
		}
	}
}

// checkDuplicateIDs enforces step id uniqueness across top-level steps and
// any statically-declared parallel templates.
func (v *validation) checkDuplicateIDs() {
	var walk func(steps []Step)
	walk = func(steps []Step) {
		for _, s := range steps {
			if s.StepID == "" {
				continue
			}
			if v.seen[s.StepID] {
				v.fail("duplicate step id %q", s.StepID)
			}
			v.seen[s.StepID] = true
			if len(s.Parallel) > 0 {
				walk(s.Parallel)
			}
		}
	}
	walk(v.w.Steps)
}

// checkDependsOnResolve ensures every depends_on and every steps.<id>
// reference inside inputs/condition resolves to a declared step.
func (v *validation) checkDependsOnResolve() {
	known := make(map[string]bool, len(v.w.Steps))
	for _, s := range v.w.Steps {
		known[s.StepID] = true
	}
	for _, s := range v.w.Steps {
		for _, dep := range s.DependsOn {
			if !known[dep.StepID] {
				v.fail("step %q depends on undeclared step %q", s.StepID, dep.StepID)
			}
			if dep.StepID == s.StepID {
				v.fail("step %q cannot depend on itself", s.StepID)
			}
		}
		for name, expr := range s.Inputs {
			for _, ref := range expr.References() {
				if !known[ref] {
					v.fail("step %q input %q references undeclared step %q", s.StepID, name, ref)
				}
			}
		}
		if s.Condition != nil {
			for _, ref := range s.Condition.References() {
				if !known[ref] {
					v.fail("step %q condition references undeclared step %q", s.StepID, ref)
				}
			}
		}
	}
	for _, out := range v.w.Outputs {
		if out.From == nil {
			v.fail("output %q has no source expression", out.Name)
			continue
		}
		for _, ref := range out.From.References() {
			if !known[ref] {
				v.fail("output %q references undeclared step %q", out.Name, ref)
			}
		}
	}
}

// checkExpressions enforces well-formedness of expressions beyond reference
// resolution: a step_output_ref must name a declared output of its source
// step, and a JSON-path selector's source must itself be well-formed.
func (v *validation) checkExpressions() {
	outputsByStep := make(map[string]map[string]bool, len(v.w.Steps))
	for _, s := range v.w.Steps {
		decl := make(map[string]bool, len(s.OutputDecls))
		for _, o := range s.OutputDecls {
			decl[o] = true
		}
		outputsByStep[s.StepID] = decl
	}

	var checkExpr func(owner, field string, e *ValueExpression)
	checkExpr = func(owner, field string, e *ValueExpression) {
		if e == nil {
			return
		}
		switch e.Kind {
		case ExprStepOutputRef:
			decl, ok := outputsByStep[e.StepID]
			if ok && len(decl) > 0 && !decl[e.OutputName] {
				v.fail("%s %q: step %q has no declared output %q", owner, field, e.StepID, e.OutputName)
			}
		case ExprJSONPath:
			if e.JSONPath == "" {
				v.fail("%s %q: json_path selector must not be empty", owner, field)
			}
			checkExpr(owner, field, e.JSONPathSource)
		case ExprTemplate:
			if !strings.Contains(e.Template, "${{") {
				v.fail("%s %q: template expression missing \"${{ }}\" delimiters", owner, field)
			}
		}
	}

	for _, s := range v.w.Steps {
		for name, expr := range s.Inputs {
			checkExpr(fmt.Sprintf("step %q input", s.StepID), name, expr)
		}
		checkExpr(fmt.Sprintf("step %q", s.StepID), "condition", s.Condition)
	}
	for _, out := range v.w.Outputs {
		checkExpr("workflow output", out.Name, out.From)
	}
}

// checkJoinStrategy enforces spec §4.4's join-strategy bounds.
func (v *validation) checkJoinStrategy() {
	for _, s := range v.w.Steps {
		if len(s.Parallel) == 0 {
			continue
		}
		if s.FanOutOver == nil {
			v.fail("step %q: parallel block requires fan_out_over", s.StepID)
		}
		switch s.JoinStrategy {
		case "", JoinAll, JoinAny, JoinCustom:
		case JoinAtLeastK:
			if s.JoinAtLeast <= 0 {
				v.fail("step %q: join_strategy at_least requires join_at_least > 0", s.StepID)
			}
		default:
			v.fail("step %q: unknown join_strategy %q", s.StepID, s.JoinStrategy)
		}
	}
}

// checkRetryPolicy enforces spec §4.6's bounds: attempts >= 1, multiplier >=
// 1, max_interval >= initial_interval.
func (v *validation) checkRetryPolicy() {
	check := func(owner string, rp *RetryPolicy) {
		if rp == nil {
			return
		}
		if rp.MaxAttempts < 1 {
			v.fail("%s: retry_policy.max_attempts must be >= 1", owner)
		}
		if rp.Multiplier < 1 {
			v.fail("%s: retry_policy.multiplier must be >= 1", owner)
		}
		if rp.MaxInterval > 0 && rp.InitialInterval > rp.MaxInterval {
			v.fail("%s: retry_policy.initial_interval must not exceed max_interval", owner)
		}
	}
	check("workflow config.default_retry", v.w.Config.DefaultRetry)
	for _, s := range v.w.Steps {
		check(fmt.Sprintf("step %q", s.StepID), s.RetryPolicy)
	}
}
