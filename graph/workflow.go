// Package graph holds the workflow data model (Workflow, Step,
// ValueExpression), the Validator, and the DependencyGraph. Nothing here
// executes a step; it only describes and validates the shape of a workflow.
package graph

import "time"

// StepKind is the closed sum of built-in task-executor kinds plus an open
// Custom extension point (spec §9's "closed sum over executor kinds").
type StepKind string

const (
	KindTransform    StepKind = "transform"
	KindLLM          StepKind = "llm"
	KindEmbed        StepKind = "embed"
	KindVectorSearch StepKind = "vector_search"
	KindEvaluation   StepKind = "evaluation"
	KindPolicy       StepKind = "policy"
	KindAnalytics    StepKind = "analytics"
	KindCustom       StepKind = "custom"
)

// EdgeFlavor distinguishes the three dependency-edge semantics from spec §4.2.
type EdgeFlavor string

const (
	EdgeSuccess    EdgeFlavor = "success"
	EdgeCompletion EdgeFlavor = "completion"
	EdgeData       EdgeFlavor = "data" // implicit, behaves as EdgeSuccess
)

// Dependency names one upstream step and the edge flavor governing it.
type Dependency struct {
	StepID string     `yaml:"step" json:"step"`
	Flavor EdgeFlavor `yaml:"flavor,omitempty" json:"flavor,omitempty"`
}

// RetryPolicy is the policy shape from spec §4.6.
type RetryPolicy struct {
	MaxAttempts         int           `yaml:"max_attempts" json:"max_attempts"`
	InitialInterval     time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval         time.Duration `yaml:"max_interval" json:"max_interval"`
	Multiplier          float64       `yaml:"multiplier" json:"multiplier"`
	Jitter              bool          `yaml:"jitter" json:"jitter"`
	RetryableErrorKinds []string      `yaml:"retryable_error_kinds,omitempty" json:"retryable_error_kinds,omitempty"`
}

// DefaultRetryPolicy mirrors core.DefaultEngineConfig's retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// FallbackKind is the closed set of fallback strategies from spec §4.9.
type FallbackKind string

const (
	FallbackNone      FallbackKind = ""
	FallbackCache     FallbackKind = "cache"
	FallbackAlternative FallbackKind = "alternative"
	FallbackDefault   FallbackKind = "default_value"
	FallbackSkip      FallbackKind = "skip"
	FallbackCustom    FallbackKind = "custom"
)

// Fallback configures the per-step fallback strategy.
type Fallback struct {
	Kind            FallbackKind  `yaml:"kind,omitempty" json:"kind,omitempty"`
	MaxAge          time.Duration `yaml:"max_age,omitempty" json:"max_age,omitempty"`            // Cache
	AlternativeExecutorRef string  `yaml:"alternative_executor_ref,omitempty" json:"alternative_executor_ref,omitempty"` // Alternative
	DefaultValue    interface{}   `yaml:"default_value,omitempty" json:"default_value,omitempty"` // DefaultValue
	CustomHandler   string        `yaml:"custom_handler,omitempty" json:"custom_handler,omitempty"` // Custom, registry key
}

// TransformKind is the closed set of transform-chain stage kinds applied to
// an executor's raw result before output binding (spec §4.10).
type TransformKind string

const (
	TransformJSONPath TransformKind = "json_path"
)

// TransformStage is one stage of a step's transform chain.
type TransformStage struct {
	Kind TransformKind `yaml:"kind" json:"kind"`
	Path string        `yaml:"path,omitempty" json:"path,omitempty"` // TransformJSONPath
}

// AggregatorKind selects the fan-in combiner a parallel block's join point
// applies to its instances' outputs (spec §4.10). AggregatorArray is the
// default when unset.
type AggregatorKind string

const (
	AggregatorArray AggregatorKind = "array"
	AggregatorMap   AggregatorKind = "map"
)

// ResourceRequest declares per-step resource reservations (spec §5's
// resource pool).
type ResourceRequest struct {
	CPU    float64 `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory int64   `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	GPU    int     `yaml:"gpu,omitempty" json:"gpu,omitempty"`
}

// Step is one node of a Workflow.
type Step struct {
	StepID      string              `yaml:"id" json:"id"`
	Kind        StepKind            `yaml:"kind" json:"kind"`
	ExecutorRef string              `yaml:"executor_ref" json:"executor_ref"`
	DependsOn   []Dependency        `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Inputs      map[string]*ValueExpression `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	OutputDecls []string            `yaml:"output_decls" json:"output_decls"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty" json:"output_mapping,omitempty"` // name -> JSON path
	Condition   *ValueExpression    `yaml:"condition,omitempty" json:"condition,omitempty"`
	Timeout     time.Duration       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryPolicy *RetryPolicy        `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
	Fallback    *Fallback           `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Resources   *ResourceRequest    `yaml:"resources,omitempty" json:"resources,omitempty"`
	Idempotent  bool                `yaml:"idempotent,omitempty" json:"idempotent,omitempty"`
	Stream      bool                `yaml:"stream,omitempty" json:"stream,omitempty"`

	// Transform is applied to the executor's raw result, in order, before
	// the result is bound into the context (spec §4.10).
	Transform []TransformStage `yaml:"transform,omitempty" json:"transform,omitempty"`

	// Parallel, when non-empty, is the task template fanned out once per
	// element of FanOutOver (a steps.<id>.<out> or inputs.<name> reference
	// resolving to an array).
	Parallel     []Step           `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	FanOutOver   *ValueExpression `yaml:"fan_out_over,omitempty" json:"fan_out_over,omitempty"`
	JoinStrategy JoinStrategy     `yaml:"join_strategy,omitempty" json:"join_strategy,omitempty"`
	JoinAtLeast  int              `yaml:"join_at_least,omitempty" json:"join_at_least,omitempty"`
	// Aggregator selects how a parallel block's instance outputs are
	// combined at the join point. Defaults to AggregatorArray.
	Aggregator AggregatorKind `yaml:"aggregator,omitempty" json:"aggregator,omitempty"`
	// AggregateBy names the per-instance output field used as the map key
	// when Aggregator is AggregatorMap.
	AggregateBy string `yaml:"aggregate_by,omitempty" json:"aggregate_by,omitempty"`
}

// JoinStrategy is the fan-in completion test for a parallel block's join
// point (spec §4.4).
type JoinStrategy string

const (
	JoinAll      JoinStrategy = "all"
	JoinAny      JoinStrategy = "any"
	JoinAtLeastK JoinStrategy = "at_least"
	JoinCustom   JoinStrategy = "custom"
)

// InputDecl documents a declared workflow input (name + type + constraints).
type InputDecl struct {
	Name     string      `yaml:"name" json:"name"`
	Type     string      `yaml:"type" json:"type"` // "string", "number", "bool", "object", "array"
	Required bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// OutputBinding names a workflow-level output computed from a step output.
type OutputBinding struct {
	Name string           `yaml:"name" json:"name"`
	From *ValueExpression `yaml:"from" json:"from"`
}

// Branch is a conditional subgraph materialized after its controller step
// completes (spec §4.4 / §9: branches are not pre-materialized).
type Branch struct {
	Controller string           `yaml:"controller" json:"controller"`
	Condition  *ValueExpression `yaml:"condition" json:"condition"`
	Tasks      []Step           `yaml:"tasks" json:"tasks"`
}

// FailurePolicy governs how the scheduler reacts to a terminal step failure
// (spec §7).
type FailurePolicy string

const (
	FailFast        FailurePolicy = "fail_fast"
	ContinueOnError FailurePolicy = "continue_on_error"
)

// GlobalConfig is the workflow-level configuration named in spec §3.
type GlobalConfig struct {
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	DefaultRetry  *RetryPolicy  `yaml:"default_retry,omitempty" json:"default_retry,omitempty"`
	MaxParallel   int           `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
	FailurePolicy FailurePolicy `yaml:"failure_policy,omitempty" json:"failure_policy,omitempty"`
}

// EventHandlerDescriptor names a handler for lifecycle events. The engine
// does not read Workflow.EventHandlers, so no handler is subscribed from it.
type EventHandlerDescriptor struct {
	Event   string `yaml:"event" json:"event"` // "step.start", "step.complete", "step.fail", "workflow.*"
	Handler string `yaml:"handler" json:"handler"`
}

// Workflow is immutable once validated (spec §3).
type Workflow struct {
	Name    string          `yaml:"name" json:"name"`
	Version string          `yaml:"version" json:"version"`
	Steps   []Step          `yaml:"steps" json:"steps"`
	Branches []Branch       `yaml:"branches,omitempty" json:"branches,omitempty"`
	Inputs  []InputDecl     `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []OutputBinding `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Config  GlobalConfig    `yaml:"config,omitempty" json:"config,omitempty"`
	EventHandlers []EventHandlerDescriptor `yaml:"event_handlers,omitempty" json:"event_handlers,omitempty"`
}

// WorkflowDocument is the versioned envelope the external parser emits
// (spec §6.1). The core only consumes the typed tree below apiVersion/kind;
// the parser itself is out of scope.
type WorkflowDocument struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"` // Workflow, Template, CronWorkflow, EventWorkflow
	Metadata   struct {
		Name    string `yaml:"name" json:"name"`
		Version string `yaml:"version" json:"version"`
	} `yaml:"metadata" json:"metadata"`
	Spec struct {
		Tasks   []Step          `yaml:"tasks" json:"tasks"`
		Branches []Branch       `yaml:"branches,omitempty" json:"branches,omitempty"`
		Inputs  []InputDecl     `yaml:"inputs,omitempty" json:"inputs,omitempty"`
		Outputs []OutputBinding `yaml:"outputs,omitempty" json:"outputs,omitempty"`
		Config  GlobalConfig    `yaml:"config,omitempty" json:"config,omitempty"`
	} `yaml:"spec" json:"spec"`
}

// ToWorkflow converts the parsed document's post-apiVersion/kind shape into
// the typed tree the engine consumes.
func (d *WorkflowDocument) ToWorkflow() *Workflow {
	return &Workflow{
		Name:    d.Metadata.Name,
		Version: d.Metadata.Version,
		Steps:   d.Spec.Tasks,
		Branches: d.Spec.Branches,
		Inputs:  d.Spec.Inputs,
		Outputs: d.Spec.Outputs,
		Config:  d.Spec.Config,
	}
}
