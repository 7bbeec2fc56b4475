package execctx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/graph"
)

// stepRefPattern and inputRefPattern rewrite "steps.<id>.<out>" and "inputs.<name>" dot-path
// references into Lua bracket-indexing so step ids containing hyphens (not
// valid in a bare Lua identifier) still resolve correctly.
var (
	stepRefPattern  = regexp.MustCompile(`\bsteps\.([A-Za-z_][A-Za-z0-9_-]*)\.([A-Za-z_][A-Za-z0-9_-]*)`)
	inputRefPattern = regexp.MustCompile(`\binputs\.([A-Za-z_][A-Za-z0-9_-]*)`)
	// "if(" as an expression-language builtin collides with Lua's reserved
	// "if" keyword; templates are preprocessed to call the engine's
	// conditional under its internal Lua-safe name instead.
	ifCallPattern = regexp.MustCompile(`\bif\(`)
)

// Render resolves a ValueExpression against ctx, evaluating template
// strings through the embedded Lua VM and walking JSON-path selectors via
// gjson. Returns core.KindTemplate-classified errors on any unresolved
// reference or malformed expression (spec §4.3).
func Render(expr *graph.ValueExpression, ctx *Context) (interface{}, error) {
	if expr == nil {
		return nil, nil
	}
	switch expr.Kind {
	case graph.ExprLiteral:
		return expr.Literal, nil

	case graph.ExprInputRef:
		v, ok := ctx.Input(expr.InputName)
		if !ok {
			return nil, core.NewError("execctx.Render", core.KindTemplate,
				fmt.Errorf("unresolved input reference %q", expr.InputName))
		}
		return v, nil

	case graph.ExprStepOutputRef:
		v, ok := ctx.StepOutput(expr.StepID, expr.OutputName)
		if !ok {
			return nil, core.NewError("execctx.Render", core.KindTemplate,
				fmt.Errorf("unresolved step output reference steps.%s.%s", expr.StepID, expr.OutputName))
		}
		return v, nil

	case graph.ExprTemplate:
		return evaluateTemplate(expr.Template, ctx)

	case graph.ExprJSONPath:
		source, err := Render(expr.JSONPathSource, ctx)
		if err != nil {
			return nil, err
		}
		return jsonPathSelect(source, expr.JSONPath)

	default:
		return nil, core.NewError("execctx.Render", core.KindTemplate,
			fmt.Errorf("unknown expression kind %q", expr.Kind))
	}
}

// RenderBool resolves expr and coerces the result to a bool, used for step
// conditions (spec §4.3's condition evaluation).
func RenderBool(expr *graph.ValueExpression, ctx *Context) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := Render(expr, ctx)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return false, nil
	default:
		return true, nil
	}
}

// unwrapTemplateBody strips the "${{" / "}}" delimiters.
func unwrapTemplateBody(tpl string) (string, error) {
	trimmed := strings.TrimSpace(tpl)
	if !strings.HasPrefix(trimmed, "${{") || !strings.HasSuffix(trimmed, "}}") {
		return "", fmt.Errorf("not a template expression: %q", tpl)
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "${{"), "}}")), nil
}

// evaluateTemplate resolves one Template expression body. A template that is
// nothing but a single "${{ ... }}" wrapper evaluates to its typed Lua
// result (so a step input can bind directly to a number/array/object, not
// just a string). Anything else — plain text, multiple "${{ }}"
// interpolations, or a "{{ #each }}"/"{{ if }}" block — is rendered through
// the block expander into a string (spec §4.3's block-template
// requirement).
func evaluateTemplate(tpl string, ctx *Context) (interface{}, error) {
	trimmed := strings.TrimSpace(tpl)
	if isSingleExpression(trimmed) {
		body, err := unwrapTemplateBody(trimmed)
		if err != nil {
			return nil, core.NewError("execctx.evaluateTemplate", core.KindTemplate, err)
		}
		return runLuaExpr(body, ctx, nil)
	}

	rendered, err := expandBlocks(tpl, ctx)
	if err != nil {
		return nil, core.NewError("execctx.evaluateTemplate", core.KindTemplate, err)
	}
	return rendered, nil
}

// runLuaExpr evaluates one Lua expression body against ctx, with extra
// bound as additional globals (used by the block expander to expose "this"/
// "index" inside an #each body).
func runLuaExpr(body string, ctx *Context, extra map[string]interface{}) (interface{}, error) {
	body = stepRefPattern.ReplaceAllString(body, `steps["$1"]["$2"]`)
	body = inputRefPattern.ReplaceAllString(body, `inputs["$1"]`)
	body = ifCallPattern.ReplaceAllString(body, "iif(")

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		if err := L.PCall(1, 0, nil); err != nil {
			return nil, core.NewError("execctx.evaluateTemplate", core.KindTemplate, err)
		}
	}

	L.SetGlobal("steps", goValueToLua(L, ctx.snapshotSteps()))
	L.SetGlobal("inputs", goValueToLua(L, ctx.snapshotInputs()))
	for name, v := range extra {
		L.SetGlobal(name, goValueToLua(L, v))
	}
	registerFunctionLibrary(L)

	expr := "return (" + body + ")"
	if err := L.DoString(expr); err != nil {
		return nil, core.NewError("execctx.evaluateTemplate", core.KindTemplate,
			fmt.Errorf("evaluating %q: %w", body, err))
	}

	ret := L.Get(-1)
	L.Pop(1)
	return luaValueToGo(ret), nil
}

// jsonPathSelect applies a dotted/bracketed JSON-path selector to an
// already-resolved Go value, grounded on gjson's path syntax.
func jsonPathSelect(source interface{}, path string) (interface{}, error) {
	raw, err := json.Marshal(source)
	if err != nil {
		return nil, core.NewError("execctx.jsonPathSelect", core.KindTemplate, err)
	}
	result := gjsonGet(raw, path)
	if !result.exists {
		return nil, core.NewError("execctx.jsonPathSelect", core.KindTemplate,
			fmt.Errorf("json path %q did not match", path))
	}
	return result.value, nil
}
