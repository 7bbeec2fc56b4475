package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/graph"
)

func TestRender_Literal(t *testing.T) {
	ctx := New("exec-1")
	v, err := Render(graph.Literal(42), ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRender_InputRef(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("topic", "llm orchestration")

	v, err := Render(graph.InputRef("topic"), ctx)
	require.NoError(t, err)
	assert.Equal(t, "llm orchestration", v)
}

func TestRender_InputRefUnresolved(t *testing.T) {
	ctx := New("exec-1")
	_, err := Render(graph.InputRef("missing"), ctx)
	assert.Error(t, err)
}

func TestRender_StepOutputRef(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetStepOutput("fetch", "doc", "hello world")

	v, err := Render(graph.StepOutputRef("fetch", "doc"), ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world", v)
}

func TestRender_TemplateStringFunctions(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("name", "Ada")
	ctx.SetStepOutput("greet", "msg", "  HELLO  ")

	v, err := Render(graph.Template(`${{ trim(lower(steps.greet.msg)) }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	v2, err := Render(graph.Template(`${{ upper(inputs.name) }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "ADA", v2)
}

func TestRender_TemplateIfConditional(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("score", 0.9)

	v, err := Render(graph.Template(`${{ if(inputs.score > 0.5, "pass", "fail") }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "pass", v)
}

func TestRender_TemplateArithmeticAndMinMax(t *testing.T) {
	ctx := New("exec-1")
	v, err := Render(graph.Template(`${{ max(min(10, 3), 1) }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestRender_TemplateJSONRoundTrip(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetStepOutput("a", "obj", map[string]interface{}{"k": "v"})

	v, err := Render(graph.Template(`${{ toJson(steps.a.obj) }}`), ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, v.(string))
}

func TestRender_JSONPathSelector(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetStepOutput("search", "results", map[string]interface{}{
		"hits": []interface{}{
			map[string]interface{}{"id": "a", "score": 0.8},
			map[string]interface{}{"id": "b", "score": 0.4},
		},
	})

	expr := graph.JSONPath(graph.StepOutputRef("search", "results"), "hits.0.id")
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestRenderBool_DefaultsTrueWhenNilCondition(t *testing.T) {
	ctx := New("exec-1")
	ok, err := RenderBool(nil, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenderBool_TemplateCondition(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetStepOutput("eval", "passed", true)

	ok, err := RenderBool(graph.Template(`${{ steps.eval.passed }}`), ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRender_HyphenatedStepIDsResolveViaBracketRewrite(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetStepOutput("fetch-doc", "text", "ok")

	v, err := Render(graph.Template(`${{ steps.fetch-doc.text }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
