package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/graph"
)

func TestRender_EachBlockExpandsOverArray(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("items", []interface{}{"a", "b", "c"})

	expr := graph.Template(`{{ #each inputs.items }}[${{ this }}]{{/each}}`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "[a][b][c]", v)
}

func TestRender_EachBlockExposesIndexAndFields(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("users", []interface{}{
		map[string]interface{}{"name": "alice"},
		map[string]interface{}{"name": "bob"},
	})

	expr := graph.Template(`{{ #each inputs.users }}${{ index }}:${{ this.name }} {{/each}}`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "0:alice 1:bob ", v)
}

func TestRender_IfElseBlockPicksBranch(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("flag", true)

	expr := graph.Template(`{{ if inputs.flag }}yes{{ else }}no{{/if}}`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes", v)

	ctx.SetInput("flag", false)
	v, err = Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "no", v)
}

func TestRender_IfBlockWithoutElseRendersEmptyOnFalse(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("flag", false)

	expr := graph.Template(`before {{ if inputs.flag }}shown{{/if}} after`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "before  after", v)
}

func TestRender_NestedEachInsideIf(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("flag", true)
	ctx.SetInput("items", []interface{}{"x", "y"})

	expr := graph.Template(`{{ if inputs.flag }}{{ #each inputs.items }}${{ this }}{{/each}}{{/if}}`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "xy", v)
}

func TestRender_PlainTextWithMultipleInterpolations(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("name", "world")
	ctx.SetStepOutput("greeter", "count", 3.0)

	expr := graph.Template(`Hello ${{ inputs.name }}, you have ${{ steps.greeter.count }} items`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello world, you have 3 items", v)
}

func TestRender_SingleExpressionStillReturnsTypedValue(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("count", 42.0)

	expr := graph.Template(`${{ inputs.count }}`)
	v, err := Render(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestExpandBlocks_UnclosedEachIsAnError(t *testing.T) {
	ctx := New("exec-1")
	ctx.SetInput("items", []interface{}{"a"})

	_, err := expandBlocks(`{{ #each inputs.items }}${{ this }}`, ctx)
	assert.Error(t, err)
}

func TestExpandBlocks_OrphanCloseTagIsAnError(t *testing.T) {
	ctx := New("exec-1")

	_, err := expandBlocks(`stray {{/each}} tag`, ctx)
	assert.Error(t, err)
}
