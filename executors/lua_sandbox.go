package executors

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/flowforge/flowforge/dispatcher"
)

// runSandboxedLua evaluates expr (a bare Lua expression, no "${{ }}"
// wrapper) with tc.Inputs exposed as the "inputs" global, the same
// base/table/string/math-only sandbox execctx's template engine opens, kept
// as its own copy here so executors does not depend on execctx.
func runSandboxedLua(expr string, inputs map[string]interface{}) (interface{}, error) {
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
			return nil, err
		}
	}
	L.SetGlobal("inputs", goValueToLua(L, inputs))

	if err := L.DoString("return (" + expr + ")"); err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return luaValueToGo(ret), nil
}

func goValueToLua(L *lua.LState, v interface{}) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case float64:
		return lua.LNumber(t)
	case int:
		return lua.LNumber(t)
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, vv := range t {
			L.SetField(tbl, k, goValueToLua(L, vv))
		}
		return tbl
	case []interface{}:
		tbl := L.NewTable()
		for i, vv := range t {
			L.RawSetInt(tbl, i+1, goValueToLua(L, vv))
		}
		return tbl
	default:
		return lua.LNil
	}
}

func luaValueToGo(v lua.LValue) interface{} {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case *lua.LTable:
		isArray := true
		n := 0
		t.ForEach(func(k, _ lua.LValue) {
			n++
			if _, ok := k.(lua.LNumber); !ok {
				isArray = false
			}
		})
		if isArray && n == t.Len() {
			out := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaValueToGo(t.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]interface{}, n)
		t.ForEach(func(k, vv lua.LValue) {
			out[k.String()] = luaValueToGo(vv)
		})
		return out
	default:
		return nil
	}
}

// taskErrorf is a small helper so evaluation.go/policy.go read tersely.
func taskErrorf(stepID, input string) error {
	return dispatcher.NewTaskError(dispatcher.TaskErrBadRequest,
		fmt.Errorf("step %q: requires a non-empty %q input", stepID, input))
}
