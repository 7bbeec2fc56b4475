package execctx

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// registerFunctionLibrary installs the spec §4.3 template function library
// as Lua globals on L. "if" is registered under the Lua-safe name "iif";
// runLuaExpr rewrites template-facing if(...) calls to iif(...)
// before execution since "if" is a reserved word in Lua.
func registerFunctionLibrary(L *lua.LState) {
	for name, fn := range map[string]lua.LGFunction{
		"format":     luaFormat,
		"lower":      luaLower,
		"upper":      luaUpper,
		"trim":       luaTrim,
		"replace":    luaReplace,
		"round":      luaRound,
		"floor":      luaFloor,
		"ceil":       luaCeil,
		"min":        luaMin,
		"max":        luaMax,
		"toJson":     luaToJSON,
		"fromJson":   luaFromJSON,
		"length":     luaLength,
		"join":       luaJoin,
		"contains":   luaContains,
		"startsWith": luaStartsWith,
		"endsWith":   luaEndsWith,
		"iif":        luaIf,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func luaFormat(L *lua.LState) int {
	tpl := L.CheckString(1)
	n := L.GetTop()
	args := make([]interface{}, 0, n-1)
	for i := 2; i <= n; i++ {
		args = append(args, luaValueToGo(L.Get(i)))
	}
	L.Push(lua.LString(fmt.Sprintf(tpl, args...)))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

func luaUpper(L *lua.LState) int {
	L.Push(lua.LString(strings.ToUpper(L.CheckString(1))))
	return 1
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaReplace(L *lua.LState) int {
	s := L.CheckString(1)
	old := L.CheckString(2)
	new := L.CheckString(3)
	L.Push(lua.LString(strings.ReplaceAll(s, old, new)))
	return 1
}

func luaRound(L *lua.LState) int {
	L.Push(lua.LNumber(math.Round(float64(L.CheckNumber(1)))))
	return 1
}

func luaFloor(L *lua.LState) int {
	L.Push(lua.LNumber(math.Floor(float64(L.CheckNumber(1)))))
	return 1
}

func luaCeil(L *lua.LState) int {
	L.Push(lua.LNumber(math.Ceil(float64(L.CheckNumber(1)))))
	return 1
}

func luaMin(L *lua.LState) int {
	a := float64(L.CheckNumber(1))
	b := float64(L.CheckNumber(2))
	L.Push(lua.LNumber(math.Min(a, b)))
	return 1
}

func luaMax(L *lua.LState) int {
	a := float64(L.CheckNumber(1))
	b := float64(L.CheckNumber(2))
	L.Push(lua.LNumber(math.Max(a, b)))
	return 1
}

func luaToJSON(L *lua.LState) int {
	v := luaValueToGo(L.Get(1))
	b, err := json.Marshal(v)
	if err != nil {
		L.RaiseError("toJson: %v", err)
		return 0
	}
	L.Push(lua.LString(string(b)))
	return 1
}

func luaFromJSON(L *lua.LState) int {
	s := L.CheckString(1)
	var decoded interface{}
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		L.RaiseError("fromJson: %v", err)
		return 0
	}
	L.Push(goValueToLua(L, decoded))
	return 1
}

func luaLength(L *lua.LState) int {
	v := L.Get(1)
	switch t := v.(type) {
	case lua.LString:
		L.Push(lua.LNumber(len(string(t))))
	case *lua.LTable:
		L.Push(lua.LNumber(t.Len()))
	default:
		L.Push(lua.LNumber(0))
	}
	return 1
}

func luaJoin(L *lua.LState) int {
	tbl := L.CheckTable(1)
	sep := L.CheckString(2)
	n := tbl.Len()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprintf("%v", luaValueToGo(tbl.RawGetInt(i))))
	}
	L.Push(lua.LString(strings.Join(parts, sep)))
	return 1
}

func luaContains(L *lua.LState) int {
	L.Push(lua.LBool(strings.Contains(L.CheckString(1), L.CheckString(2))))
	return 1
}

func luaStartsWith(L *lua.LState) int {
	L.Push(lua.LBool(strings.HasPrefix(L.CheckString(1), L.CheckString(2))))
	return 1
}

func luaEndsWith(L *lua.LState) int {
	L.Push(lua.LBool(strings.HasSuffix(L.CheckString(1), L.CheckString(2))))
	return 1
}

// luaIf implements the template language's conditional: iif(cond, then, else).
func luaIf(L *lua.LState) int {
	cond := L.Get(1)
	truthy := cond != lua.LNil && cond != lua.LFalse
	if truthy {
		L.Push(L.Get(2))
	} else {
		L.Push(L.Get(3))
	}
	return 1
}
