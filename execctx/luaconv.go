package execctx

import lua "github.com/yuin/gopher-lua"

// goValueToLua converts a Go value (as decoded from JSON or produced by
// Context snapshots) into the equivalent lua.LValue tree.
func goValueToLua(L *lua.LState, v interface{}) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, vv := range t {
			tbl.RawSetString(k, goValueToLua(L, vv))
		}
		return tbl
	case map[string]map[string]interface{}:
		tbl := L.NewTable()
		for k, vv := range t {
			tbl.RawSetString(k, goValueToLua(L, vv))
		}
		return tbl
	case []interface{}:
		tbl := L.NewTable()
		for i, vv := range t {
			tbl.RawSetInt(i+1, goValueToLua(L, vv))
		}
		return tbl
	default:
		return lua.LString("")
	}
}

// luaValueToGo converts a lua.LValue back into plain Go data
// (string/float64/bool/nil/map[string]interface{}/[]interface{}), the
// shape the rest of the engine (step outputs, JSON encoding) expects.
func luaValueToGo(v lua.LValue) interface{} {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case *lua.LNilType:
		return nil
	case *lua.LTable:
		return luaTableToGo(t)
	default:
		return nil
	}
}

// luaTableToGo converts a Lua table to either []interface{} (if it is a
// dense 1-based array) or map[string]interface{} otherwise.
func luaTableToGo(t *lua.LTable) interface{} {
	maxN := t.Len()
	isArray := maxN > 0
	if isArray {
		for i := 1; i <= maxN; i++ {
			if t.RawGetInt(i) == lua.LNil {
				isArray = false
				break
			}
		}
	}
	if isArray {
		arr := make([]interface{}, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = luaValueToGo(t.RawGetInt(i))
		}
		return arr
	}

	out := make(map[string]interface{})
	t.ForEach(func(k, val lua.LValue) {
		out[k.String()] = luaValueToGo(val)
	})
	return out
}
