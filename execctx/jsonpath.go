package execctx

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// gjsonResult adapts gjson.Result to a plain decoded Go value so callers
// don't need to import gjson themselves.
type gjsonResult struct {
	exists bool
	value  interface{}
}

// gjsonGet runs path against raw JSON bytes using gjson's selector syntax
// (dotted fields, array indices, "#" length/filter queries).
func gjsonGet(raw []byte, path string) gjsonResult {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return gjsonResult{}
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(r.Raw), &decoded); err != nil {
		// Scalars gjson reports without a Raw JSON literal (e.g. bare
		// strings already unquoted) fall back to r.Value() directly.
		return gjsonResult{exists: true, value: r.Value()}
	}
	return gjsonResult{exists: true, value: decoded}
}
