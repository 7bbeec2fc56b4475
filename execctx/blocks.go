package execctx

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches one template tag: either a "${{ ... }}" interpolation
// or a bare "{{ ... }}" block marker ("#each", "/each", "if", "else", "/if").
var tagPattern = regexp.MustCompile(`(?s)\$?\{\{.*?\}\}`)

// isSingleExpression reports whether trimmed is exactly one "${{ ... }}"
// wrapper with no surrounding text — these resolve to a typed value rather
// than being stringified, matching a step input bound directly to an
// expression's result (spec §4.3).
func isSingleExpression(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "${{") || !strings.HasSuffix(trimmed, "}}") {
		return false
	}
	matches := tagPattern.FindAllStringIndex(trimmed, -1)
	return len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(trimmed)
}

// templateNode is one piece of a parsed template body.
type templateNode interface{}

type textNode string

type interpNode struct{ expr string }

type eachNode struct {
	expr string
	body []templateNode
}

type ifNode struct {
	cond     string
	thenBody []templateNode
	elseBody []templateNode
}

// expandBlocks parses tpl into a node tree and renders it against ctx,
// expanding every "{{ #each arr }}...{{/each}}" and
// "{{ if cond }}...{{ else }}...{{/if}}" block and interpolating any
// "${{ ... }}" expression, producing the final string (spec §4.3).
func expandBlocks(tpl string, ctx *Context) (string, error) {
	nodes, err := parseTemplateNodes(tpl)
	if err != nil {
		return "", err
	}
	return renderNodes(nodes, ctx, nil)
}

func parseTemplateNodes(tpl string) ([]templateNode, error) {
	tags := tagPattern.FindAllStringIndex(tpl, -1)
	idx := 0
	pos := 0
	nodes, closer, err := parseUntil(tpl, tags, &idx, &pos, nil)
	if err != nil {
		return nil, err
	}
	if closer != "" {
		return nil, fmt.Errorf("unexpected closing tag %q with no matching opener", closer)
	}
	return nodes, nil
}

// parseUntil consumes tags from *idx onward, building text/interpolation/
// each/if nodes. It stops and returns the encountered tag name when that
// name is in stopSet, or runs to the end of the template when stopSet is
// nil (top level).
func parseUntil(tpl string, tags [][]int, idx *int, pos *int, stopSet map[string]bool) ([]templateNode, string, error) {
	var nodes []templateNode
	for *idx < len(tags) {
		tagStart, tagEnd := tags[*idx][0], tags[*idx][1]
		if tagStart > *pos {
			nodes = append(nodes, textNode(tpl[*pos:tagStart]))
		}
		raw := tpl[tagStart:tagEnd]
		*pos = tagEnd

		if strings.HasPrefix(raw, "${{") {
			*idx++
			expr := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "${{"), "}}"))
			nodes = append(nodes, interpNode{expr: expr})
			continue
		}

		body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}"))
		if stopSet[body] {
			*idx++
			return nodes, body, nil
		}
		*idx++

		switch {
		case body == "/each", body == "/if", body == "else":
			return nil, "", fmt.Errorf("unexpected %q with no matching open block", raw)
		case strings.HasPrefix(body, "#each "):
			arrExpr := strings.TrimSpace(strings.TrimPrefix(body, "#each "))
			inner, closer, err := parseUntil(tpl, tags, idx, pos, map[string]bool{"/each": true})
			if err != nil {
				return nil, "", err
			}
			if closer != "/each" {
				return nil, "", fmt.Errorf("#each %q missing {{/each}}", arrExpr)
			}
			nodes = append(nodes, eachNode{expr: arrExpr, body: inner})
		case strings.HasPrefix(body, "if "):
			cond := strings.TrimSpace(strings.TrimPrefix(body, "if "))
			thenBody, closer, err := parseUntil(tpl, tags, idx, pos, map[string]bool{"else": true, "/if": true})
			if err != nil {
				return nil, "", err
			}
			var elseBody []templateNode
			if closer == "else" {
				elseBody, closer, err = parseUntil(tpl, tags, idx, pos, map[string]bool{"/if": true})
				if err != nil {
					return nil, "", err
				}
			}
			if closer != "/if" {
				return nil, "", fmt.Errorf("if %q missing {{/if}}", cond)
			}
			nodes = append(nodes, ifNode{cond: cond, thenBody: thenBody, elseBody: elseBody})
		default:
			return nil, "", fmt.Errorf("unrecognized template tag %q", raw)
		}
	}
	if stopSet != nil {
		return nil, "", fmt.Errorf("template ended with an open block still unclosed")
	}
	if *pos < len(tpl) {
		nodes = append(nodes, textNode(tpl[*pos:]))
	}
	return nodes, "", nil
}

// renderNodes walks a parsed node tree, evaluating every expression against
// ctx plus the loop-local vars (only non-empty inside an #each body: "this"
// is the current item, "index" its 0-based position).
func renderNodes(nodes []templateNode, ctx *Context, vars map[string]interface{}) (string, error) {
	var sb strings.Builder
	for _, n := range nodes {
		switch t := n.(type) {
		case textNode:
			sb.WriteString(string(t))

		case interpNode:
			v, err := runLuaExpr(t.expr, ctx, vars)
			if err != nil {
				return "", err
			}
			sb.WriteString(stringifyValue(v))

		case eachNode:
			v, err := runLuaExpr(t.expr, ctx, vars)
			if err != nil {
				return "", err
			}
			arr, ok := v.([]interface{})
			if !ok {
				return "", fmt.Errorf("#each %q did not evaluate to an array", t.expr)
			}
			for i, item := range arr {
				loopVars := make(map[string]interface{}, len(vars)+2)
				for k, vv := range vars {
					loopVars[k] = vv
				}
				loopVars["this"] = item
				loopVars["index"] = i
				rendered, err := renderNodes(t.body, ctx, loopVars)
				if err != nil {
					return "", err
				}
				sb.WriteString(rendered)
			}

		case ifNode:
			v, err := runLuaExpr(t.cond, ctx, vars)
			if err != nil {
				return "", err
			}
			if truthy(v) {
				rendered, err := renderNodes(t.thenBody, ctx, vars)
				if err != nil {
					return "", err
				}
				sb.WriteString(rendered)
			} else if t.elseBody != nil {
				rendered, err := renderNodes(t.elseBody, ctx, vars)
				if err != nil {
					return "", err
				}
				sb.WriteString(rendered)
			}
		}
	}
	return sb.String(), nil
}

// truthy mirrors RenderBool's coercion: nil is false, a bool is itself,
// anything else (including 0 and "") is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

// stringifyValue renders an evaluated expression result for interpolation
// into surrounding template text.
func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if !math.IsInf(t, 0) && t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
