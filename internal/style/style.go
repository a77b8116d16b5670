// Package style holds style documents and resolves their variables.
//
// A document maps keys to style rules. It may carry a "variables" mapping;
// anywhere in the document the expression ["var", "<key>"] stands for the
// value of that variable.
package style

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VariablesKey is the document key holding variable bindings.
const VariablesKey = "variables"

// Document is a parsed style.
type Document map[string]any

// Parse accepts a JSON or YAML string, raw bytes, a map, or nil. Numbers
// decode as float64 whatever the input form.
func Parse(v any) (Document, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case Document:
		return s, nil
	case map[string]any:
		return Document(s), nil
	case string:
		return parseText([]byte(s))
	case []byte:
		return parseText(s)
	case json.RawMessage:
		return parseText(s)
	}
	// Any other structured value goes through JSON.
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	return parseText(b)
}

func parseText(b []byte) (Document, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	var d Document
	jsonErr := json.Unmarshal(b, &d)
	if jsonErr == nil {
		return d, nil
	}
	if b[0] == '{' {
		return nil, fmt.Errorf("style: %w", jsonErr)
	}

	var y map[string]any
	if err := yaml.Unmarshal(b, &y); err != nil {
		return nil, fmt.Errorf("style: not JSON (%v) or YAML: %w", jsonErr, err)
	}
	// normalise YAML scalars (int, nested maps) to their JSON forms
	j, err := json.Marshal(y)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	if err := json.Unmarshal(j, &d); err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	return d, nil
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Document:
		return Document(cloneValue(map[string]any(x)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Variables returns the variable bindings, or nil.
func (d Document) Variables() map[string]any {
	switch v := d[VariablesKey].(type) {
	case map[string]any:
		return v
	case Document:
		return v
	}
	return nil
}

// HasVariables reports whether the document declares a variables entry.
func (d Document) HasVariables() bool {
	_, ok := d[VariablesKey]
	return ok
}

// Resolve replaces every ["var", key] expression whose key is bound in the
// variables mapping. Numeric values are substituted as numbers, all others
// as their string form. A document without a variables entry is returned
// as is; otherwise the result is a fresh copy and d is untouched.
func Resolve(d Document) Document {
	if !d.HasVariables() {
		return d
	}
	vars := d.Variables()
	out := d.Clone()
	if len(vars) == 0 {
		return out
	}
	for k, v := range out {
		out[k] = substitute(v, vars)
	}
	return out
}

func substitute(v any, vars map[string]any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = substitute(e, vars)
		}
		return x
	case Document:
		for k, e := range x {
			x[k] = substitute(e, vars)
		}
		return x
	case []any:
		if key, ok := varRef(x); ok {
			if val, bound := vars[key]; bound {
				return literal(val)
			}
		}
		for i, e := range x {
			x[i] = substitute(e, vars)
		}
		return x
	}
	return v
}

// varRef matches the exact ["var", "<key>"] shape.
func varRef(a []any) (string, bool) {
	if len(a) != 2 {
		return "", false
	}
	if op, ok := a[0].(string); !ok || op != "var" {
		return "", false
	}
	key, ok := a[1].(string)
	return key, ok
}

// literal is the substituted value of a variable.
func literal(v any) any {
	switch x := v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return stringify(v)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e != nil {
				parts[i] = stringify(e)
			}
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, Document:
		b, _ := json.Marshal(x)
		return string(b)
	}
	return fmt.Sprint(v)
}

// Merge returns a shallow merge: keys of over win, every other key of base
// is kept. Neither input is modified.
func Merge(base, over Document) Document {
	out := make(Document, len(base)+len(over))
	maps.Copy(out, base)
	maps.Copy(out, over)
	return out
}

// Default is the style applied to custom data layers when no style is set.
func Default() Document {
	return Document{
		"fill-color":   "rgba(255,255,255,0.4)",
		"stroke-color": "#3399CC",
		"stroke-width": 1.25,
	}
}

// Schema returns the editor form schema, "jsonform" first then "schema".
func (d Document) Schema() any {
	if v, ok := d["jsonform"]; ok && v != nil {
		return v
	}
	return d["schema"]
}

// Legend returns the legend entry, if any.
func (d Document) Legend() any {
	return d["legend"]
}
