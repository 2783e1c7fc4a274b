package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/archives-observability/archives/archerr"
)

// ParamType is the JSON-schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeObject  ParamType = "object"
)

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default is applied when the parameter is absent. It must already have
	// the coerced Go type: string, int or map[string]string.
	Default any
	// Enum restricts string values, compared case-insensitively.
	Enum []string
	// Minimum and Maximum bound integer values when set.
	Minimum *int
	Maximum *int
}

func intPtr(n int) *int { return &n }

// Args holds coerced parameter values keyed by name. Absent optional
// parameters without a default are missing from the map.
type Args map[string]any

// Has reports whether name was supplied or defaulted.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string parameter or "".
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer parameter or 0.
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// StringMap returns an object parameter or nil.
func (a Args) StringMap(name string) map[string]string {
	m, _ := a[name].(map[string]string)
	return m
}

// coerce validates raw against params in declaration order. Parameters not
// declared are ignored.
func coerce(params []Param, raw map[string]any) (Args, error) {
	out := make(Args, len(params))
	for _, p := range params {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, archerr.Param(p.Name, "is required")
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		coerced, err := p.coerce(v)
		if err != nil {
			return nil, err
		}
		out[p.Name] = coerced
	}
	return out, nil
}

func (p Param) coerce(v any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, archerr.Param(p.Name, fmt.Sprintf("must be a string, got %s", jsonType(v)))
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return nil, archerr.Param(p.Name, "must not be empty")
		}
		if len(p.Enum) > 0 {
			return p.matchEnum(s)
		}
		return s, nil
	case TypeInteger:
		n, ok := toInt(v)
		if !ok {
			return nil, archerr.Param(p.Name, fmt.Sprintf("must be an integer, got %s", jsonType(v)))
		}
		if p.Minimum != nil && n < *p.Minimum {
			return nil, archerr.Param(p.Name, fmt.Sprintf("must be at least %d", *p.Minimum))
		}
		if p.Maximum != nil && n > *p.Maximum {
			return nil, archerr.Param(p.Name, fmt.Sprintf("must be at most %d", *p.Maximum))
		}
		return n, nil
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			if m, isMap := v.(map[string]string); isMap {
				return m, nil
			}
			return nil, archerr.Param(p.Name, fmt.Sprintf("must be an object, got %s", jsonType(v)))
		}
		out := make(map[string]string, len(obj))
		for k, val := range obj {
			s, ok := val.(string)
			if !ok {
				return nil, archerr.Param(p.Name, fmt.Sprintf("value of %q must be a string", k))
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, archerr.Newf(archerr.Internal, "parameter %s has unsupported type %q", p.Name, p.Type)
}

func (p Param) matchEnum(s string) (string, error) {
	for _, allowed := range p.Enum {
		if strings.EqualFold(s, allowed) {
			return allowed, nil
		}
	}
	return "", archerr.Param(p.Name, fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")))
}

// toInt accepts JSON numbers without a fractional part and numeric strings.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int32, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// validateParams checks a declaration at registry construction.
func validateParams(tool string, params []Param) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter with empty name", tool)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %s", tool, p.Name)
		}
		seen[p.Name] = true
		if p.Required && p.Default != nil {
			return fmt.Errorf("tool %s: required parameter %s has a default", tool, p.Name)
		}
		if p.Default == nil {
			continue
		}
		if _, err := p.coerce(p.Default); err != nil {
			return fmt.Errorf("tool %s: default of %s: %w", tool, p.Name, err)
		}
	}
	return nil
}

// schema renders params as a JSON-schema object.
func schema(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.Type == TypeObject {
			prop["additionalProperties"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}
