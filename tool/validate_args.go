package tool

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateArguments checks the caller-supplied arguments against the tool's
// parameter specs and returns a normalized argument map: defaults applied,
// numeric strings coerced, integers held as int64 and numbers as float64.
//
// Validation is fail-fast. Unknown parameters are rejected before any
// declared parameter is checked; declared parameters are then checked in
// declaration order so error messages are deterministic.
func ValidateArguments(def ToolDefinition, args map[string]any) (map[string]any, *InvokeError) {
	for name := range args {
		if _, declared := def.Parameters[name]; !declared {
			return nil, NewInvokeError(StageValidate, CodeUnknownParameter,
				fmt.Sprintf("Unknown parameter %q for tool %q", name, def.Name)).
				WithDetail("parameter", name)
		}
	}

	normalized := make(map[string]any, len(def.Parameters))
	for _, name := range def.ParameterNames() {
		spec := def.Parameters[name]
		raw, present := args[name]
		if !present {
			if spec.Required {
				return nil, NewInvokeError(StageValidate, CodeMissingRequired,
					fmt.Sprintf("Missing required parameter %q for tool %q", name, def.Name)).
					WithDetail("parameter", name)
			}
			if spec.Default != nil {
				value, err := coerceValue(name, spec, spec.Default)
				if err != nil {
					return nil, err
				}
				if err := checkBounds(name, spec, value); err != nil {
					return nil, err
				}
				normalized[name] = value
			}
			continue
		}

		value, err := coerceValue(name, spec, raw)
		if err != nil {
			return nil, err
		}
		if len(spec.Enum) > 0 && !enumContains(spec.Enum, value) {
			return nil, NewInvokeError(StageValidate, CodeEnumViolation,
				fmt.Sprintf("Parameter %q value %v is not one of the allowed values %v", name, value, spec.Enum)).
				WithDetail("parameter", name).
				WithDetail("allowed", spec.Enum)
		}
		if err := checkBounds(name, spec, value); err != nil {
			return nil, err
		}
		normalized[name] = value
	}
	return normalized, nil
}

func coerceValue(name string, spec ParamSpec, raw any) (any, *InvokeError) {
	mismatch := func(want string) *InvokeError {
		return NewInvokeError(StageValidate, CodeTypeMismatch,
			fmt.Sprintf("Parameter %q expects %s, got %T", name, want, raw)).
			WithDetail("parameter", name).
			WithDetail("expected", want)
	}

	switch spec.Type {
	case TypeString, "":
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch("a string")
		}
		return s, nil
	case TypeInteger:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, mismatch("an integer")
			}
			return int64(v), nil
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
		case string:
			var i int64
			if _, err := fmt.Sscanf(v, "%d", &i); err == nil && fmt.Sprintf("%d", i) == v {
				return i, nil
			}
		}
		return nil, mismatch("an integer")
	case TypeNumber:
		switch v := raw.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, nil
			}
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
				return f, nil
			}
		}
		return nil, mismatch("a number")
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch v {
			case "true", "True":
				return true, nil
			case "false", "False":
				return false, nil
			}
		}
		return nil, mismatch("a boolean")
	case TypeArray:
		if v, ok := raw.([]any); ok {
			return v, nil
		}
		return nil, mismatch("an array")
	}
	return nil, mismatch(string(spec.Type))
}

func checkBounds(name string, spec ParamSpec, value any) *InvokeError {
	if spec.Minimum == nil && spec.Maximum == nil {
		return nil
	}
	var f float64
	switch v := value.(type) {
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil
	}
	if spec.Minimum != nil && f < *spec.Minimum {
		return NewInvokeError(StageValidate, CodeRangeViolation,
			fmt.Sprintf("Parameter %q value %v is below the minimum %v", name, value, *spec.Minimum)).
			WithDetail("parameter", name).
			WithDetail("minimum", *spec.Minimum)
	}
	if spec.Maximum != nil && f > *spec.Maximum {
		return NewInvokeError(StageValidate, CodeRangeViolation,
			fmt.Sprintf("Parameter %q value %v exceeds the maximum %v", name, value, *spec.Maximum)).
			WithDetail("parameter", name).
			WithDetail("maximum", *spec.Maximum)
	}
	return nil
}

// enumContains compares enum membership by stringified value so that an
// int64 5 matches a manifest-declared float64 5.
func enumContains(enum []any, value any) bool {
	want := fmt.Sprintf("%v", value)
	for _, member := range enum {
		if fmt.Sprintf("%v", member) == want {
			return true
		}
	}
	return false
}
