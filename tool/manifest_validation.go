package tool

import (
	"fmt"
	"regexp"
)

// Severity defines diagnostic severity produced by manifest validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidateManifest validates every tool definition in a manifest. Call after
// defaults have been merged; per-runtime required-field invariants are
// checked here, once, instead of ad hoc at execution time.
func ValidateManifest(m Manifest) []Diagnostic {
	diags := make([]Diagnostic, 0)
	for i, def := range m.Tools {
		prefix := fmt.Sprintf("tools[%d]", i)
		if def.Name != "" {
			prefix = def.Name
		}
		diags = append(diags, ValidateDefinition(def, prefix)...)
	}
	return diags
}

// ValidateDefinition validates a single tool definition. The prefix scopes
// diagnostic field paths.
func ValidateDefinition(def ToolDefinition, prefix string) []Diagnostic {
	diags := make([]Diagnostic, 0)
	addError := func(field, code, message string) {
		diags = append(diags, Diagnostic{
			Field:    prefix + "." + field,
			Code:     code,
			Severity: SeverityError,
			Message:  message,
		})
	}

	if !toolNamePattern.MatchString(def.Name) {
		addError("name", "INVALID_NAME",
			fmt.Sprintf("Tool name %q must start with a letter and contain only letters, digits, underscores, or hyphens", def.Name))
	}
	if _, ok := validRuntimes[def.Runtime]; !ok {
		addError("runtime", "INVALID_RUNTIME",
			fmt.Sprintf("Unsupported runtime %q; allowed: powershell, python, bash, node, cli", def.Runtime))
		return diags
	}

	switch def.Runtime {
	case RuntimePowerShell:
		if def.Module == "" || def.Function == "" {
			addError("module", "MISSING_MODULE",
				"PowerShell tools require module and function")
		}
	case RuntimePython:
		hasModule := def.Module != "" && def.Function != ""
		if def.Script == "" && !hasModule {
			addError("module", "MISSING_TARGET",
				"Python tools require script, or module and function")
		}
		if def.Script != "" && hasModule {
			addError("script", "AMBIGUOUS_TARGET",
				"Python tools declare either script or module+function, not both")
		}
	case RuntimeBash, RuntimeNode:
		if def.Command == "" && def.Script == "" {
			addError("command", "MISSING_TARGET",
				fmt.Sprintf("%s tools require command or script", def.Runtime))
		}
	case RuntimeCLI:
		if def.Command == "" {
			addError("command", "MISSING_COMMAND", "CLI tools require a command template")
		}
	}

	if def.TimeoutSeconds < 0 {
		addError("timeout", "INVALID_TIMEOUT", "Timeout must be a positive number of seconds")
	}
	if def.OutputFormat != "" && def.OutputFormat != OutputText && def.OutputFormat != OutputJSON {
		addError("output_format", "INVALID_OUTPUT_FORMAT",
			fmt.Sprintf("Unsupported output format %q; allowed: text, json", def.OutputFormat))
	}

	for _, name := range def.ParameterNames() {
		diags = append(diags, validateParamSpec(prefix+".parameters."+name, def.Parameters[name])...)
	}
	return diags
}

func validateParamSpec(path string, spec ParamSpec) []Diagnostic {
	diags := make([]Diagnostic, 0)
	addError := func(field, code, message string) {
		diags = append(diags, Diagnostic{
			Field:    path + "." + field,
			Code:     code,
			Severity: SeverityError,
			Message:  message,
		})
	}

	if _, ok := validParamTypes[spec.Type]; !ok && spec.Type != "" {
		addError("type", "INVALID_TYPE",
			fmt.Sprintf("Unsupported type %q; allowed: string, integer, number, boolean, array", spec.Type))
		return diags
	}

	numeric := spec.Type == TypeInteger || spec.Type == TypeNumber
	if (spec.Minimum != nil || spec.Maximum != nil) && !numeric {
		addError("minimum", "BOUNDS_ON_NON_NUMERIC",
			fmt.Sprintf("minimum/maximum require a numeric type, got %q", spec.Type))
	}
	if spec.Minimum != nil && spec.Maximum != nil && *spec.Minimum > *spec.Maximum {
		addError("minimum", "INVALID_BOUNDS", "minimum must not exceed maximum")
	}

	if len(spec.Enum) > 0 && spec.Default != nil && !enumContains(spec.Enum, spec.Default) {
		addError("default", "DEFAULT_NOT_IN_ENUM",
			fmt.Sprintf("Default %v is not a member of the declared enum", spec.Default))
	}
	if spec.Default != nil {
		wantType := spec.Type
		if wantType == "" {
			wantType = TypeString
		}
		value, err := coerceValue("default", spec, spec.Default)
		if err != nil {
			addError("default", "DEFAULT_TYPE_MISMATCH",
				fmt.Sprintf("Default %v is not a valid %s", spec.Default, wantType))
		} else if err := checkBounds("default", spec, value); err != nil {
			addError("default", "DEFAULT_OUT_OF_BOUNDS", err.Message)
		}
	}
	return diags
}

// HasErrors reports whether any diagnostic is error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
