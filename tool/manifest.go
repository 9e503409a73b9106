// Package tool implements the ToolBridge execution engine: declarative tool
// manifests, argument validation, safe command construction, runtime
// dispatch, and bounded subprocess execution.
package tool

import (
	"slices"
	"time"
)

// Manifest schema constants for the initial manifest contract version.
const (
	ManifestVersionV1 = "1.0"

	// DefaultTimeoutSeconds applies when neither a tool nor its manifest
	// defaults declare a timeout.
	DefaultTimeoutSeconds = 120
)

// RuntimeKind identifies the invocation strategy for a tool.
type RuntimeKind string

const (
	RuntimePowerShell RuntimeKind = "powershell"
	RuntimePython     RuntimeKind = "python"
	RuntimeBash       RuntimeKind = "bash"
	RuntimeNode       RuntimeKind = "node"
	RuntimeCLI        RuntimeKind = "cli"
)

var validRuntimes = map[RuntimeKind]struct{}{
	RuntimePowerShell: {},
	RuntimePython:     {},
	RuntimeBash:       {},
	RuntimeNode:       {},
	RuntimeCLI:        {},
}

// OutputFormat controls how captured stdout is shaped into a result.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// V1 parameter type literals used by tool manifests.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

var validParamTypes = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeNumber:  {},
	TypeBoolean: {},
	TypeArray:   {},
}

// ParamSpec declares one tool parameter: its type, constraints, and whether
// the caller must supply it.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// ToolDefinition is the immutable declarative description of one invocable
// tool. Which optional fields are required depends on the runtime: module
// mode needs Module+Function, script mode needs Script, command mode needs
// Command.
type ToolDefinition struct {
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Runtime        RuntimeKind          `json:"runtime,omitempty"`
	Module         string               `json:"module,omitempty"`
	Function       string               `json:"function,omitempty"`
	Command        string               `json:"command,omitempty"`
	Script         string               `json:"script,omitempty"`
	WorkingDir     string               `json:"working_directory,omitempty"`
	// Shell overrides the interpreter running a bash command template, for
	// tools that need sh or zsh semantics.
	Shell          string               `json:"shell,omitempty"`
	TimeoutSeconds int                  `json:"timeout,omitempty"`
	OutputFormat   OutputFormat         `json:"output_format,omitempty"`
	Parameters     map[string]ParamSpec `json:"parameters,omitempty"`

	// ParamOrder preserves the declaration order of Parameters from the
	// manifest source. Validation walks parameters in this order. Populated
	// by the loader; empty means name-sorted order.
	ParamOrder []string `json:"-"`
}

// ParameterNames returns parameter names in declaration order, falling back
// to name-sorted order when the source order is unknown.
func (d ToolDefinition) ParameterNames() []string {
	if len(d.ParamOrder) == len(d.Parameters) {
		ordered := true
		for _, name := range d.ParamOrder {
			if _, ok := d.Parameters[name]; !ok {
				ordered = false
				break
			}
		}
		if ordered {
			return slices.Clone(d.ParamOrder)
		}
	}
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Timeout returns the effective timeout as a duration.
func (d ToolDefinition) Timeout() time.Duration {
	seconds := d.TimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// InputSchema renders the parameter schema as a JSON-Schema object suitable
// for capability advertisement to MCP clients.
func (d ToolDefinition) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0)
	for _, name := range d.ParameterNames() {
		spec := d.Parameters[name]
		properties[name] = spec.JSONSchema()
		if spec.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// JSONSchema renders one parameter declaration as a JSON-Schema fragment.
func (s ParamSpec) JSONSchema() map[string]any {
	schemaType := s.Type
	if _, ok := validParamTypes[schemaType]; !ok {
		schemaType = TypeString
	}
	schema := map[string]any{
		"type":        schemaType,
		"description": s.Description,
	}
	if s.Default != nil {
		schema["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		schema["enum"] = s.Enum
	}
	if s.Minimum != nil {
		schema["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		schema["maximum"] = *s.Maximum
	}
	return schema
}

// ManifestDefaults are fallback values merged into each tool definition at
// load time when the tool omits the field.
type ManifestDefaults struct {
	Runtime RuntimeKind `json:"runtime,omitempty"`
	Module  string      `json:"module,omitempty"`
	Timeout int         `json:"timeout,omitempty"`
}

// Manifest is a loading-time artifact declaring one or more tools. It is not
// retained past registry construction.
type Manifest struct {
	Version     string           `json:"version,omitempty"`
	Description string           `json:"description,omitempty"`
	Defaults    ManifestDefaults `json:"defaults,omitzero"`
	Tools       []ToolDefinition `json:"tools"`
}

// NewManifest returns a manifest pre-populated with v1 schema metadata.
func NewManifest(description string) Manifest {
	return Manifest{
		Version:     ManifestVersionV1,
		Description: description,
	}
}

// applyDefaults merges manifest defaults into every tool definition in
// place. PowerShell functions default Function to the tool name, matching
// how discovery adapters emit manifests.
func (m *Manifest) applyDefaults() {
	for i := range m.Tools {
		def := &m.Tools[i]
		if def.Runtime == "" {
			def.Runtime = m.Defaults.Runtime
		}
		if def.Module == "" {
			def.Module = m.Defaults.Module
		}
		if def.TimeoutSeconds <= 0 {
			def.TimeoutSeconds = m.Defaults.Timeout
		}
		if def.TimeoutSeconds <= 0 {
			def.TimeoutSeconds = DefaultTimeoutSeconds
		}
		if def.OutputFormat == "" {
			def.OutputFormat = OutputText
		}
		if def.Runtime == RuntimePowerShell && def.Function == "" {
			def.Function = def.Name
		}
	}
}
