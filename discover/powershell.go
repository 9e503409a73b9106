// Package discover generates tool manifests by introspecting existing tool
// sources, currently PowerShell modules.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/petal-labs/toolbridge/tool"
)

// discoveryTimeout bounds the introspection subprocess. Importing a large
// module and walking its help text can take a while but not a minute.
const discoveryTimeout = 60 * time.Second

// commonParams are the parameters PowerShell adds to every advanced
// function; they are noise in a tool schema.
var commonParams = map[string]struct{}{
	"Verbose": {}, "Debug": {}, "ErrorAction": {}, "WarningAction": {},
	"InformationAction": {}, "ErrorVariable": {}, "WarningVariable": {},
	"InformationVariable": {}, "OutVariable": {}, "OutBuffer": {},
	"PipelineVariable": {}, "ProgressAction": {}, "WhatIf": {}, "Confirm": {},
}

// psTypeMap maps .NET parameter type names to manifest parameter types.
// Unknown types fall back to string.
var psTypeMap = map[string]string{
	"String":          tool.TypeString,
	"Int32":           tool.TypeInteger,
	"Int64":           tool.TypeInteger,
	"Double":          tool.TypeNumber,
	"Single":          tool.TypeNumber,
	"Boolean":         tool.TypeBoolean,
	"SwitchParameter": tool.TypeBoolean,
	"String[]":        tool.TypeArray,
	"Object[]":        tool.TypeArray,
}

// introspectionScript lists a module's exported functions with parameter
// metadata as compact JSON. The module reference is single-quoted before
// substitution so hostile module paths stay inert.
const introspectionScript = `
$ErrorActionPreference = 'Stop'
Import-Module %s -Force

$mod = Get-Module %s -ErrorAction SilentlyContinue
if (-not $mod) { $mod = Get-Module | Select-Object -Last 1 }

$functions = Get-Command -Module $mod.Name -CommandType Function
$result = @()

foreach ($func in $functions) {
    $help = Get-Help $func.Name -ErrorAction SilentlyContinue
    $synopsis = if ($help.Synopsis) { $help.Synopsis.Trim() } else { '' }

    $params = @{}
    foreach ($p in $func.Parameters.GetEnumerator()) {
        $pName = $p.Key
        $pInfo = $p.Value
        if ($pName -in @(%s)) { continue }

        $paramData = @{
            type = $pInfo.ParameterType.Name
            mandatory = $false
            description = ''
        }
        foreach ($attr in $pInfo.Attributes) {
            if ($attr -is [System.Management.Automation.ParameterAttribute]) {
                $paramData.mandatory = $attr.Mandatory
                if ($attr.HelpMessage) { $paramData.description = $attr.HelpMessage }
            }
            if ($attr -is [System.Management.Automation.ValidateSetAttribute]) {
                $paramData['validateSet'] = @($attr.ValidValues)
            }
            if ($attr -is [System.Management.Automation.ValidateRangeAttribute]) {
                $paramData['minimum'] = $attr.MinRange
                $paramData['maximum'] = $attr.MaxRange
            }
        }
        if (-not $paramData.description -and $help.parameters) {
            $helpParam = $help.parameters.parameter | Where-Object { $_.Name -eq $pName }
            if ($helpParam.description) {
                $desc = ($helpParam.description | Out-String).Trim()
                if ($desc) { $paramData.description = $desc }
            }
        }
        $params[$pName] = $paramData
    }

    $result += @{
        name = $func.Name
        description = $synopsis
        parameters = $params
    }
}

$result | ConvertTo-Json -Depth 5 -Compress
`

// discoveredFunction is one function as reported by the introspection
// script.
type discoveredFunction struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Parameters  map[string]discoveredParam `json:"parameters"`
}

type discoveredParam struct {
	Type        string   `json:"type"`
	Mandatory   bool     `json:"mandatory"`
	Description string   `json:"description"`
	ValidateSet []string `json:"validateSet"`
	Minimum     *float64 `json:"minimum"`
	Maximum     *float64 `json:"maximum"`
}

// Discoverer introspects PowerShell modules into manifests. Resolver and
// runner are injectable so tests can feed canned introspection output.
type Discoverer struct {
	resolver tool.Resolver
	runner   tool.Runner
}

// NewDiscoverer creates a discoverer using the host PATH and real
// subprocess execution.
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		resolver: tool.NewPathResolver(),
		runner:   tool.NewProcessRunner(),
	}
}

// NewDiscovererWith creates a discoverer over explicit collaborators.
func NewDiscovererWith(resolver tool.Resolver, runner tool.Runner) *Discoverer {
	return &Discoverer{resolver: resolver, runner: runner}
}

// DiscoverModule introspects a PowerShell module and returns a manifest
// with one tool per exported function. modulePath may be empty for modules
// on PSModulePath.
func (d *Discoverer) DiscoverModule(ctx context.Context, moduleName, modulePath string) (tool.Manifest, error) {
	if moduleName == "" {
		return tool.Manifest{}, fmt.Errorf("discover: module name is required")
	}

	pwsh, err := d.resolver.Resolve(tool.RuntimePowerShell, "")
	if err != nil {
		return tool.Manifest{}, fmt.Errorf("discover: PowerShell is not available: %w", err)
	}

	importRef := moduleName
	if modulePath != "" {
		importRef = modulePath
	}
	script := fmt.Sprintf(introspectionScript,
		psQuote(importRef), psQuote(moduleName), commonParamsLiteral())

	res, invErr := d.runner.Run(ctx, tool.ExecSpec{
		Argv:    []string{pwsh, "-NoProfile", "-NonInteractive", "-Command", script},
		Timeout: discoveryTimeout,
	})
	if invErr != nil {
		return tool.Manifest{}, fmt.Errorf("discover: introspection failed: %w", invErr)
	}
	if res.ExitCode != 0 {
		return tool.Manifest{}, fmt.Errorf("discover: introspection of %q exited %d: %s",
			moduleName, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	functions, err := parseFunctions([]byte(strings.TrimSpace(res.Stdout)))
	if err != nil {
		return tool.Manifest{}, fmt.Errorf("discover: parse introspection output for %q: %w", moduleName, err)
	}
	if len(functions) == 0 {
		return tool.Manifest{}, fmt.Errorf("discover: no functions found in module %q", moduleName)
	}
	return buildManifest(moduleName, importRef, functions), nil
}

// parseFunctions decodes the introspection JSON. PowerShell emits a single
// object instead of an array when the module exports one function.
func parseFunctions(data []byte) ([]discoveredFunction, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var functions []discoveredFunction
	if err := json.Unmarshal(data, &functions); err == nil {
		return functions, nil
	}
	var single discoveredFunction
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []discoveredFunction{single}, nil
}

func buildManifest(moduleName, moduleRef string, functions []discoveredFunction) tool.Manifest {
	m := tool.NewManifest("Auto-generated from PowerShell module: " + moduleName)
	m.Defaults = tool.ManifestDefaults{
		Runtime: tool.RuntimePowerShell,
		Module:  moduleRef,
	}
	for _, fn := range functions {
		def := tool.ToolDefinition{
			Name:         fn.Name,
			Description:  fn.Description,
			Runtime:      tool.RuntimePowerShell,
			Module:       moduleRef,
			Function:     fn.Name,
			OutputFormat: tool.OutputJSON,
			Parameters:   make(map[string]tool.ParamSpec, len(fn.Parameters)),
		}
		for name, param := range fn.Parameters {
			if _, skip := commonParams[name]; skip {
				continue
			}
			def.Parameters[name] = mapParam(param)
		}
		m.Tools = append(m.Tools, def)
	}
	return m
}

func mapParam(param discoveredParam) tool.ParamSpec {
	spec := tool.ParamSpec{
		Type:        tool.TypeString,
		Description: param.Description,
		Required:    param.Mandatory,
		Minimum:     param.Minimum,
		Maximum:     param.Maximum,
	}
	if mapped, ok := psTypeMap[param.Type]; ok {
		spec.Type = mapped
	}
	if len(param.ValidateSet) > 0 {
		spec.Enum = make([]any, len(param.ValidateSet))
		for i, value := range param.ValidateSet {
			spec.Enum[i] = value
		}
	}
	return spec
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func commonParamsLiteral() string {
	parts := make([]string, 0, len(commonParams))
	for name := range commonParams {
		parts = append(parts, psQuote(name))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
