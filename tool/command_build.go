package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Invocation is a fully assembled subprocess invocation, ready for the
// dispatcher to resolve an interpreter and the executor to run. Args never
// passes through a shell except where an interpreter's -c/-Command flag
// requires a script string, and in those cases every parameter value has
// been quoted for that interpreter before insertion.
type Invocation struct {
	Runtime RuntimeKind
	// Program overrides the runtime's default interpreter when set, such as
	// a tool-declared shell for command templates.
	Program string
	// Args is the argv tail after the resolved interpreter. For the cli
	// runtime Args[0] is the program itself.
	Args  []string
	Stdin string
	Dir   string
	// Env holds additional environment variables, merged over the parent
	// environment at execution time.
	Env map[string]string
}

// pythonModuleStub is passed to python -c to import a module, call the named
// function with keyword arguments read as JSON from stdin, and print the
// result as JSON.
const pythonModuleStub = `import importlib, json, sys
mod_name, func_name = sys.argv[1], sys.argv[2]
kwargs = json.load(sys.stdin) if not sys.stdin.isatty() else {}
fn = getattr(importlib.import_module(mod_name), func_name)
result = fn(**kwargs)
print(json.dumps(result, default=str))
`

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// BuildInvocation assembles the subprocess invocation for a validated
// argument map. Arguments must already be normalized by ValidateArguments.
func BuildInvocation(def ToolDefinition, args map[string]any) (Invocation, *InvokeError) {
	inv := Invocation{Runtime: def.Runtime, Dir: def.WorkingDir}

	switch def.Runtime {
	case RuntimePowerShell:
		script := buildPowerShellScript(def, args)
		inv.Args = []string{"-NoProfile", "-NonInteractive", "-Command", script}

	case RuntimePython:
		payload, err := encodeArgs(def, args)
		if err != nil {
			return Invocation{}, err
		}
		if def.Script != "" {
			inv.Args = []string{def.Script, payload}
		} else {
			inv.Args = []string{"-c", pythonModuleStub, def.Module, def.Function}
		}
		inv.Stdin = payload

	case RuntimeBash:
		if def.Script != "" {
			payload, err := encodeArgs(def, args)
			if err != nil {
				return Invocation{}, err
			}
			inv.Args = []string{def.Script, payload}
			inv.Stdin = payload
			inv.Env = toolEnv(def, args)
		} else {
			rendered, err := renderTemplate(def, def.Command, args, func(v any) string {
				return shellQuote(stringifyValue(v))
			})
			if err != nil {
				return Invocation{}, err
			}
			inv.Program = def.Shell
			inv.Args = []string{"-c", rendered}
		}

	case RuntimeNode:
		if def.Script != "" {
			payload, err := encodeArgs(def, args)
			if err != nil {
				return Invocation{}, err
			}
			inv.Args = []string{def.Script, payload}
			inv.Stdin = payload
		} else {
			rendered, err := renderTemplate(def, def.Command, args, jsQuote)
			if err != nil {
				return Invocation{}, err
			}
			payload, perr := encodeArgs(def, args)
			if perr != nil {
				return Invocation{}, perr
			}
			inv.Args = []string{"-e", rendered}
			inv.Stdin = payload
		}

	case RuntimeCLI:
		argv, err := buildCLIArgs(def, args)
		if err != nil {
			return Invocation{}, err
		}
		inv.Args = argv

	default:
		return Invocation{}, NewInvokeError(StageBuild, "INVALID_RUNTIME",
			fmt.Sprintf("Unsupported runtime %q", def.Runtime))
	}
	return inv, nil
}

// buildPowerShellScript composes the one-liner handed to -Command: import
// the module, call the function with formatted named parameters, and pipe
// the result through ConvertTo-Json so stdout is machine-readable.
func buildPowerShellScript(def ToolDefinition, args map[string]any) string {
	var b strings.Builder
	b.WriteString("Import-Module ")
	b.WriteString(psQuote(def.Module))
	b.WriteString(" -ErrorAction Stop; ")
	b.WriteString(def.Function)
	for _, name := range def.ParameterNames() {
		value, ok := args[name]
		if !ok {
			continue
		}
		// Booleans map to switch parameters: a space-separated $true would
		// bind positionally, so true renders as a bare flag and false is
		// omitted entirely.
		if flag, isBool := value.(bool); isBool {
			if flag {
				b.WriteString(" -")
				b.WriteString(name)
			}
			continue
		}
		b.WriteString(" -")
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(psValue(value))
	}
	b.WriteString(" | ConvertTo-Json -Depth 10 -Compress")
	return b.String()
}

// psQuote single-quotes s for PowerShell, doubling embedded single quotes.
// Single-quoted PowerShell strings perform no interpolation, so $(...) and
// backtick sequences inside parameter values stay inert.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func psValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "$true"
		}
		return "$false"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = psValue(item)
		}
		return "@(" + strings.Join(parts, ",") + ")"
	default:
		return psQuote(fmt.Sprintf("%v", v))
	}
}

// jsQuote renders a value as a JavaScript literal for node -e templates.
func jsQuote(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	return string(encoded)
}

// renderTemplate substitutes {param} placeholders in a command template.
// Every placeholder must name a declared parameter; declared parameters that
// were not supplied render as the quoted empty string.
func renderTemplate(def ToolDefinition, template string, args map[string]any, quote func(any) string) (string, *InvokeError) {
	var missing string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if _, declared := def.Parameters[name]; !declared {
			if missing == "" {
				missing = name
			}
			return match
		}
		value, ok := args[name]
		if !ok {
			return quote("")
		}
		return quote(value)
	})
	if missing != "" {
		return "", NewInvokeError(StageBuild, CodeTemplateParameter,
			fmt.Sprintf("Command template for tool %q references undeclared parameter %q", def.Name, missing)).
			WithDetail("parameter", missing)
	}
	return rendered, nil
}

// buildCLIArgs tokenizes the command template on whitespace first and
// substitutes placeholders within each token afterwards, so a parameter
// value containing spaces or shell metacharacters stays a single argv entry
// and never reaches a shell.
func buildCLIArgs(def ToolDefinition, args map[string]any) ([]string, *InvokeError) {
	tokens := strings.Fields(def.Command)
	argv := make([]string, 0, len(tokens))
	for _, token := range tokens {
		var missing string
		substituted := placeholderPattern.ReplaceAllStringFunc(token, func(match string) string {
			name := match[1 : len(match)-1]
			if _, declared := def.Parameters[name]; !declared {
				if missing == "" {
					missing = name
				}
				return match
			}
			value, ok := args[name]
			if !ok {
				return ""
			}
			return stringifyValue(value)
		})
		if missing != "" {
			return nil, NewInvokeError(StageBuild, CodeTemplateParameter,
				fmt.Sprintf("Command template for tool %q references undeclared parameter %q", def.Name, missing)).
				WithDetail("parameter", missing)
		}
		argv = append(argv, substituted)
	}
	if len(argv) == 0 {
		return nil, NewInvokeError(StageBuild, "EMPTY_COMMAND",
			fmt.Sprintf("Command template for tool %q produced no arguments", def.Name))
	}
	return argv, nil
}

// encodeArgs serializes the normalized arguments as a compact JSON object
// with stable key order.
func encodeArgs(def ToolDefinition, args map[string]any) (string, *InvokeError) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", NewInvokeError(StageBuild, "ENCODE_FAILED",
			fmt.Sprintf("Failed to encode arguments for tool %q", def.Name)).WithCause(err)
	}
	return string(encoded), nil
}

// toolEnv exposes each supplied argument to bash scripts as TOOL_<NAME>.
func toolEnv(def ToolDefinition, args map[string]any) map[string]string {
	if len(args) == 0 {
		return nil
	}
	env := make(map[string]string, len(args))
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := "TOOL_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env[key] = stringifyValue(args[name])
	}
	return env
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
