package tool

import (
	"strings"
	"testing"
)

func TestBuildInvocationPowerShell(t *testing.T) {
	def := ToolDefinition{
		Name:     "Get-StaleAccounts",
		Runtime:  RuntimePowerShell,
		Module:   "AD-SecurityAudit",
		Function: "Get-StaleAccounts",
		Parameters: map[string]ParamSpec{
			"Days":   {Type: TypeInteger},
			"Scope":  {Type: TypeString},
			"DryRun": {Type: TypeBoolean},
		},
		ParamOrder: []string{"Days", "Scope", "DryRun"},
	}

	inv, err := BuildInvocation(def, map[string]any{
		"Days":   int64(90),
		"Scope":  "users",
		"DryRun": true,
	})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if len(inv.Args) != 4 || inv.Args[0] != "-NoProfile" || inv.Args[1] != "-NonInteractive" || inv.Args[2] != "-Command" {
		t.Fatalf("argv = %v, want -NoProfile -NonInteractive -Command <script>", inv.Args)
	}

	script := inv.Args[3]
	for _, want := range []string{
		"Import-Module 'AD-SecurityAudit' -ErrorAction Stop",
		"Get-StaleAccounts -Days 90 -Scope 'users' -DryRun",
		"| ConvertTo-Json -Depth 10 -Compress",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script %q missing %q", script, want)
		}
	}
	// Switch parameters take no value; a space-separated $true would bind
	// positionally and fail.
	if strings.Contains(script, "-DryRun $true") {
		t.Fatalf("script %q passes a value to a switch parameter", script)
	}
}

func TestBuildInvocationPowerShellOmitsFalseSwitch(t *testing.T) {
	def := ToolDefinition{
		Name:       "Remove-StaleAccounts",
		Runtime:    RuntimePowerShell,
		Module:     "AD-SecurityAudit",
		Function:   "Remove-StaleAccounts",
		Parameters: map[string]ParamSpec{"Force": {Type: TypeBoolean}},
	}

	inv, err := BuildInvocation(def, map[string]any{"Force": false})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if strings.Contains(inv.Args[3], "-Force") {
		t.Fatalf("script %q mentions a false switch, want it omitted", inv.Args[3])
	}
}

func TestBuildInvocationPowerShellQuotesValues(t *testing.T) {
	def := ToolDefinition{
		Name:       "Find-User",
		Runtime:    RuntimePowerShell,
		Module:     "AD-SecurityAudit",
		Function:   "Find-User",
		Parameters: map[string]ParamSpec{"Query": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"Query": "'; Remove-Item -Recurse C:\\ #"})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	script := inv.Args[3]
	// Embedded single quotes must be doubled so the payload stays one
	// inert string literal.
	if !strings.Contains(script, "-Query '''; Remove-Item -Recurse C:\\ #'") {
		t.Fatalf("script %q did not quote the hostile value", script)
	}
}

func TestBuildInvocationPythonModule(t *testing.T) {
	def := ToolDefinition{
		Name:       "summarize",
		Runtime:    RuntimePython,
		Module:     "reports.summary",
		Function:   "summarize",
		Parameters: map[string]ParamSpec{"limit": {Type: TypeInteger}},
	}

	inv, err := BuildInvocation(def, map[string]any{"limit": int64(10)})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if len(inv.Args) != 4 || inv.Args[0] != "-c" {
		t.Fatalf("argv = %v, want -c <stub> <module> <function>", inv.Args)
	}
	if inv.Args[2] != "reports.summary" || inv.Args[3] != "summarize" {
		t.Fatalf("module/function argv = %v %v", inv.Args[2], inv.Args[3])
	}
	if inv.Stdin != `{"limit":10}` {
		t.Fatalf("stdin = %q, want args JSON", inv.Stdin)
	}
}

func TestBuildInvocationPythonScript(t *testing.T) {
	def := ToolDefinition{
		Name:       "cleanup",
		Runtime:    RuntimePython,
		Script:     "scripts/cleanup.py",
		Parameters: map[string]ParamSpec{"target": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"target": "tmp"})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Args[0] != "scripts/cleanup.py" {
		t.Fatalf("argv[0] = %q, want script path", inv.Args[0])
	}
	if inv.Args[1] != inv.Stdin {
		t.Fatalf("args JSON mismatch: argv %q, stdin %q", inv.Args[1], inv.Stdin)
	}
}

func TestBuildInvocationBashScriptEnv(t *testing.T) {
	def := ToolDefinition{
		Name:    "disk_report",
		Runtime: RuntimeBash,
		Script:  "scripts/disk.sh",
		Parameters: map[string]ParamSpec{
			"mount-point": {Type: TypeString},
			"verbose":     {Type: TypeBoolean},
		},
	}

	inv, err := BuildInvocation(def, map[string]any{"mount-point": "/var", "verbose": true})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Env["TOOL_MOUNT_POINT"] != "/var" {
		t.Fatalf("TOOL_MOUNT_POINT = %q, want /var", inv.Env["TOOL_MOUNT_POINT"])
	}
	if inv.Env["TOOL_VERBOSE"] != "true" {
		t.Fatalf("TOOL_VERBOSE = %q, want true", inv.Env["TOOL_VERBOSE"])
	}
}

func TestBuildInvocationBashCommandQuotesValues(t *testing.T) {
	def := ToolDefinition{
		Name:       "ping_host",
		Runtime:    RuntimeBash,
		Command:    "ping -c 1 {host}",
		Parameters: map[string]ParamSpec{"host": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"host": "x.com; rm -rf /"})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Args[0] != "-c" {
		t.Fatalf("argv[0] = %q, want -c", inv.Args[0])
	}
	want := "ping -c 1 'x.com; rm -rf /'"
	if inv.Args[1] != want {
		t.Fatalf("rendered command = %q, want %q", inv.Args[1], want)
	}
}

func TestBuildInvocationBashCommandDeclaredShell(t *testing.T) {
	def := ToolDefinition{
		Name:       "list_tmp",
		Runtime:    RuntimeBash,
		Command:    "ls {dir}",
		Shell:      "sh",
		Parameters: map[string]ParamSpec{"dir": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"dir": "/tmp"})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Program != "sh" {
		t.Fatalf("Program = %q, want declared shell", inv.Program)
	}
}

func TestBuildInvocationCLITokenizesBeforeSubstituting(t *testing.T) {
	def := ToolDefinition{
		Name:       "grep_logs",
		Runtime:    RuntimeCLI,
		Command:    "grep -F {pattern} /var/log/syslog",
		Parameters: map[string]ParamSpec{"pattern": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"pattern": "fatal error; rm -rf /"})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	// The hostile value must stay a single argv entry.
	want := []string{"grep", "-F", "fatal error; rm -rf /", "/var/log/syslog"}
	if len(inv.Args) != len(want) {
		t.Fatalf("argv = %v, want %v", inv.Args, want)
	}
	for i := range want {
		if inv.Args[i] != want[i] {
			t.Fatalf("argv[%d] = %q, want %q", i, inv.Args[i], want[i])
		}
	}
}

func TestBuildInvocationUndeclaredPlaceholder(t *testing.T) {
	def := ToolDefinition{
		Name:       "bad_template",
		Runtime:    RuntimeCLI,
		Command:    "echo {missing}",
		Parameters: map[string]ParamSpec{},
	}

	_, err := BuildInvocation(def, map[string]any{})
	if err == nil {
		t.Fatal("BuildInvocation() error = nil, want error")
	}
	if err.Code != CodeTemplateParameter {
		t.Fatalf("error code = %s, want %s", err.Code, CodeTemplateParameter)
	}
}

func TestBuildInvocationOmittedOptionalRendersEmpty(t *testing.T) {
	def := ToolDefinition{
		Name:       "list_dir",
		Runtime:    RuntimeBash,
		Command:    "ls {flags} /tmp",
		Parameters: map[string]ParamSpec{"flags": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Args[1] != "ls '' /tmp" {
		t.Fatalf("rendered command = %q, want empty-quoted flag slot", inv.Args[1])
	}
}

func TestBuildInvocationNodeCommand(t *testing.T) {
	def := ToolDefinition{
		Name:       "to_upper",
		Runtime:    RuntimeNode,
		Command:    "console.log({text}.toUpperCase())",
		Parameters: map[string]ParamSpec{"text": {Type: TypeString}},
	}

	inv, err := BuildInvocation(def, map[string]any{"text": `hi "there"`})
	if err != nil {
		t.Fatalf("BuildInvocation() error = %v", err)
	}
	if inv.Args[0] != "-e" {
		t.Fatalf("argv[0] = %q, want -e", inv.Args[0])
	}
	want := `console.log("hi \"there\"".toUpperCase())`
	if inv.Args[1] != want {
		t.Fatalf("rendered program = %q, want %q", inv.Args[1], want)
	}
	if inv.Stdin != `{"text":"hi \"there\""}` {
		t.Fatalf("stdin = %q, want args JSON mirrored", inv.Stdin)
	}
}
