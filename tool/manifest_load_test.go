package tool

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `{
  "version": "1.0",
  "description": "Security audit tools",
  "defaults": {
    "runtime": "powershell",
    "module": "AD-SecurityAudit",
    "timeout": 300
  },
  "tools": [
    {
      "name": "Get-StaleAccounts",
      "description": "Find stale AD accounts",
      "output_format": "json",
      "parameters": {
        "Days": {"type": "integer", "minimum": 1},
        "Scope": {"type": "string", "required": true, "enum": ["users", "computers"]},
        "IncludeDisabled": {"type": "boolean", "default": false}
      }
    },
    {
      "name": "disk_usage",
      "runtime": "bash",
      "command": "df -h {mount}",
      "timeout": 30,
      "parameters": {
        "mount": {"type": "string"}
      }
    }
  ]
}`

func writeTestManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestParseManifestAppliesDefaults(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(m.Tools) != 2 {
		t.Fatalf("tool count = %d, want 2", len(m.Tools))
	}

	ps := m.Tools[0]
	if ps.Runtime != RuntimePowerShell {
		t.Fatalf("runtime = %s, want powershell from defaults", ps.Runtime)
	}
	if ps.Module != "AD-SecurityAudit" {
		t.Fatalf("module = %s, want default module", ps.Module)
	}
	if ps.Function != "Get-StaleAccounts" {
		t.Fatalf("function = %s, want tool name fallback", ps.Function)
	}
	if ps.TimeoutSeconds != 300 {
		t.Fatalf("timeout = %d, want 300 from defaults", ps.TimeoutSeconds)
	}

	sh := m.Tools[1]
	if sh.Runtime != RuntimeBash {
		t.Fatalf("runtime = %s, want explicit bash", sh.Runtime)
	}
	if sh.TimeoutSeconds != 30 {
		t.Fatalf("timeout = %d, explicit value must beat defaults", sh.TimeoutSeconds)
	}
	if sh.OutputFormat != OutputText {
		t.Fatalf("output format = %s, want text fallback", sh.OutputFormat)
	}
}

func TestParseManifestPreservesParameterOrder(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	got := m.Tools[0].ParameterNames()
	want := []string{"Days", "Scope", "IncludeDisabled"}
	if len(got) != len(want) {
		t.Fatalf("parameter names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parameter order = %v, want %v", got, want)
		}
	}
}

func TestParseManifestYAML(t *testing.T) {
	yamlManifest := `
version: "1.0"
defaults:
  runtime: bash
tools:
  - name: uptime_check
    command: uptime
`
	m, err := ParseManifestYAML([]byte(yamlManifest))
	if err != nil {
		t.Fatalf("ParseManifestYAML() error = %v", err)
	}
	if len(m.Tools) != 1 || m.Tools[0].Runtime != RuntimeBash {
		t.Fatalf("tools = %+v, want one bash tool", m.Tools)
	}
}

func TestLoadDirectorySkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestManifest(t, dir, "good.json", sampleManifest)
	writeTestManifest(t, dir, "broken.json", `{"tools": [`)
	writeTestManifest(t, dir, "notes.txt", "ignored")

	result, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}
	if len(result.Manifests) != 1 {
		t.Fatalf("loaded manifests = %d, want 1", len(result.Manifests))
	}
	if len(result.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v, want one for broken.json", result.Diagnostics)
	}
	if result.Diagnostics[0].Code != "MANIFEST_LOAD_FAILED" {
		t.Fatalf("diagnostic code = %s, want MANIFEST_LOAD_FAILED", result.Diagnostics[0].Code)
	}
}

func TestLoadDirectoryMissingDir(t *testing.T) {
	result, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v, want nil for missing dir", err)
	}
	if len(result.Manifests) != 0 || len(result.Diagnostics) != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestWriteManifestFileRoundTrip(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := WriteManifestFile(m, path); err != nil {
		t.Fatalf("WriteManifestFile() error = %v", err)
	}
	reloaded, err := LoadManifestFile(path)
	if err != nil {
		t.Fatalf("LoadManifestFile() error = %v", err)
	}
	if len(reloaded.Tools) != len(m.Tools) {
		t.Fatalf("reloaded tool count = %d, want %d", len(reloaded.Tools), len(m.Tools))
	}
	if reloaded.Tools[0].Name != m.Tools[0].Name {
		t.Fatalf("reloaded tool = %s, want %s", reloaded.Tools[0].Name, m.Tools[0].Name)
	}
}
