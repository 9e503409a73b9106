package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/tool"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "toolbridge",
		SilenceUsage: true,
	}
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewDiscoverCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validManifestJSON = `{
  "version": "1.0",
  "description": "Test tools",
  "tools": [
    {
      "name": "disk_usage",
      "runtime": "bash",
      "command": "df -h {mount}",
      "parameters": {
        "mount": {"type": "string", "required": true}
      }
    }
  ]
}`

const invalidManifestJSON = `{
  "version": "1.0",
  "tools": [
    {"name": "broken", "runtime": "powershell"}
  ]
}`

func TestToolsValidateOK(t *testing.T) {
	path := writeTestFile(t, "tools.json", validManifestJSON)
	stdout, _, err := executeCommand(newTestRoot(), "tools", "validate", path)
	if err != nil {
		t.Fatalf("execute error = %v", err)
	}
	if !strings.Contains(stdout, "OK: 1 tool(s)") {
		t.Fatalf("stdout = %q, want OK summary", stdout)
	}
}

func TestToolsValidateFailure(t *testing.T) {
	path := writeTestFile(t, "tools.json", invalidManifestJSON)
	stdout, _, err := executeCommand(newTestRoot(), "tools", "validate", path)
	if err == nil {
		t.Fatal("execute error = nil, want validation failure")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("error = %v, want ExitError with code %d", err, exitValidation)
	}
	if !strings.Contains(stdout, "MISSING_MODULE") && !strings.Contains(stdout, "module") {
		t.Fatalf("stdout = %q, want module diagnostic", stdout)
	}
}

func TestToolsValidateMissingFile(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "tools", "validate", "/no/such/manifest.json")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFileNotFound {
		t.Fatalf("error = %v, want ExitError with code %d", err, exitFileNotFound)
	}
}

func TestToolsListFromManifestDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tools.json"), []byte(validManifestJSON), 0644); err != nil {
		t.Fatal(err)
	}
	storePath := filepath.Join(t.TempDir(), "store.db")

	stdout, _, err := executeCommand(newTestRoot(),
		"tools", "list", "--manifest-dir", dir, "--store-path", storePath)
	if err != nil {
		t.Fatalf("execute error = %v", err)
	}
	if !strings.Contains(stdout, "disk_usage") || !strings.Contains(stdout, "bash") {
		t.Fatalf("stdout = %q, want disk_usage row", stdout)
	}
}

func TestToolsRegisterAndUnregister(t *testing.T) {
	path := writeTestFile(t, "tools.json", validManifestJSON)
	storePath := filepath.Join(t.TempDir(), "store.db")

	stdout, _, err := executeCommand(newTestRoot(),
		"tools", "register", path, "--store-path", storePath)
	if err != nil {
		t.Fatalf("register error = %v", err)
	}
	if !strings.Contains(stdout, "Registered 1 tool(s)") {
		t.Fatalf("stdout = %q, want registration summary", stdout)
	}

	stdout, _, err = executeCommand(newTestRoot(),
		"tools", "unregister", "disk_usage", "--store-path", storePath)
	if err != nil {
		t.Fatalf("unregister error = %v", err)
	}
	if !strings.Contains(stdout, "Unregistered tool: disk_usage") {
		t.Fatalf("stdout = %q, want unregister confirmation", stdout)
	}

	_, _, err = executeCommand(newTestRoot(),
		"tools", "unregister", "disk_usage", "--store-path", storePath)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("error = %v, want ExitError for unknown tool", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want read error for explicit missing path")
	}
	_ = cfg

	cfg = DefaultConfig()
	if cfg.ManifestDir != "manifests" || cfg.DuplicatePolicy != "reject" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeTestFile(t, "toolbridge.yaml", `
manifest_dir: /etc/toolbridge/manifests
max_concurrent: 2
duplicate_policy: overwrite
log_level: debug
tracing:
  enabled: true
  endpoint: localhost:4318
  insecure: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ManifestDir != "/etc/toolbridge/manifests" {
		t.Fatalf("ManifestDir = %q", cfg.ManifestDir)
	}
	if cfg.MaxConcurrent != 2 {
		t.Fatalf("MaxConcurrent = %d, want 2", cfg.MaxConcurrent)
	}
	if cfg.duplicatePolicy() != tool.DuplicateOverwrite {
		t.Fatal("duplicate_policy overwrite not honored")
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "localhost:4318" {
		t.Fatalf("Tracing = %+v", cfg.Tracing)
	}
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	path := writeTestFile(t, "toolbridge.yaml", "duplicate_policy: maybe\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() error = nil, want bad policy error")
	}
}
