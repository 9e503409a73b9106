package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage and invoke registered tools",
	}
	cmd.PersistentFlags().String("config", "", "Path to toolbridge.yaml (default: discover)")
	cmd.PersistentFlags().String("manifest-dir", "", "Directory of tool manifests")
	cmd.PersistentFlags().String("store-path", "", "Path to SQLite store (default: ~/.toolbridge/toolbridge.db)")

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsValidateCmd())
	cmd.AddCommand(newToolsRegisterCmd())
	cmd.AddCommand(newToolsUnregisterCmd())
	cmd.AddCommand(newToolsInvokeCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered tools",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadMergedConfig(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	registry, err := buildRegistry(cmd.Context(), cfg, newLogger(cfg.LogLevel))
	if err != nil {
		return err
	}

	defs := registry.List()
	if len(defs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools registered.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRUNTIME\tPARAMS\tDESCRIPTION")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", def.Name, def.Runtime, len(def.Parameters), def.Description)
	}
	return w.Flush()
}

func newToolsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest file",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsValidate,
	}
}

func runToolsValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return exitError(exitFileNotFound, "file not found: %s", path)
	}
	manifest, err := tool.LoadManifestFile(path)
	if err != nil {
		return exitError(exitInputParse, "parsing %s: %v", path, err)
	}

	diags := tool.ValidateManifest(manifest)
	for _, diag := range diags {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n", diag.Severity, diag.Field, diag.Message)
	}
	if tool.HasErrors(diags) {
		return exitError(exitValidation, "validation failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d tool(s)\n", len(manifest.Tools))
	return nil
}

func newToolsRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <manifest>",
		Short: "Register a manifest's tools in the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsRegister,
	}
}

func runToolsRegister(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return exitError(exitFileNotFound, "file not found: %s", path)
	}
	manifest, err := tool.LoadManifestFile(path)
	if err != nil {
		return exitError(exitInputParse, "parsing %s: %v", path, err)
	}
	if diags := tool.ValidateManifest(manifest); tool.HasErrors(diags) {
		return exitError(exitValidation, "%s: %s", diags[0].Field, diags[0].Message)
	}

	cfg, err := loadMergedConfig(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	for _, def := range manifest.Tools {
		if err := store.Upsert(cmd.Context(), def); err != nil {
			return exitError(exitRuntime, "saving tool %s: %v", def.Name, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %d tool(s) from %s\n", len(manifest.Tools), path)
	return nil
}

func newToolsUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <name>",
		Short: "Remove a tool from the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsUnregister,
	}
}

func runToolsUnregister(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	cfg, err := loadMergedConfig(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	if _, found, err := store.Get(cmd.Context(), name); err != nil {
		return exitError(exitRuntime, "reading store: %v", err)
	} else if !found {
		return exitError(exitValidation, "tool %q is not registered", name)
	}
	if err := store.Delete(cmd.Context(), name); err != nil {
		return exitError(exitRuntime, "deleting tool %s: %v", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unregistered tool: %s\n", name)
	return nil
}

func newToolsInvokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke <name>",
		Short: "Invoke a tool directly",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInvoke,
	}
	cmd.Flags().String("input", "", "Arguments as a JSON object")
	cmd.Flags().String("input-file", "", "Path to a JSON file with arguments")
	return cmd
}

func runToolsInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]
	toolArgs, err := resolveInvokeInput(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadMergedConfig(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	logger := newLogger(cfg.LogLevel)
	registry, err := buildRegistry(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	engine := tool.NewEngine(registry,
		tool.WithLogger(logger),
		tool.WithMaxConcurrent(cfg.MaxConcurrent),
	)

	result, err := engine.Invoke(cmd.Context(), name, toolArgs)
	if err != nil {
		var invErr *tool.InvokeError
		if errors.As(err, &invErr) {
			switch invErr.Code {
			case tool.CodeTimeout:
				if encoded, encodeErr := json.MarshalIndent(result, "", "  "); encodeErr == nil {
					fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				}
				return exitError(exitTimeout, "%s", invErr.Message)
			case tool.CodeToolNotFound,
				tool.CodeUnknownParameter, tool.CodeMissingRequired,
				tool.CodeTypeMismatch, tool.CodeEnumViolation,
				tool.CodeRangeViolation, tool.CodeTemplateParameter:
				return exitError(exitValidation, "%s", invErr.Message)
			}
			return exitError(exitRuntime, "%s", invErr.Message)
		}
		return exitError(exitRuntime, "invoking %s: %v", name, err)
	}

	encoded, encodeErr := json.MarshalIndent(result, "", "  ")
	if encodeErr != nil {
		return exitError(exitRuntime, "encoding result: %v", encodeErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	if !result.Success {
		return exitError(exitToolFailed, "tool %s exited %d", name, result.ExitCode)
	}
	return nil
}

func resolveInvokeInput(cmd *cobra.Command) (map[string]any, error) {
	input, _ := cmd.Flags().GetString("input")
	inputFile, _ := cmd.Flags().GetString("input-file")
	if input != "" && inputFile != "" {
		return nil, exitError(exitInputParse, "cannot specify both --input and --input-file")
	}

	raw := []byte(input)
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, exitError(exitFileNotFound, "reading %s: %v", inputFile, err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var toolArgs map[string]any
	if err := json.Unmarshal(raw, &toolArgs); err != nil {
		return nil, exitError(exitInputParse, "arguments must be a JSON object: %v", err)
	}
	return toolArgs, nil
}
