package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolbridge/discover"
	"github.com/petal-labs/toolbridge/tool"
)

// NewDiscoverCmd creates the "discover" command group.
func NewDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Generate manifests from existing tool sources",
	}
	cmd.AddCommand(newDiscoverPowerShellCmd())
	return cmd
}

func newDiscoverPowerShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "powershell <module>...",
		Short: "Generate manifests from PowerShell modules",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDiscoverPowerShell,
	}
	cmd.Flags().String("path", "", "Path to a module not on PSModulePath")
	cmd.Flags().StringP("output", "o", "manifests", "Output directory for manifest files")
	return cmd
}

func runDiscoverPowerShell(cmd *cobra.Command, args []string) error {
	modulePath, _ := cmd.Flags().GetString("path")
	outputDir, _ := cmd.Flags().GetString("output")
	if modulePath != "" && len(args) > 1 {
		return exitError(exitValidation, "--path applies to a single module")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return exitError(exitRuntime, "creating %s: %v", outputDir, err)
	}

	d := discover.NewDiscoverer()
	for _, moduleName := range args {
		manifest, err := d.DiscoverModule(cmd.Context(), moduleName, modulePath)
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		outputFile := filepath.Join(outputDir, moduleName+".json")
		if err := tool.WriteManifestFile(manifest, outputFile); err != nil {
			return exitError(exitRuntime, "writing %s: %v", outputFile, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tool(s) -> %s\n", moduleName, len(manifest.Tools), outputFile)
	}
	return nil
}
