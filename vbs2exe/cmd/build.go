package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/pipeline"
)

// defaultOutputName is the script's base name without its extension.
func defaultOutputName(scriptPath string) string {
	base := filepath.Base(scriptPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newBuildCmd(a *app) *cobra.Command {
	var (
		outputName   string
		outputFolder string
	)
	buildCmd := &cobra.Command{
		Use:   "build <script>",
		Short: "Embeds a script into a wrapper source and compiles it to an executable.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := args[0]
			if !cmd.Flags().Changed("name") {
				outputName = defaultOutputName(scriptPath)
			}
			if !cmd.Flags().Changed("out-dir") {
				outputFolder = filepath.Dir(scriptPath)
			}

			req := pipeline.NewRequest(scriptPath, outputName, outputFolder)
			resp, err := a.newPipeline().Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := resp.Err(); err != nil {
				a.log.Error("builder", "build", "failure", "Failed to compile the generated wrapper source.", "source", resp.SourcePath)
				return err
			}
			fmt.Fprintf(a.stdout, "Executable created at: %s\n", resp.OutputPath)
			return nil
		},
	}
	buildCmd.Flags().StringVarP(&outputName, "name", "n", "", "Executable name without extension (default: script name).")
	buildCmd.Flags().StringVarP(&outputFolder, "out-dir", "d", "", "Existing folder for the executable (default: script folder).")
	return buildCmd
}
