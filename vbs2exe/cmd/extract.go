package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/embedder"
	"vbs2exe-tools/go/pkg/pipeline"
)

func newExtractCmd(a *app) *cobra.Command {
	var outPath string
	extractCmd := &cobra.Command{
		Use:   "extract <wrapper.cpp>",
		Short: "Recovers the embedded script from a generated wrapper source.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return &pipeline.InputError{Field: "source", Message: err.Error()}
			}
			script, err := embedder.ExtractScript(source)
			if err != nil {
				a.log.Error("extract", "decode", "failure", "Could not decode embedded script", "source", args[0], "error", err)
				return &pipeline.InputError{Field: "source", Message: err.Error()}
			}
			if outPath == "" {
				_, err = a.stdout.Write(script)
				return err
			}
			if err := os.WriteFile(outPath, script, 0644); err != nil {
				return err
			}
			a.log.Info("extract", "write", "success", "Script recovered", "path", outPath, "bytes", len(script))
			fmt.Fprintln(a.stdout, outPath)
			return nil
		},
	}
	extractCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the script here instead of stdout.")
	return extractCmd
}
