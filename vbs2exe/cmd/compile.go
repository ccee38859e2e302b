package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/pipeline"
)

// shellJoin renders args for display, quoting the ones a shell would split.
func shellJoin(args []string) string {
	return strings.Join(lo.Map(args, func(arg string, _ int) string {
		if arg == "" || strings.ContainsAny(arg, " \t\"'$") {
			return strconv.Quote(arg)
		}
		return arg
	}), " ")
}

func newCompileCmd(a *app) *cobra.Command {
	var (
		outPath string
		dryRun  bool
	)
	compileCmd := &cobra.Command{
		Use:   "compile <wrapper.cpp> -o <output>",
		Short: "Runs the compiler over an existing wrapper source.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath := args[0]
			if outPath == "" {
				return &pipeline.InputError{Field: "output", Message: "--out is required"}
			}
			b := a.newBuilder()
			if dryRun {
				fmt.Fprintln(a.stdout, shellJoin(b.Command(sourcePath, outPath)))
				return nil
			}
			if _, err := os.Stat(sourcePath); err != nil {
				return &pipeline.InputError{Field: "source", Message: err.Error()}
			}

			res := b.Build(cmd.Context(), sourcePath, outPath)
			if !res.Success {
				return &pipeline.ToolchainError{ExitCode: res.ExitCode, Diagnostics: string(res.Output), LaunchErr: res.LaunchErr, TimedOut: res.TimedOut}
			}
			fmt.Fprintf(a.stdout, "Executable created at: %s\n", outPath)
			return nil
		},
	}
	compileCmd.Flags().StringVarP(&outPath, "out", "o", "", "Path of the executable to produce.")
	compileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the compiler command line and exit.")
	return compileCmd
}
