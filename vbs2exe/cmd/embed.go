package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEmbedCmd(a *app) *cobra.Command {
	var toStdout bool
	embedCmd := &cobra.Command{
		Use:   "embed <script>",
		Short: "Generates the C++ wrapper source for a script without compiling it.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := a.newEmbedder()
			if toStdout {
				src, err := e.Generate(args[0])
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(src)
				return err
			}
			out, err := e.Embed(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	embedCmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the wrapper source instead of writing it next to the script.")
	return embedCmd
}
