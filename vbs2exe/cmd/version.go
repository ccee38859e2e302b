package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of vbs2exe",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			a.log.Info("cli", "version", "info", "vbs2exe version information", "version", Version, "commit", Commit, "date", Date)
			fmt.Fprintf(a.stdout, "vbs2exe version %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}
