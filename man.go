package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/gpu-pulse/docs/manpage"
)

var manCmd = &cobra.Command{
	Use:   "man",
	Short: "Print the man page in roff format",
	Long: `Print the man page in roff format.

  gpu-pulse man | man -l -
  gpu-pulse man > ~/.local/share/man/man1/gpu-pulse.1`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), manpage.Generate(rootCmd, version, commit, date))
	},
}

func init() {
	rootCmd.AddCommand(manCmd)
}
