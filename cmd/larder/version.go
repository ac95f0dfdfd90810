package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the larder release and build details",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionShort {
			_, err := fmt.Fprintln(out, version.GitRelease)
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "larder\t%s\n", version.GitRelease)
		fmt.Fprintf(tw, "build\t%s (%s)\n", version.GitCommit, version.GitCommitDate)
		fmt.Fprintf(tw, "toolchain\t%s\n", version.GoInfo)
		return tw.Flush()
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the release")
}
