package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of osf",
		Long:  `Print the osf build version and the User-Agent it sends to the API.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "osf version %s\n", rootCmd.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "user agent: %s\n", userAgent())
		},
	}
}
