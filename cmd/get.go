package cmd

import (
	"github.com/spf13/cobra"
)

var (
	getOutput string
	getQuery  []string
)

var getCmd = &cobra.Command{
	Use:   "get <path-or-url>",
	Short: "Fetch one resource",
	Long: `Fetch a single JSON:API resource and print it flattened: attributes
appear next to id and type.

The target is either a path relative to the API root or an absolute URL on
an allowed host.

Examples:
  osf get nodes/abc12/
  osf get users/me/ --output table
  osf get nodes/abc12/ --query embed=contributors`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getOutput, "output", "o", outputJSON, "Output format: json or table")
	getCmd.Flags().StringArrayVar(&getQuery, "query", nil, "Query parameter as key=value (repeatable)")
}

func runGet(cmd *cobra.Command, args []string) error {
	if err := validateOutput(getOutput); err != nil {
		return err
	}
	query, err := parseQuery(getQuery)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	item, err := client.Get(commandContext(cmd.Context()), args[0], query)
	if err != nil {
		return err
	}

	if getOutput == outputTable {
		renderItem(cmd.OutOrStdout(), *item)
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), item)
}
