package cli

import (
	"github.com/spf13/cobra"

	"batch-delete/pkg/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.output == "json" {
				return a.printJSON(map[string]string{
					"version": version.Build,
					"commit":  version.Commit,
				})
			}
			a.printf("batch-delete version %s\n", version.String())
			return nil
		},
	}
}
