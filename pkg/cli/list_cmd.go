package cli

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"batch-delete/pkg/model"
)

func newListCmd(a *app) *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the working set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			items := ws.Items
			if failedOnly {
				items = ws.Filter(func(it *model.Item) bool { return it.State.Kind == model.StateFailed })
			}
			if a.output == "json" {
				if items == nil {
					items = []*model.Item{}
				}
				return a.printJSON(items)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			_, _ = tw.Write([]byte("SEL\tSERIAL\tHOST\tLAST CHECK-IN\tSTATUS\tERROR\n"))
			for _, it := range items {
				sel := " "
				if it.Selected {
					sel = "x"
				}
				checkin := ""
				if it.LastCheckin != nil {
					checkin = it.LastCheckin.Local().Format("2006-01-02 15:04")
				}
				_, _ = tw.Write([]byte(sel + "\t" + it.ID + "\t" + it.HostName + "\t" + checkin + "\t" +
					it.State.String() + "\t" + it.LastError + "\n"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed items")
	return cmd
}

func newSelectCmd(a *app) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "select [SERIAL...]",
		Short: "Select (or with --off, deselect) items for deletion; no serials means all",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			n := ws.Select(!off, args...)
			if err := a.saveWorkset(ws); err != nil {
				return err
			}
			verb := "selected"
			if off {
				verb = "deselected"
			}
			a.printf("%d item(s) %s\n", n, verb)
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Deselect instead of select")
	return cmd
}
