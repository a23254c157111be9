package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"batch-delete/pkg/engine"
	"batch-delete/pkg/workset"
)

// fetchPresets are the accepted --days values; 0 fetches every device.
var fetchPresets = []int{7, 14, 30, 90, 180, 360, 0}

func newFetchCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Load devices that have not checked in for a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(fetchPresets, days) {
				return fmt.Errorf("--days must be one of 7, 14, 30, 90, 180, 360 or 0 (all devices)")
			}
			defer a.close()
			ctx := cmd.Context()

			client, err := a.client(ctx)
			if err != nil {
				return err
			}
			tok, err := engine.New(client, engine.Options{Logger: a.log}).Authenticate(ctx)
			if err != nil {
				return err
			}
			var since time.Time
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days)
			}
			computers, err := client.ListRecent(ctx, tok, since)
			if err != nil {
				return err
			}

			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			ws.Replace(workset.FromComputers(computers))
			if err := a.saveWorkset(ws); err != nil {
				return err
			}
			a.printf("%d computer(s) found\n", len(computers))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Minimum days since last check-in (7, 14, 30, 90, 180, 360, or 0 for all)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Load serial numbers from a CSV file (one per line, - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := a.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			items, err := workset.ImportSerials(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			ws.Replace(items)
			if err := a.saveWorkset(ws); err != nil {
				return err
			}
			a.log.Info("imported serials", "file", args[0], "count", len(items))
			a.printf("%d computer(s) imported\n", len(items))
			return nil
		},
	}
}
