package cli

import (
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"batch-delete/pkg/model"
	"batch-delete/pkg/stats"
)

func newStatsCmd(a *app) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the outcome of the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			if history > 0 {
				return a.printHistory(history)
			}
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			s := stats.SummarizeRefs(ws.Filter(func(it *model.Item) bool {
				return it.State.Kind != model.StatePending
			}))
			if a.output == "json" {
				return a.printJSON(s)
			}
			a.printf("Total:      %d\n", s.Total)
			a.printf("Succeeded:  %d\n", s.Succeeded)
			a.printf("Failed:     %d\n", s.Failed)
			a.printf("Retried:    %d\n", s.Retried)
			if len(s.Status) > 0 {
				keys := make([]string, 0, len(s.Status))
				for k := range s.Status {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				a.printf("\nStatus:\n")
				for _, k := range keys {
					a.printf("  %-8s %d\n", k, s.Status[k])
				}
			}
			if len(s.Errors) > 0 {
				a.printf("\nErrors:\n")
				for _, e := range s.Errors {
					a.printf("  %4d  %s\n", e.Count, e.Message)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "List the last N runs from run history instead")
	return cmd
}

func (a *app) printHistory(limit int) error {
	h, err := a.history()
	if err != nil {
		return err
	}
	runs, err := h.ListRuns(limit)
	if err != nil {
		return err
	}
	if a.output == "json" {
		return a.printJSON(runs)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = tw.Write([]byte("RUN\tKIND\tACTOR\tSTARTED\tTOTAL\tSUCCEEDED\tFAILED\n"))
	for _, r := range runs {
		a.printfTo(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", r.ID, r.Kind, r.Actor,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Counters.Total, r.Counters.Succeeded, r.Counters.Failed)
	}
	return tw.Flush()
}
