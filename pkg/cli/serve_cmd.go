package cli

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"batch-delete/pkg/api"
	"batch-delete/pkg/audit"
	"batch-delete/pkg/model"
	"batch-delete/pkg/stats"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard for the current working set and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			if listen == "" {
				listen = a.cfg.Dashboard.Listen
			}
			if listen == "" {
				listen = "127.0.0.1:8080"
			}
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			history, err := a.history()
			if err != nil {
				return err
			}
			log := &audit.Log{}
			for _, e := range ws.Audit {
				_ = log.Append(e)
			}
			dash := api.NewDashboard(history, log, a.cfg.Dashboard.Token, a.log)
			dash.SetSummary(stats.SummarizeRefs(ws.Filter(func(it *model.Item) bool {
				return it.State.Kind != model.StatePending
			})))

			tlsCfg, err := api.ServerTLSConfig(api.TLSOptions{
				CertFile: a.cfg.Dashboard.CertFile,
				KeyFile:  a.cfg.Dashboard.KeyFile,
				ClientCA: a.cfg.Dashboard.ClientCA,
			})
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.printf("dashboard on %s\n", ln.Addr())
			return api.Serve(ctx, ln, dash.Handler(), tlsCfg, a.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: dashboard.listen or 127.0.0.1:8080)")
	return cmd
}
