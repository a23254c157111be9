package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"batch-delete/pkg/api"
	"batch-delete/pkg/audit"
	"batch-delete/pkg/engine"
	"batch-delete/pkg/fleet"
	"batch-delete/pkg/model"
	"batch-delete/pkg/stats"
	"batch-delete/pkg/store"
)

type runOptions struct {
	yes         bool
	listen      string
	keepServing bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().StringVar(&o.listen, "listen", "", "Serve the progress dashboard on this address while running")
	cmd.Flags().BoolVar(&o.keepServing, "keep-serving", false, "Keep the dashboard up after the run until interrupted")
}

// pass is one engine run over the working set. A nil run means the pass had
// nothing to do.
type pass func(ctx context.Context, e *engine.Engine, tok fleet.Token, items []*model.Item) (*engine.Run, error)

func deletePass(pred func(*model.Item) bool) pass {
	return func(ctx context.Context, e *engine.Engine, tok fleet.Token, items []*model.Item) (*engine.Run, error) {
		return e.Delete(ctx, tok, items, pred)
	}
}

func retryPass(ctx context.Context, e *engine.Engine, tok fleet.Token, items []*model.Item) (*engine.Run, error) {
	if countMatching(items, engine.FailedOnly) == 0 {
		return nil, nil
	}
	return e.RetryFailed(ctx, tok, items)
}

func countMatching(items []*model.Item, pred func(*model.Item) bool) int {
	n := 0
	for _, it := range items {
		if pred(it) {
			n++
		}
	}
	return n
}

func newDeleteCmd(a *app) *cobra.Command {
	var (
		opts   runOptions
		resume bool
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected devices",
		Long: "Deletes every selected device in the working set, one at a time. Devices imported by\n" +
			"serial are looked up first. Interrupting the run stops it after the current device;\n" +
			"use --resume to continue with the devices left queued.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pred := engine.Selected
			if resume {
				pred = engine.Interrupted
			}
			passes := []pass{deletePass(pred)}
			for i := 0; i < rounds; i++ {
				passes = append(passes, retryPass)
			}
			return a.runPasses(cmd.Context(), opts, pred, passes...)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&resume, "resume", false, "Only process devices an interrupted run left queued")
	cmd.Flags().IntVar(&rounds, "retry-rounds", 0, "Retry failures this many times after the delete pass")
	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	var (
		opts   runOptions
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry failed deletes with exponential backoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rounds < 1 {
				return fmt.Errorf("--rounds must be at least 1")
			}
			passes := make([]pass, rounds)
			for i := range passes {
				passes[i] = retryPass
			}
			return a.runPasses(cmd.Context(), opts, engine.FailedOnly, passes...)
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&rounds, "rounds", 1, "Number of retry rounds")
	return cmd
}

// runPasses authenticates, then executes each pass against the working set,
// recording history and buffering audit entries. The working set is saved
// even when a pass fails or the run is interrupted.
func (a *app) runPasses(ctx context.Context, opts runOptions, pred func(*model.Item) bool, passes ...pass) error {
	defer a.close()

	ws, err := a.loadWorkset()
	if err != nil {
		return err
	}
	n := countMatching(ws.Items, pred)
	if n == 0 {
		return fmt.Errorf("no computers to process")
	}
	if !opts.yes && !a.confirm(fmt.Sprintf("Do you wish to delete %d computer(s)?", n)) {
		a.printf("aborted\n")
		return nil
	}

	client, err := a.client(ctx)
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
	eng := engine.New(client, engine.Options{
		Actor:   a.cfg.Actor,
		Audit:   log,
		Observe: dash.Publish,
		Logger:  a.log,
	})
	tok, err := eng.Authenticate(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	work := func(ctx context.Context) error {
		for _, p := range passes {
			if ctx.Err() != nil {
				return nil
			}
			if !tok.Valid(time.Now()) {
				fresh, err := eng.Authenticate(ctx)
				if err != nil {
					return err
				}
				tok = fresh
			}
			run, err := p(ctx, eng, tok, ws.Items)
			if err != nil {
				return err
			}
			if run != nil {
				a.finishRun(run, history, dash)
			}
		}
		return nil
	}

	if opts.listen == "" {
		err = work(ctx)
	} else {
		err = a.workWithDashboard(ctx, opts, dash, work)
	}

	ws.Audit = log.Entries()
	if serr := a.saveWorkset(ws); serr != nil {
		err = errors.Join(err, fmt.Errorf("save working set: %w", serr))
	}
	if left := countMatching(ws.Items, engine.Interrupted); left > 0 && ctx.Err() != nil {
		a.printf("interrupted: %d computer(s) left queued; run 'batch-delete delete --resume' to continue\n", left)
	}
	return err
}

func (a *app) workWithDashboard(ctx context.Context, opts runOptions, dash *api.Dashboard, work func(context.Context) error) error {
	tlsCfg, err := api.ServerTLSConfig(api.TLSOptions{
		CertFile: a.cfg.Dashboard.CertFile,
		KeyFile:  a.cfg.Dashboard.KeyFile,
		ClientCA: a.cfg.Dashboard.ClientCA,
	})
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return err
	}
	a.printf("dashboard on %s\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	g.Go(func() error {
		return api.Serve(srvCtx, ln, dash.Handler(), tlsCfg, a.log)
	})
	g.Go(func() error {
		defer stopServer()
		if err := work(gctx); err != nil {
			return err
		}
		if opts.keepServing {
			<-gctx.Done()
		}
		return nil
	})
	return g.Wait()
}

func (a *app) finishRun(run *engine.Run, history store.RunStore, dash *api.Dashboard) {
	summary := stats.Summarize(run.Items())
	rec := run.Record(a.cfg.Actor)
	rec.Errors = summary.Errors
	if err := history.SaveRun(rec); err != nil {
		a.log.Error("save run history failed", "run", run.ID, "error", err)
	}
	dash.SetSummary(summary)

	c := rec.Counters
	a.printf("%s run %s: %d succeeded, %d failed", run.Kind, run.ID, c.Succeeded, c.Failed)
	if c.Queued > 0 {
		a.printf(", %d not started", c.Queued)
	}
	a.printf("\n")
	for _, e := range summary.Errors {
		a.printf("  %4d  %s\n", e.Count, e.Message)
	}
}
