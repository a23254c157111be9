package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"batch-delete/pkg/audit"
	"batch-delete/pkg/model"
	"batch-delete/pkg/workset"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the signed audit log or CSV reports",
	}
	cmd.AddCommand(newExportAuditCmd(a))
	cmd.AddCommand(newExportCSVCmd(a, "failures", "protect-failures.csv", workset.WriteFailures))
	cmd.AddCommand(newExportCSVCmd(a, "successes", "protect-successes.csv", workset.WriteSuccesses))
	return cmd
}

func newExportAuditCmd(a *app) *cobra.Command {
	var (
		dir        string
		clearAfter bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Sign the buffered audit entries and write them to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := cmd.Context()
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			secrets, err := a.secretStore(ctx)
			if err != nil {
				return err
			}
			signer := audit.NewSigner(secrets, a.log)
			for _, e := range ws.Audit {
				if err := signer.Append(e); err != nil {
					return err
				}
			}
			env, err := signer.Export(ctx)
			if errors.Is(err, audit.ErrEmptyLog) {
				return fmt.Errorf("no audit entries to export")
			}
			if err != nil {
				return err
			}
			path, err := audit.WriteEnvelope(dir, env, time.Now())
			if err != nil {
				return err
			}
			if clearAfter {
				ws.Audit = nil
				if err := a.saveWorkset(ws); err != nil {
					return err
				}
			}
			a.log.Info("audit log exported", "path", path, "entries", len(env.Entries))
			a.printf("%s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the audit file to")
	cmd.Flags().BoolVar(&clearAfter, "clear", false, "Discard the buffered entries after a successful export")
	return cmd
}

func newExportCSVCmd(a *app, name, defaultFile string, write func(io.Writer, []*model.Item) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [FILE]",
		Short: "Write " + name + " of the last run as CSV (- for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			path := defaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "-" {
				_, err := write(a.out, ws.Items)
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			n, werr := write(f, ws.Items)
			if err := errors.Join(werr, f.Close()); err != nil {
				return err
			}
			a.printf("%d row(s) written to %s\n", n, path)
			return nil
		},
	}
}
