// Package cli implements the batch-delete command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batch-delete/pkg/config"
	"batch-delete/pkg/logging"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath string
	envFile    string
	output     string

	url           string
	clientID      string
	password      string
	actor         string
	stateDir      string
	secretBackend string
	timeout       string
	caFile        string
	insecure      bool
	logLevel      string
	logFormat     string
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "batch-delete",
		Short: "Bulk-delete stale devices from a fleet security console",
		Long: "Loads a working set of devices (by check-in age or from a CSV of serials), deletes the\n" +
			"selected ones through the fleet API, retries failures with backoff and keeps a signed\n" +
			"audit log of every delete attempt.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath, f.envFile)
			if err != nil {
				return err
			}
			// precedence: flag > env > .env > file > default
			flags := cmd.Flags()
			set := func(name string, dst *string, v string) {
				if flags.Changed(name) {
					*dst = v
				}
			}
			set("url", &cfg.Fleet.URL, f.url)
			set("client-id", &cfg.Fleet.ClientID, f.clientID)
			set("password", &cfg.Fleet.Password, f.password)
			set("actor", &cfg.Actor, f.actor)
			set("state-dir", &cfg.StateDir, f.stateDir)
			set("secret-backend", &cfg.Secrets.Backend, f.secretBackend)
			set("timeout", &cfg.Fleet.Timeout, f.timeout)
			set("ca-file", &cfg.Fleet.CAFile, f.caFile)
			set("log-level", &cfg.Log.Level, f.logLevel)
			set("log-format", &cfg.Log.Format, f.logFormat)
			if flags.Changed("insecure") {
				cfg.Fleet.Insecure = f.insecure
			}

			if f.output != "table" && f.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", f.output)
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger
			a.output = f.output
			a.out = cmd.OutOrStdout()
			a.in = cmd.InOrStdin()
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath(), "Config file")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file with "+config.EnvPrefix+"* variables")
	pf.StringVarP(&f.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVar(&f.url, "url", "", "Fleet API base URL")
	pf.StringVar(&f.clientID, "client-id", "", "API client ID")
	pf.StringVar(&f.password, "password", "", "API client password (default: saved password)")
	pf.StringVar(&f.actor, "actor", "", "Name recorded as the actor in audit entries")
	pf.StringVar(&f.stateDir, "state-dir", "", "Directory holding the working set")
	pf.StringVar(&f.secretBackend, "secret-backend", "", "Secret store backend (memory, sqlite, consul)")
	pf.StringVar(&f.timeout, "timeout", "", "Per-request timeout, e.g. 30s")
	pf.StringVar(&f.caFile, "ca-file", "", "Extra CA bundle for the fleet API")
	pf.BoolVar(&f.insecure, "insecure", false, "Skip TLS verification of the fleet API")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(newFetchCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newSelectCmd(a))
	rootCmd.AddCommand(newDeleteCmd(a))
	rootCmd.AddCommand(newRetryCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newAuditCmd(a))
	rootCmd.AddCommand(newPasswordCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}
