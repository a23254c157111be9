package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"batch-delete/pkg/config"
	"batch-delete/pkg/db"
	"batch-delete/pkg/fleet"
	"batch-delete/pkg/secret"
	"batch-delete/pkg/store"
	"batch-delete/pkg/workset"
)

// Secret store coordinates of the saved API password.
const (
	passwordService = "batch-delete"
	passwordAccount = "password"
)

// app carries the resolved configuration and lazily opened resources for
// one command invocation.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	output string
	out    io.Writer
	in     io.Reader

	secrets secret.Store
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	a.secrets = nil
}

func (a *app) secretStore(ctx context.Context) (secret.Store, error) {
	if a.secrets != nil {
		return a.secrets, nil
	}
	sc := a.cfg.Secrets
	switch sc.Backend {
	case "memory":
		a.secrets = secret.NewMemory()
	case "sqlite":
		s, err := secret.OpenSQLite(ctx, sc.Path, sc.Passphrase)
		if errors.Is(err, secret.ErrPassphraseRequired) {
			return nil, fmt.Errorf("%w: set %sSECRET_PASSPHRASE or secrets.passphrase", err, config.EnvPrefix)
		}
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.secrets = s
	case "consul":
		s, err := secret.NewConsul(sc.ConsulAddr, sc.ConsulToken, a.log)
		if err != nil {
			return nil, err
		}
		a.secrets = s
	default:
		return nil, fmt.Errorf("unknown secret backend %q", sc.Backend)
	}
	return a.secrets, nil
}

// password returns the configured password, falling back to the saved one.
func (a *app) password(ctx context.Context) (string, error) {
	if a.cfg.Fleet.Password != "" {
		return a.cfg.Fleet.Password, nil
	}
	s, err := a.secretStore(ctx)
	if err != nil {
		return "", fmt.Errorf("no password given and the saved password is unavailable: %w", err)
	}
	v, ok, err := s.Get(ctx, passwordService, passwordAccount)
	if err != nil {
		return "", fmt.Errorf("read saved password: %w", err)
	}
	if !ok || len(v) == 0 {
		return "", fmt.Errorf("no password: use --password, %sPASSWORD or 'batch-delete password save'", config.EnvPrefix)
	}
	return string(v), nil
}

func (a *app) client(ctx context.Context) (*fleet.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	pw, err := a.password(ctx)
	if err != nil {
		return nil, err
	}
	fc := a.cfg.Fleet
	hc, err := fleet.BuildHTTPClient(fc.CAFile, fc.Insecure, fc.TimeoutDuration())
	if err != nil {
		return nil, err
	}
	return fleet.New(fleet.Options{
		BaseURL:           fc.URL,
		ClientID:          fc.ClientID,
		Password:          pw,
		HTTPClient:        hc,
		RequestsPerSecond: fc.RateLimit,
		PageSize:          fc.PageSize,
		Logger:            a.log,
	})
}

func (a *app) history() (store.RunStore, error) {
	dsn := a.cfg.History.DSN
	if dsn == "" {
		return store.NewMemory(), nil
	}
	gdb, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	return store.NewGormStore(gdb)
}

func (a *app) loadWorkset() (*workset.Set, error) {
	return workset.Load(a.cfg.WorksetPath())
}

func (a *app) saveWorkset(ws *workset.Set) error {
	return ws.Save(a.cfg.WorksetPath())
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) printfTo(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on the command's input.
func (a *app) confirm(question string) bool {
	a.printf("%s [y/N] ", question)
	var answer string
	if _, err := fmt.Fscanln(a.in, &answer); err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
