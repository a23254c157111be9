package cli

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"batch-delete/pkg/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect audit logs and the signing key",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify FILE",
		Short: "Verify the signature of an exported audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := audit.ReadEnvelope(args[0])
			if err != nil {
				return err
			}
			if err := audit.Verify(env); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			a.printf("OK: %d entries, key %s\n", len(env.Entries), fingerprint(env.PublicKeyBase64))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the buffered audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := a.loadWorkset()
			if err != nil {
				return err
			}
			if a.output == "json" {
				return a.printJSON(ws.Audit)
			}
			for _, e := range ws.Audit {
				line := fmt.Sprintf("%s  %-7s  %-16s  %s", e.Timestamp, e.Outcome, e.ID, e.HostName)
				if e.Error != "" {
					line += "  " + e.Error
				}
				a.printf("%s\n", line)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pubkey",
		Short: "Print the public signing key, creating the key pair if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := cmd.Context()
			secrets, err := a.secretStore(ctx)
			if err != nil {
				return err
			}
			pub, err := audit.NewSigner(secrets, a.log).PublicKeyBase64(ctx)
			if err != nil {
				return err
			}
			a.printf("%s\n", pub)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate-key",
		Short: "Replace the signing key; earlier exports still verify with their embedded key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := cmd.Context()
			secrets, err := a.secretStore(ctx)
			if err != nil {
				return err
			}
			s := audit.NewSigner(secrets, a.log)
			if err := s.Rotate(ctx); err != nil {
				return err
			}
			pub, err := s.PublicKeyBase64(ctx)
			if err != nil {
				return err
			}
			a.printf("new key %s\n", fingerprint(pub))
			return nil
		},
	})
	return cmd
}

// fingerprint is the first 8 bytes of the SHA-256 of the DER public key.
func fingerprint(pubB64 string) string {
	der, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}
