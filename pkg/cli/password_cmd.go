package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the saved API password",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the API password in the secret store (read from --password or the first line of stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := cmd.Context()
			pw := a.cfg.Fleet.Password
			if pw == "" {
				line, err := bufio.NewReader(a.in).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if pw == "" {
				return fmt.Errorf("password is empty")
			}
			secrets, err := a.secretStore(ctx)
			if err != nil {
				return err
			}
			if err := secrets.Set(ctx, passwordService, passwordAccount, []byte(pw)); err != nil {
				return fmt.Errorf("save password: %w", err)
			}
			a.printf("password saved\n")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the saved API password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := cmd.Context()
			secrets, err := a.secretStore(ctx)
			if err != nil {
				return err
			}
			if err := secrets.Delete(ctx, passwordService, passwordAccount); err != nil {
				return fmt.Errorf("clear password: %w", err)
			}
			a.printf("password cleared\n")
			return nil
		},
	})
	return cmd
}
