package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newAuthCmd groups the saved-auth maintenance commands.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or clear the saved browser auth state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print a redacted summary of the saved auth state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := appInstance.AuthStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return fmt.Errorf("write status: %w", err)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the saved auth state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := appInstance.ClearAuth(cmd.Context())
			if err != nil {
				return fmt.Errorf("auth clear: %w", err)
			}
			msg := "no saved auth state"
			if removed {
				msg = "auth state cleared"
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), msg); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
			return nil
		},
	})
	return cmd
}
