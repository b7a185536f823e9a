// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logoutCmd signs out and removes every session artifact.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove all saved session data",
	Long: `The logout command signs out of the identity service (best-effort) and removes
every session artifact from the local store: tokens, the cached account snapshot and the
selected outlet. Local data is removed even when the identity service is unreachable.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		a.ctrl.Logout(cmd.Context())
		fmt.Fprintln(a.out, "✅ Signed out. All session data has been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
