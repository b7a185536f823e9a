// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload your profile and outlets",
	Long: `The refresh command reloads your profile and outlet list for the current session.
It never signs you out: if the profile cannot be loaded the session is kept and shown
without profile details.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := startSignedIn(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		a.ctrl.RefreshProfile(cmd.Context())
		printState(a.out, a.ctrl.State())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
