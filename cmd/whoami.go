// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	"tillbook/cli/internal/auth"
)

var (
	whoamiJSON    bool
	whoamiOffline bool
)

// whoamiCmd shows the current session.
var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Aliases: []string{"status"},
	Short:   "Show the signed-in account, role and outlet",
	Long: `The whoami command verifies the stored session with the identity service, loads the
profile and prints who is signed in, their role and the selected outlet.

With --offline it prints the snapshot saved by the last command without any network
access. With --json it prints the full session state as JSON.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if whoamiOffline {
			scope, closeScope, err := openArtifacts(cmd)
			if err != nil {
				return err
			}
			defer closeScope()
			st, _, err := auth.LoadSnapshot(scope)
			if err != nil {
				return err
			}
			return renderState(cmd, st)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.start(cmd.Context())
		if err != nil {
			return err
		}
		return renderState(cmd, st)
	},
}

func renderState(cmd *cobra.Command, st auth.AuthState) error {
	if whoamiJSON {
		return printJSON(cmd.OutOrStdout(), st)
	}
	printState(cmd.OutOrStdout(), st)
	return nil
}

func init() {
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Print the session state as JSON")
	whoamiCmd.Flags().BoolVar(&whoamiOffline, "offline", false, "Show the last saved state without contacting any service")
	rootCmd.AddCommand(whoamiCmd)
}
