// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tillbook/cli/internal/auth"
)

var outletCmd = &cobra.Command{
	Use:   "outlet",
	Short: "List outlets and choose the one this terminal works for",
}

var outletListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the outlets your account can access",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, st, err := startSignedIn(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		if st.Profile == nil {
			return errors.New("profile unavailable, run 'tillbook refresh' and try again")
		}
		return printOutlets(a.out, st)
	},
}

var outletUseCmd = &cobra.Command{
	Use:   "use <outlet-id>",
	Short: "Select the outlet this terminal works for",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := startSignedIn(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.SetSelectedOutlet(args[0]); err != nil {
			if errors.Is(err, auth.ErrUnknownOutlet) {
				return fmt.Errorf("outlet %q is not available to this account; see 'tillbook outlet list'", args[0])
			}
			return err
		}
		if o, ok := selectedOutlet(a.ctrl.State()); ok {
			fmt.Fprintf(a.out, "✅ Now working for %s\n", outletLabel(o))
		}
		return nil
	},
}

var outletClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the selected outlet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := startSignedIn(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.SetSelectedOutlet(""); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Outlet selection cleared")
		return nil
	},
}

// startSignedIn opens the app and requires a signed-in state. On error a is already closed.
func startSignedIn(cmd *cobra.Command) (*app, auth.AuthState, error) {
	a, err := openApp(cmd)
	if err != nil {
		return nil, auth.AuthState{}, err
	}
	st, err := a.start(cmd.Context())
	if err != nil {
		a.close()
		return nil, st, err
	}
	if !st.IsAuthenticated {
		a.close()
		printNotLoggedIn(cmd.OutOrStdout())
		return nil, st, auth.ErrNotAuthenticated
	}
	return a, st, nil
}

func init() {
	outletCmd.AddCommand(outletListCmd, outletUseCmd, outletClearCmd)
	rootCmd.AddCommand(outletCmd)
}
