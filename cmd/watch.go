// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/logging"
)

var watchJSON bool

// watchCmd keeps a controller mounted and prints every published state until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay signed in and print every session change",
	Long: `The watch command keeps the session mounted until interrupted. It prints the session
state whenever it changes: sign-in on another terminal, a revoked session, a refreshed
token or an outlet change.

When an events address is configured (TILLBOOK_IDENTITY_EVENTS_ADDR or the identity
manifest), server-pushed session events are applied as they arrive. With auto refresh
enabled the access token is renewed shortly before it expires.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		states, unsubscribe := a.ctrl.Subscribe()
		defer unsubscribe()
		a.ctrl.Start(ctx)

		g, gctx := errgroup.WithContext(ctx)

		if addr := a.manifest.EventsAddress(a.cfg.Identity.EventsAddr); addr != "" {
			g.Go(func() error {
				return a.identity.WatchRemote(gctx, identity.StreamOptions{
					Target: addr,
					OnError: func(err error) {
						if logging.ParseStreamError(err) != logging.StreamErrorNetwork {
							fmt.Fprintln(cmd.ErrOrStderr(), logging.FormatStreamError(err))
						}
					},
				})
			})
		}
		if a.cfg.Identity.AutoRefresh {
			g.Go(func() error {
				a.identity.AutoRefresh(gctx, 30*time.Second)
				return nil
			})
		}
		g.Go(func() error {
			return printStates(gctx, cmd, states)
		})

		return g.Wait()
	},
}

// printStates prints each settled state that differs from the previous one.
func printStates(ctx context.Context, cmd *cobra.Command, states <-chan auth.AuthState) error {
	var last *auth.AuthState
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if st.IsLoading || (last != nil && sameState(*last, st)) {
				continue
			}
			last = &st
			if watchJSON {
				if err := printJSON(cmd.OutOrStdout(), st); err != nil {
					return err
				}
				continue
			}
			pterm.Fprintln(cmd.OutOrStdout(), pterm.Gray(time.Now().Format(time.TimeOnly)))
			printState(cmd.OutOrStdout(), st)
		}
	}
}

func sameState(a, b auth.AuthState) bool {
	if a.IsAuthenticated != b.IsAuthenticated || a.SelectedTenant != b.SelectedTenant {
		return false
	}
	if (a.Profile == nil) != (b.Profile == nil) || len(a.Tenants) != len(b.Tenants) {
		return false
	}
	if (a.Identity == nil) != (b.Identity == nil) {
		return false
	}
	if a.Identity != nil && *a.Identity != *b.Identity {
		return false
	}
	return true
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print each state as JSON")
	rootCmd.AddCommand(watchCmd)
}
