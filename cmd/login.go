// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tillbook/cli/internal/auth"
	apperrors "tillbook/cli/internal/errors"
	"tillbook/cli/internal/httperrors"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/terminal"
)

var loginEmail string

// loginCmd signs in with email and password.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Sign in with your Tillbook email and password",
	Long: `The login command signs you in against the Tillbook identity service, loads your
profile and outlets and keeps the session in your OS keychain.

If a session is already stored and still valid, the command reports who is signed in
and does nothing else. The password is read without echo when stdin is a terminal.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.start(ctx)
		if err != nil {
			return err
		}
		if st.IsAuthenticated && st.Identity != nil {
			fmt.Fprintf(a.out, "Already logged in as %s\n", st.Identity.Email)
			return nil
		}

		p := terminal.NewPrompter()
		p.Out = a.out
		email := loginEmail
		if email == "" {
			if email, err = p.Ask("Email: "); err != nil {
				return err
			}
		}
		password, err := p.AskSecret("Password: ")
		if err != nil {
			return err
		}

		stop := startInlineSpinner(a.out, "Signing in", []string{"|", "/", "-", "\\"}, 120*time.Millisecond)
		err = a.ctrl.Login(ctx, identity.Credentials{Email: email, Password: password})
		stop()
		if err != nil {
			return loginError(a, err)
		}

		st = a.ctrl.State()
		if st.Identity != nil {
			fmt.Fprintln(a.out, loginGreeting(st.Identity.Email))
		}
		printState(a.out, st)
		return nil
	},
}

// loginError turns a failed login into terminal output and a short returned error.
func loginError(a *app, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("login cancelled")
	case errors.Is(err, auth.ErrLoginInProgress):
		return errors.New("another sign-in is already running")
	case errors.Is(err, identity.ErrInvalidCredentials):
		pterm.Error.WithWriter(a.out).Println("Email or password is incorrect.")
		return errors.New("login failed")
	case apperrors.Is(err, apperrors.KindValidation):
		var e *apperrors.E
		if errors.As(err, &e) {
			pterm.Error.WithWriter(a.out).Println(e.Message)
		}
		return errors.New("login failed")
	case auth.Classify(err) == apperrors.KindAuth:
		pterm.Error.WithWriter(a.out).Println("Your account could not be signed in: " + err.Error())
		return errors.New("login failed")
	}
	return httperrors.FormatNetworkError(err, "signing in", a.cfg.Identity.BaseURL)
}

func loginGreeting(email string) string {
	greetings := []string{
		"🎉 Welcome back, %s!",
		"✨ Great to see you, %s!",
		"🧾 Ready to ring up sales, %s?",
		"✅ Signed in as %s",
	}
	return fmt.Sprintf(greetings[rand.IntN(len(greetings))], email)
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email to sign in with (prompted when empty)")
	rootCmd.AddCommand(loginCmd)
}
