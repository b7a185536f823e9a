// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"io"
	"sync"

	"github.com/pterm/pterm"

	"tillbook/cli/internal/auth"
)

// terminalNavigator turns navigation signals into terminal output.
// Home is silent; commands render the signed-in state themselves.
type terminalNavigator struct {
	out io.Writer

	mu   sync.Mutex
	last auth.Destination
}

func newTerminalNavigator(out io.Writer) *terminalNavigator {
	return &terminalNavigator{out: out}
}

func (n *terminalNavigator) Navigate(dest auth.Destination, reason string) {
	n.mu.Lock()
	n.last = dest
	n.mu.Unlock()

	if dest != auth.DestLogin {
		return
	}
	switch reason {
	case "", "user-initiated":
		return
	}
	pterm.Warning.WithWriter(n.out).Printfln("Signed out: %s", reason)
	pterm.Fprintln(n.out, "   Run 'tillbook login' to sign in again.")
}

// Last returns the most recent destination, "" when none was signalled.
func (n *terminalNavigator) Last() auth.Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
