// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/profile"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNotLoggedIn(w io.Writer) {
	fmt.Fprintln(w, "🔒 You're not logged in yet!")
	fmt.Fprintln(w, "   Run 'tillbook login' to get started.")
}

// printState renders st for humans.
func printState(w io.Writer, st auth.AuthState) {
	if !st.IsAuthenticated || st.Identity == nil {
		printNotLoggedIn(w)
		return
	}

	id := st.Identity
	if id.DisplayName != "" && id.DisplayName != id.Email {
		fmt.Fprintf(w, "👤 %s <%s>\n", id.DisplayName, id.Email)
	} else {
		fmt.Fprintf(w, "👤 %s\n", id.Email)
	}

	if st.Profile == nil {
		pterm.Warning.WithWriter(w).Println("Profile unavailable. Run 'tillbook refresh' to try again.")
		if st.SelectedTenant != "" {
			fmt.Fprintf(w, "   Outlet: %s\n", st.SelectedTenant)
		}
		return
	}

	fmt.Fprintf(w, "   Role:   %s\n", id.Role)
	if o, ok := selectedOutlet(st); ok {
		fmt.Fprintf(w, "   Outlet: %s\n", outletLabel(o))
	} else {
		fmt.Fprintf(w, "   Outlet: none selected (%d available)\n", len(st.Tenants))
	}
}

func selectedOutlet(st auth.AuthState) (profile.Outlet, bool) {
	for _, o := range st.Tenants {
		if o.ID == st.SelectedTenant {
			return o, true
		}
	}
	return profile.Outlet{}, false
}

func outletLabel(o profile.Outlet) string {
	if o.Code != "" {
		return fmt.Sprintf("%s (%s)", o.Name, o.Code)
	}
	return o.Name
}

// printOutlets renders the accessible outlets as a bullet list, marking the selected one.
func printOutlets(w io.Writer, st auth.AuthState) error {
	if len(st.Tenants) == 0 {
		fmt.Fprintln(w, "No outlets available for this account.")
		return nil
	}
	items := make([]pterm.BulletListItem, 0, len(st.Tenants))
	for _, o := range st.Tenants {
		item := pterm.BulletListItem{Level: 0, Text: fmt.Sprintf("%s  %s", o.ID, outletLabel(o))}
		if o.ID == st.SelectedTenant {
			item.Bullet = "▸"
			item.TextStyle = pterm.NewStyle(pterm.Bold)
		}
		items = append(items, item)
	}
	return pterm.DefaultBulletList.WithItems(items).WithWriter(w).Render()
}
