// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the Tillbook CLI application.
package main

import (
	"tillbook/cli/cmd"
)

func main() {
	cmd.Execute()
}
