// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Command biscuit is a small inspection tool for Biscuit tokens: key
// generation, token inspection, and sealing. Token and block construction
// needs the Datalog parser and stays out of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "biscuit",
		Short:        "Inspect and manage Biscuit authorization tokens",
		SilenceUsage: true,
	}

	root.AddCommand(keygenCommand())
	root.AddCommand(inspectCommand())
	root.AddCommand(sealCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
