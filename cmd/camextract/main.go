// Copyright (c) 2019 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package camextract implements the camextract command line tool with
// various subcommands that handle Capability Access Manager stores.
//     extract    Write HTML and TSV reports for every store found
//     classify   Print the schema version of a store
//     digest     Print a content digest per table
//     reconcile  Checkpoint a pending write-ahead log
//     snapshot   List or unpack evidence snapshots
//
// Usage
//
// Extract all stores below an image mount
//     camextract extract -i /mnt/image/Windows -o out -c wleap-WindowsAccess.json
// Extract a subset of the reports
//     camextract extract -i CapabilityAccessManager.db -m A,B,a-cam-packaged-apps
// Reconcile with diagnostics and keep the original files
//     camextract reconcile --diagnostics --snapshot before.sqlar CapabilityAccessManager.db
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/PatricioDomingues/WLEAPPCAM/cmd"
)

const title = "WLEAPP CAM - Windows Capability Access Manager"

func banner() string {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		Padding(0, 1).
		Bold(true).
		Render(title)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "camextract",
		Short: "Handle Capability Access Manager stores",
		PersistentPreRun: func(c *cobra.Command, args []string) {
			fmt.Fprintln(os.Stderr, banner())
		},
	}
	rootCmd.AddCommand(cmd.Extract(), cmd.Classify(), cmd.Digest(), cmd.Reconcile(), cmd.Snapshot())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
