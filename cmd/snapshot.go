// Copyright (c) 2020 Siemens AG
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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PatricioDomingues/WLEAPPCAM/snapshot"
)

// Snapshot is the camextract snapshot commandline subcommand
func Snapshot() *cobra.Command {
	snapshotCommand := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect evidence snapshots taken before a checkpoint",
	}
	snapshotCommand.AddCommand(lsCommand(), unpackCommand())
	return snapshotCommand
}

func lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive>",
		Short: "List the files of a snapshot",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := snapshot.Open(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Entries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%d\t%s\t%s\n", e.Name, e.Size, time.Unix(e.MTime, 0).UTC().Format(time.RFC3339), e.SHA256)
			}
			return nil
		},
	}
}

func unpackCommand() *cobra.Command {
	var dest string
	unpackCmd := &cobra.Command{
		Use:   "unpack <archive>",
		Short: "Extract the files of a snapshot and verify their digests",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := snapshot.Open(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			flaws, err := a.Verify()
			if err != nil {
				return err
			}
			if len(flaws) > 0 {
				return fmt.Errorf("snapshot damaged: %v", flaws)
			}

			entries, err := a.Entries()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0750); err != nil {
				return err
			}
			for _, e := range entries {
				target := filepath.Join(dest, filepath.Base(e.Name))
				if _, err := os.Stat(target); err == nil {
					return errors.Errorf("%s exists", target)
				}
				fmt.Printf("unpack '%s' to '%s'\n", e.Name, target)
				if err := unpack(a, e.Name, target); err != nil {
					return err
				}
			}
			return nil
		},
	}
	unpackCmd.Flags().StringVarP(&dest, "output", "o", ".", "destination folder")
	return unpackCmd
}

func unpack(a *snapshot.Archive, name, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := a.Extract(name, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
