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

// Package cmd provides the subcommands of the camextract command line tool.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stoewer/go-strcase"

	wleappcam "github.com/PatricioDomingues/WLEAPPCAM"
	"github.com/PatricioDomingues/WLEAPPCAM/report"
)

// ReportFolder is the folder below the output directory receiving reports.
const ReportFolder = "WindowsCapabilityAccess"

// SetupLogging writes human readable logs to stderr.
func SetupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// Extract is the camextract extract commandline subcommand
func Extract() *cobra.Command {
	var input, output, modules, config string
	var verbose bool
	extractCommand := &cobra.Command{
		Use:   "extract",
		Short: "Extract Capability Access Manager history into HTML and TSV reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			SetupLogging(verbose)

			ids, err := parseModules(modules)
			if err != nil {
				return err
			}

			fs := afero.NewOsFs()
			cfg := wleappcam.LoadConfig(fs, config)
			for _, line := range cfg.Summary() {
				log.Info().Msg(line)
			}

			files, err := inputFiles(input)
			if err != nil {
				return err
			}

			folder := filepath.Join(output, ReportFolder)
			extractor := wleappcam.NewExtractor(cfg, report.New(fs, folder), fs, folder, log.Logger)
			extractor.Reports = ids
			return extractor.Run(files)
		},
	}
	extractCommand.Flags().StringVarP(&input, "input", "i", ".", "store file or folder searched for "+wleappcam.StoreFilename)
	extractCommand.Flags().StringVarP(&output, "output", "o", ".", "output folder")
	extractCommand.Flags().StringVarP(&modules, "module", "m", "", "comma separated reports to run, e.g. 'A,B' or 'a-cam-packaged-apps'")
	extractCommand.Flags().StringVarP(&config, "config", "c", wleappcam.DefaultConfigFile, "configuration file")
	extractCommand.Flags().BoolVar(&verbose, "verbose", false, "log debug messages")
	return extractCommand
}

func inputFiles(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{input}, nil
	}
	return wleappcam.FindStores(input)
}

// parseModules resolves report ids or kebab case report names.
func parseModules(modules string) ([]wleappcam.ReportID, error) {
	if strings.TrimSpace(modules) == "" {
		return nil, nil
	}
	var ids []wleappcam.ReportID
	for _, module := range strings.Split(modules, ",") {
		module = strings.TrimSpace(module)
		found := false
		for _, id := range wleappcam.Reports() {
			if strings.EqualFold(module, string(id)) || strcase.KebabCase(module) == strcase.KebabCase(id.Name()) {
				ids = append(ids, id)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown module %s", module)
		}
	}
	return ids, nil
}

// Classify is the camextract classify commandline subcommand
func Classify() *cobra.Command {
	var strict bool
	classifyCommand := &cobra.Command{
		Use:   "classify <store>",
		Short: "Classify the schema version of a store",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := wleappcam.Introspect(args[0])
			if err != nil {
				return err
			}
			c := wleappcam.ClassifyLayout(layout, wleappcam.ClassifyOptions{StrictLookups: strict})
			fmt.Println(c.Tag)
			if c.Diff != nil {
				for _, line := range c.Diff.Lines() {
					fmt.Println(line)
				}
			}
			if c.Tag == wleappcam.Unknown {
				for _, line := range wleappcam.LayoutLines(layout) {
					fmt.Println(line)
				}
			}
			return nil
		},
	}
	classifyCommand.Flags().BoolVar(&strict, "strict", false, "treat column drift outside the history tables as unknown")
	return classifyCommand
}

// Digest is the camextract digest commandline subcommand
func Digest() *cobra.Command {
	var algorithm string
	digestCommand := &cobra.Command{
		Use:   "digest <store>",
		Short: "Compute a content digest per table",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			digests, err := wleappcam.Digest(args[0], algorithm)
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(digests))
			for table := range digests {
				tables = append(tables, table)
			}
			sort.Strings(tables)
			for _, table := range tables {
				fmt.Printf("%s\t%s\n", table, digests[table])
			}
			return nil
		},
	}
	digestCommand.Flags().StringVar(&algorithm, "algorithm", wleappcam.DefaultDigestAlgorithm, "md5, sha1, sha256 or sha512")
	return digestCommand
}

// Reconcile is the camextract reconcile commandline subcommand
func Reconcile() *cobra.Command {
	var opts wleappcam.ReconcileOptions
	reconcileCommand := &cobra.Command{
		Use:   "reconcile <store>",
		Short: "Checkpoint a pending write-ahead log into the store",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := wleappcam.Reconcile(args[0], opts)
			if err != nil {
				return err
			}
			if !out.Performed {
				fmt.Println("no pending log")
				return nil
			}
			for _, line := range out.Diagnostics {
				fmt.Println(line)
			}
			if opts.Diagnostics && !out.Identical {
				return errors.New("table digests differ after checkpoint")
			}
			return nil
		},
	}
	reconcileCommand.Flags().BoolVar(&opts.Diagnostics, "diagnostics", false, "compare row counts and digests before and after")
	reconcileCommand.Flags().StringVar(&opts.Algorithm, "algorithm", wleappcam.DefaultDigestAlgorithm, "digest algorithm")
	reconcileCommand.Flags().StringVar(&opts.SnapshotTo, "snapshot", "", "archive the store and its log here before checkpointing")
	return reconcileCommand
}

func requireOneStore(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("requires exactly one store")
	}
	for _, arg := range args {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, arg)
		}
	}
	return nil
}
