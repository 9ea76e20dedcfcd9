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

package wleappcam

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/xwb1989/sqlparser"
)

const (
	// EmptyPlaceholder fills the single row of a report without results.
	EmptyPlaceholder = "(empty)"
	debugDir         = "DEBUG"
	logAnalysisFile  = "WAL_state_analysis.txt"
)

// Report is one named result table handed to a Reporter.
type Report struct {
	ID      ReportID
	Name    string
	TSVName string
	// Source is the store the rows were read from.
	Source  string
	Filter  string
	Headers []string
	Rows    [][]interface{}

	// Placeholder is set when Rows only holds the EmptyPlaceholder row.
	Placeholder bool
}

// Reporter presents reports, e.g. as HTML and TSV files.
type Reporter interface {
	Write(report *Report) error
}

// Extractor runs the catalog against Capability Access Manager stores.
type Extractor struct {
	Config   *Config
	Reporter Reporter
	// Fs receives the diagnostic files.
	Fs afero.Fs
	// ReportFolder is where reports are written; the DEBUG directory is
	// created next to it.
	ReportFolder string
	// Reports restricts the extraction to a subset of the catalog.
	Reports []ReportID
	// Logger defaults to the global logger.
	Logger *zerolog.Logger

	runID string
}

// NewExtractor creates an extractor with a fresh run id.
func NewExtractor(config *Config, reporter Reporter, fs afero.Fs, reportFolder string, logger zerolog.Logger) *Extractor {
	if config == nil {
		config = DefaultConfig()
	}
	runID := uuid.New().String()
	logger = logger.With().Str("run", runID).Logger()
	return &Extractor{
		Config:       config,
		Reporter:     reporter,
		Fs:           fs,
		ReportFolder: reportFolder,
		Logger:       &logger,
		runID:        runID,
	}
}

func (e *Extractor) log() *zerolog.Logger {
	if e.Logger == nil {
		return &log.Logger
	}
	return e.Logger
}

// FindStores returns every Capability Access Manager store below root.
func FindStores(root string) ([]string, error) {
	matches, err := fsdoublestar.Glob(os.DirFS(root), "**/"+StoreFilename)
	if err != nil {
		return nil, err
	}
	stores := make([]string, 0, len(matches))
	for _, match := range matches {
		stores = append(stores, filepath.Join(root, filepath.FromSlash(match)))
	}
	return stores, nil
}

// Run extracts every file named like a store. A failing store is logged
// and does not stop the others; reports already written stay valid.
func (e *Extractor) Run(files []string) error {
	var stores []string
	for _, file := range files {
		if strings.EqualFold(filepath.Base(file), StoreFilename) {
			stores = append(stores, file)
		}
	}
	if len(stores) == 0 {
		e.log().Info().Msg("No Windows Capability Access Manager data available")
		return nil
	}

	failed := 0
	for _, store := range stores {
		if err := e.ExtractStore(store); err != nil {
			failed++
			e.log().Error().Err(err).Str("store", store).Msg("extraction failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d stores failed", failed, len(stores))
	}
	return nil
}

// ExtractStore reconciles, classifies and extracts a single store.
func (e *Extractor) ExtractStore(path string) error { // nolint:gocyclo
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Config == nil {
		e.Config = DefaultConfig()
	}
	if e.runID == "" {
		e.runID = uuid.New().String()
	}
	logger := e.log().With().Str("store", path).Logger()
	logger.Info().Msg("CAM DB file found")

	if e.Config.Database.MergeWAL {
		if err := e.reconcile(path, logger); err != nil {
			return err
		}
	}

	store, err := Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	layout, err := store.Layout()
	if errors.Is(err, ErrEmptyStore) {
		logger.Info().Msg("store has no tables, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	c := ClassifyLayout(layout, ClassifyOptions{StrictLookups: e.Config.Classification.StrictLookupDrift})
	if c.Tag == Unknown {
		ev := logger.Warn().Strs("layout", LayoutLines(layout))
		if c.Diff != nil {
			ev = ev.Strs("diff", c.Diff.Lines())
		}
		ev.Msg("unrecognized database version, skipping")
		return nil
	}
	if c.Tag.Drifted() {
		logger.Warn().Str("version", c.Tag.String()).Strs("diff", c.Diff.Lines()).Msg("schema drifted from known release")
	} else {
		logger.Info().Str("version", c.Tag.String()).Msg("CAM DB version")
	}

	var errs []string
	for _, id := range e.reports() {
		if err := e.extractReport(store, c.Tag, id, logger); err != nil {
			logger.Error().Err(err).Str("report", string(id)).Msg("report failed")
			errs = append(errs, fmt.Sprintf("%s: %s", id, err))
		}
	}

	if csv := e.Config.AmCache.CSVFilename; csv != "" {
		if err := e.correlate(store, c.Tag, csv, logger); err != nil {
			logger.Error().Err(err).Str("report", string(ReportAmCache)).Msg("AmCache correlation failed")
			errs = append(errs, fmt.Sprintf("%s: %s", ReportAmCache, err))
		}
	}

	if len(errs) > 0 {
		return errors.Errorf("%d reports failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func (e *Extractor) reports() []ReportID {
	var ids []ReportID
	for _, id := range Reports() {
		switch {
		case len(e.Reports) > 0 && !containsReport(e.Reports, id):
			continue
		case id == ReportCountPerCapability && !e.Config.Compute.CountPerCategory:
			continue
		case (id == ReportPackagedFirstLast || id == ReportNonPackagedFirstLast) && !e.Config.Compute.FirstLastSeen:
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func containsReport(ids []ReportID, id ReportID) bool {
	for _, i := range ids {
		if strings.EqualFold(string(i), string(id)) {
			return true
		}
	}
	return false
}

func (e *Extractor) extractReport(store *Store, tag VersionTag, id ReportID, logger zerolog.Logger) error {
	q, err := Build(id, tag, e.Config.Range, e.Config.DateRange.OrderByDate)
	if err != nil {
		return err
	}
	if q.Empty() {
		logger.Debug().Str("report", string(id)).Msg("report does not apply to this version")
		return nil
	}
	if e.Config.Debug.ShowSQL {
		e.showSQL(q, logger)
	}

	_, rows, err := store.QueryAll(q.SQL)
	if err != nil {
		return storeErr(ErrStoreAccess, store.Path(), "query "+q.Name, err)
	}
	return e.write(&Report{
		ID:      q.ID,
		Name:    q.Name,
		TSVName: q.TSVName,
		Source:  store.Path(),
		Filter:  e.Config.Filter(),
		Headers: q.Headers,
		Rows:    rows,
	})
}

func (e *Extractor) correlate(store *Store, tag VersionTag, csv string, logger zerolog.Logger) error {
	inv, err := LoadInventory(e.Fs, csv)
	if err != nil {
		return err
	}
	defer inv.Close()
	logger.Debug().Int("entries", inv.Entries).Int("rejected", inv.Rejected).Str("csv", csv).Msg("AmCache inventory loaded")

	report, err := Correlate(store, tag, inv)
	if err != nil {
		return err
	}
	if len(report.Rows) == 0 {
		logger.Info().Str("csv", csv).Msg("no file ID found in AmCache CSV")
		return nil
	}
	return e.write(report)
}

// write hands a report to the reporter. Markup is stripped from the first
// column, leaving plain text for the reporter to escape; a report without
// rows gets a placeholder row.
func (e *Extractor) write(report *Report) error {
	if len(report.Rows) == 0 {
		row := make([]interface{}, len(report.Headers))
		for i := range row {
			row[i] = EmptyPlaceholder
		}
		report.Rows = [][]interface{}{row}
		report.Placeholder = true
	}
	policy := bluemonday.StrictPolicy()
	for _, row := range report.Rows {
		if len(row) > 0 && row[0] != nil {
			row[0] = html.UnescapeString(policy.Sanitize(fmt.Sprint(row[0])))
		}
	}
	if e.Reporter == nil {
		return nil
	}
	return e.Reporter.Write(report)
}

// DebugDir is the directory receiving diagnostic files, a sibling of the
// report folder.
func (e *Extractor) DebugDir() string {
	return filepath.Join(filepath.Dir(filepath.Clean(e.ReportFolder)), debugDir)
}

func (e *Extractor) reconcile(path string, logger zerolog.Logger) error {
	opts := ReconcileOptions{
		Diagnostics: e.Config.Database.MergeWALDebug,
		Algorithm:   e.Config.Database.DigestAlgorithm,
	}
	if e.Config.Database.SnapshotBeforeMerge {
		opts.SnapshotTo = nextUnusedName(e.Fs, filepath.Join(e.DebugDir(), "snapshot_"+e.runID+".sqlar"))
	}
	out, err := Reconcile(path, opts)
	if err != nil {
		return err
	}
	if !out.Performed {
		logger.Debug().Msg("no pending log")
		return nil
	}
	logger.Info().Bool("integrity", out.IntegrityOK).Msg("store synchronized with WAL")
	if out.Snapshot != "" {
		logger.Info().Str("snapshot", out.Snapshot).Msg("evidence snapshot written")
	}
	if opts.Diagnostics && !out.Identical {
		logger.Warn().Msg("table digests differ after checkpoint")
	}
	if len(out.Diagnostics) > 0 {
		name := nextUnusedName(e.Fs, filepath.Join(e.DebugDir(), logAnalysisFile))
		if err := e.writeLines(name, "DB state before and after WAL", out.Diagnostics); err != nil {
			logger.Error().Err(err).Str("file", name).Msg("could not write log analysis")
		}
	}
	return nil
}

func (e *Extractor) writeLines(name, description string, lines []string) error {
	if err := e.Fs.MkdirAll(filepath.Dir(name), 0750); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", description)
	fmt.Fprintf(&b, "# OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "# run: %s\n", e.runID)
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	return afero.WriteFile(e.Fs, name, []byte(b.String()), 0644)
}

const grammarNote = "-- MySQL grammar: "

// showSQL logs the query of a report and appends it, with the result of
// parsing it with the MySQL grammar, to the configured file in the DEBUG
// directory.
func (e *Extractor) showSQL(q ReportQuery, logger zerolog.Logger) {
	text := fmt.Sprintf("%s\nSQL:%s\n%s\n%s", separator, q.Name, q.SQL, separator)
	logger.Info().Msg(text)

	// best effort: the MySQL grammar rejects some valid SQLite
	lint := "ok"
	if _, err := sqlparser.Parse(q.SQL); err != nil {
		lint = err.Error()
		logger.Debug().Str("report", q.Name).Err(err).Msg("SQL not understood by the MySQL grammar")
	}
	text += "\n" + grammarNote + lint

	name := e.Config.Debug.SaveSQLToFile
	if name == "" {
		return
	}
	name = filepath.Join(e.DebugDir(), name)
	if err := e.Fs.MkdirAll(filepath.Dir(name), 0750); err != nil {
		logger.Error().Err(err).Msg("could not create DEBUG directory")
		return
	}
	f, err := e.Fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error().Err(err).Str("file", name).Msg("could not save SQL")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(text + "\n"); err != nil {
		logger.Error().Err(err).Str("file", name).Msg("could not save SQL")
	}
}

// nextUnusedName returns name, or name with the first free "_N" suffix
// before its extension.
func nextUnusedName(fs afero.Fs, name string) string {
	if ok, _ := afero.Exists(fs, name); !ok {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if ok, _ := afero.Exists(fs, candidate); !ok {
			return candidate
		}
	}
}
