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
	"reflect"
	"sort"

	"github.com/fatih/structs"
	"github.com/imdario/mergo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// DefaultConfigFile is looked up in the working directory when no
// configuration is given.
const DefaultConfigFile = "wleap-WindowsAccess.json"

// Config is the extraction configuration. Field tags carry the dotted JSON
// paths of the configuration file.
type Config struct {
	File   string `structs:"-"`
	Loaded bool   `structs:"-"`

	DateRange struct {
		StartDate   string `structs:"start_date"`
		EndDate     string `structs:"end_date"`
		OrderByDate bool   `structs:"order_by_date"`
	} `structs:"date_range"`
	Debug struct {
		ShowSQL       bool   `structs:"show_SQL"`
		SaveSQLToFile string `structs:"save_SQL_to_file"`
	} `structs:"debug"`
	Compute struct {
		CountPerCategory bool `structs:"count_per_category"`
		FirstLastSeen    bool `structs:"first_last_seen"`
	} `structs:"compute"`
	Database struct {
		MergeWAL            bool   `structs:"merge_WAL_file_to_DB"`
		MergeWALDebug       bool   `structs:"merge_WAL_file_to_DB_debug"`
		SnapshotBeforeMerge bool   `structs:"snapshot_before_merge"`
		DigestAlgorithm     string `structs:"digest_algorithm"`
	} `structs:"database"`
	Classification struct {
		StrictLookupDrift bool `structs:"strict_lookup_drift"`
	} `structs:"classification"`
	AmCache struct {
		CSVFilename string `structs:"csv_filename"`
	} `structs:"amcache"`

	// Range holds the parsed date bounds.
	Range DateRange `structs:"-"`
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	c := &Config{File: DefaultConfigFile}
	c.Database.DigestAlgorithm = DefaultDigestAlgorithm
	return c
}

// LoadConfig reads the configuration file at path. A missing or invalid
// file yields the defaults; problems are logged and never fatal.
func LoadConfig(fs afero.Fs, path string) *Config {
	c := DefaultConfig()
	c.File = path

	b, err := afero.ReadFile(fs, path)
	if err != nil {
		log.Info().Str("config", path).Msg("no config file, using defaults")
		return c
	}
	if !gjson.ValidBytes(b) {
		log.Info().Str("config", path).Msg("invalid JSON in config file, using defaults")
		return c
	}
	flaws, err := validateSchema(b)
	if err != nil {
		log.Warn().Err(err).Str("config", path).Msg("could not validate config")
	}
	for _, flaw := range flaws {
		log.Warn().Str("config", path).Msg(flaw)
	}

	c.Loaded = true
	c.apply(b)
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		log.Warn().Err(err).Msg("could not apply config defaults")
	}

	if c.AmCache.CSVFilename != "" {
		if ok, _ := afero.Exists(fs, c.AmCache.CSVFilename); !ok {
			log.Warn().Str("csv", c.AmCache.CSVFilename).Msg("AmCache CSV file not found (specified in config)")
			c.AmCache.CSVFilename = ""
		}
	}
	c.parseRange()
	return c
}

func (c *Config) apply(b []byte) {
	str := func(path string, dst *string) {
		if v := gjson.GetBytes(b, path); v.Exists() {
			*dst = v.String()
			log.Debug().Str(path, *dst).Msg("config")
		}
	}
	flag := func(path string, dst *bool) {
		if v := gjson.GetBytes(b, path); v.Exists() {
			*dst = v.Bool()
			log.Debug().Bool(path, *dst).Msg("config")
		}
	}
	str("date_range.start_date", &c.DateRange.StartDate)
	str("date_range.end_date", &c.DateRange.EndDate)
	flag("date_range.order_by_date", &c.DateRange.OrderByDate)
	flag("debug.show_SQL", &c.Debug.ShowSQL)
	str("debug.save_SQL_to_file", &c.Debug.SaveSQLToFile)
	flag("compute.count_per_category", &c.Compute.CountPerCategory)
	flag("compute.first_last_seen", &c.Compute.FirstLastSeen)
	flag("database.merge_WAL_file_to_DB", &c.Database.MergeWAL)
	flag("database.merge_WAL_file_to_DB_debug", &c.Database.MergeWALDebug)
	flag("database.snapshot_before_merge", &c.Database.SnapshotBeforeMerge)
	str("database.digest_algorithm", &c.Database.DigestAlgorithm)
	flag("classification.strict_lookup_drift", &c.Classification.StrictLookupDrift)
	str("amcache.csv_filename", &c.AmCache.CSVFilename)
}

// parseRange converts the configured dates. An invalid date is logged and
// leaves its bound open.
func (c *Config) parseRange() {
	c.Range = DateRange{}
	var err error
	if c.Range.Start, err = parseBound(c.DateRange.StartDate); err != nil {
		log.Error().Err(err).Msg("start date ignored")
	}
	if c.Range.End, err = parseBound(c.DateRange.EndDate); err != nil {
		log.Error().Err(err).Msg("end date ignored")
	}
}

// Filter is the date filter text shown in reports.
func (c *Config) Filter() string {
	return FilterText(c.DateRange.StartDate, c.DateRange.EndDate)
}

// Summary lists every setting as "path: value", sorted by path.
func (c *Config) Summary() []string {
	status := "Loaded"
	if !c.Loaded {
		status = "Not Loaded (Using Defaults)"
	}
	lines := []string{fmt.Sprintf("Config File: '%s' (%s)", c.File, status)}

	flat := map[string]interface{}{}
	flatten("", structs.Map(c), flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, flat[k]))
	}
	if filter := c.Filter(); filter != "" {
		lines = append(lines, "  Filter Str: "+filter)
	}
	return lines
}

// flatten writes the leaves of nested to flat, keyed by their dotted path.
func flatten(prefix string, nested interface{}, flat map[string]interface{}) {
	if nested == nil {
		return
	}
	value := reflect.ValueOf(nested)
	switch value.Kind() {
	case reflect.Map:
		for _, k := range value.MapKeys() {
			key := fmt.Sprint(k.Interface())
			if prefix != "" {
				key = prefix + "." + key
			}
			flatten(key, value.MapIndex(k).Interface(), flat)
		}
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			flatten(fmt.Sprintf("%s.%d", prefix, i), value.Index(i).Interface(), flat)
		}
	default:
		flat[prefix] = nested
	}
}
