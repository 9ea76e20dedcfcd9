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
	"sort"
	"strings"
)

// VersionTag is the outcome of classifying a store.
type VersionTag int

// The numeric values are stable and appear in logs.
const (
	Unknown VersionTag = iota
	W23H2
	W23H2Drifted
	W24H2
	W24H2Drifted
)

func (v VersionTag) String() string {
	switch v {
	case W23H2:
		return "W23H2"
	case W23H2Drifted:
		return "W23H2 (drifted)"
	case W24H2:
		return "W24H2"
	case W24H2Drifted:
		return "W24H2 (drifted)"
	}
	return "Unknown"
}

// Release returns the release family whose queries serve this tag.
func (v VersionTag) Release() Release {
	switch v {
	case W23H2, W23H2Drifted:
		return Release23H2
	case W24H2, W24H2Drifted:
		return Release24H2
	}
	return ReleaseNone
}

// Drifted reports whether the table count matched but the columns did not.
func (v VersionTag) Drifted() bool {
	return v == W23H2Drifted || v == W24H2Drifted
}

func tagFor(r Release, drifted bool) VersionTag {
	switch r {
	case Release23H2:
		if drifted {
			return W23H2Drifted
		}
		return W23H2
	case Release24H2:
		if drifted {
			return W24H2Drifted
		}
		return W24H2
	}
	return Unknown
}

// ColumnChange is a table present in both signatures with a different column
// count.
type ColumnChange struct {
	Table    string
	Expected int
	Actual   int
}

// Diff itemizes how a signature differs from a known one. Table names are
// lower case.
type Diff struct {
	Added   []string
	Removed []string
	Changed []ColumnChange
}

// Empty reports whether both signatures agree.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Tables returns every table named by the diff.
func (d Diff) Tables() []string {
	names := append(append([]string{}, d.Added...), d.Removed...)
	for _, c := range d.Changed {
		names = append(names, c.Table)
	}
	sort.Strings(names)
	return names
}

// Lines renders the diff for diagnostics.
func (d Diff) Lines() []string {
	var lines []string
	if len(d.Added) > 0 {
		lines = append(lines, "New keys: "+strings.Join(d.Added, ", "))
	}
	if len(d.Removed) > 0 {
		lines = append(lines, "Removed Keys: "+strings.Join(d.Removed, ", "))
	}
	if len(d.Changed) > 0 {
		changed := make([]string, len(d.Changed))
		for i, c := range d.Changed {
			changed[i] = fmt.Sprintf("%s (%d -> %d)", c.Table, c.Expected, c.Actual)
		}
		lines = append(lines, "Keys with changed values: "+strings.Join(changed, ", "))
	}
	return lines
}

// CompareSignatures compares current against expected, ignoring the case of
// table names.
func CompareSignatures(current, expected Signature) Diff {
	cur := lowerKeys(current)
	exp := lowerKeys(expected)

	var d Diff
	for name, count := range cur {
		want, ok := exp[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case want != count:
			d.Changed = append(d.Changed, ColumnChange{Table: name, Expected: want, Actual: count})
		}
	}
	for name := range exp {
		if _, ok := cur[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Table < d.Changed[j].Table })
	return d
}

func lowerKeys(sig Signature) map[string]int {
	m := make(map[string]int, len(sig))
	for k, v := range sig {
		m[strings.ToLower(k)] = v
	}
	return m
}

// ClassifyOptions tunes drift tolerance.
type ClassifyOptions struct {
	// StrictLookups classifies a store as Unknown when the drift touches a
	// lookup table that the report joins depend on.
	StrictLookups bool
}

// Classification is the result of classifying a store.
type Classification struct {
	Tag VersionTag
	// Diff is set for drifted tags.
	Diff *Diff
	// Layout is the raw store layout, set for Unknown when it was available.
	Layout Layout
}

// Classify matches a signature against the known releases, tolerating column
// drift.
func Classify(sig Signature) Classification {
	return ClassifyWith(sig, ClassifyOptions{})
}

// ClassifyWith matches a signature against the known releases. The table
// count picks the release before any column is compared; a count that
// matches no release is never guessed.
func ClassifyWith(sig Signature, opts ClassifyOptions) Classification {
	for _, release := range KnownReleases() {
		expected, _ := KnownSignature(release)
		if len(sig) != len(expected) {
			continue
		}

		d := CompareSignatures(sig, expected)
		if d.Empty() {
			return Classification{Tag: tagFor(release, false)}
		}
		if opts.StrictLookups && !historyOnly(d) {
			return Classification{Tag: Unknown, Diff: &d}
		}
		return Classification{Tag: tagFor(release, true), Diff: &d}
	}
	return Classification{Tag: Unknown}
}

// ClassifyLayout classifies a full layout and keeps the layout for
// diagnostics when the store is not recognized.
func ClassifyLayout(l Layout, opts ClassifyOptions) Classification {
	c := ClassifyWith(l.Signature(), opts)
	if c.Tag == Unknown {
		c.Layout = l
	}
	return c
}

func historyOnly(d Diff) bool {
	if len(d.Added) > 0 || len(d.Removed) > 0 {
		return false
	}
	for _, c := range d.Changed {
		if !historyTables[c.Table] {
			return false
		}
	}
	return true
}

// LayoutLines renders a layout one table per line for diagnostics.
func LayoutLines(l Layout) []string {
	lines := make([]string, 0, len(l))
	for _, table := range l.Tables() {
		lines = append(lines, fmt.Sprintf("%s (%d): %s", table, len(l[table]), strings.Join(l[table], ", ")))
	}
	return lines
}
