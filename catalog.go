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
	"strings"
)

// ReportID names a report of the catalog.
type ReportID string

// Reports of the catalog, in extraction order.
const (
	ReportPackaged             ReportID = "A"
	ReportNonPackaged          ReportID = "B"
	ReportIdentity             ReportID = "C"
	ReportAllApps              ReportID = "D"
	ReportCountPerCapability   ReportID = "E"
	ReportPrompt               ReportID = "F"
	ReportCapsPerApp           ReportID = "H"
	ReportPackagedFirstLast    ReportID = "X1"
	ReportNonPackagedFirstLast ReportID = "X2"
)

// ReportQuery is the SQL and header list of one report for one release
// family. An empty query means the report does not apply.
type ReportQuery struct {
	ID      ReportID
	Name    string
	TSVName string
	SQL     string
	// Fragments holds one SELECT per source table for union reports.
	Fragments   []string
	Headers     []string
	DateColumn  string
	OrderColumn string
}

// Empty reports whether the query is a no-op.
func (q ReportQuery) Empty() bool {
	return q.SQL == ""
}

// Reports returns every report id in extraction order.
func Reports() []ReportID {
	ids := make([]ReportID, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.id)
	}
	return ids
}

func findTemplate(id ReportID) (template, bool) {
	for _, t := range templates {
		if t.id == id {
			return t, true
		}
	}
	return template{}, false
}

// Build renders the query of report id for the release family of tag. Date
// bounds in rng are applied to the date column of every source table.
func Build(id ReportID, tag VersionTag, rng DateRange, orderByDate bool) (ReportQuery, error) {
	t, ok := findTemplate(id)
	if !ok {
		return ReportQuery{}, storeErr(ErrUnknownReport, "", "build "+string(id), nil)
	}
	fam := familyOf(tag.Release())
	if fam == 0 {
		return ReportQuery{}, storeErr(ErrUnsupportedVersion, "", "build "+string(id), fmt.Errorf("version %s", tag))
	}

	q := ReportQuery{ID: t.id, Name: t.name, TSVName: t.tsv}
	if !t.in.has(fam) {
		return q, nil
	}

	for _, c := range t.fragments[0].columns {
		if c.in.has(fam) {
			q.Headers = append(q.Headers, c.header)
		}
	}
	q.DateColumn = t.fragments[0].date

	for _, f := range t.fragments {
		q.Fragments = append(q.Fragments, f.render(fam, rng))
	}

	var order string
	switch {
	case t.orderBy != "":
		order = t.orderBy
	case !orderByDate:
	case t.orderAlias != "":
		order = t.orderAlias
	default:
		order = q.DateColumn
	}
	q.OrderColumn = order

	switch t.shape {
	case single:
		q.SQL = q.Fragments[0]
		if order != "" {
			q.SQL += "\nORDER BY " + order
		}
	case union:
		q.SQL = strings.Join(q.Fragments, "\nUNION ALL\n")
		if order != "" {
			q.SQL += "\nORDER BY " + order
		}
	case unionSum:
		q.OrderColumn = "Count"
		q.SQL = fmt.Sprintf("SELECT Capability, SUM(Count) AS Count FROM (\n%s\n)\nGROUP BY Capability\nORDER BY Count, Capability",
			strings.Join(q.Fragments, "\nUNION ALL\n"))
	}
	return q, nil
}

func (f fragment) render(fam family, rng DateRange) string {
	var b strings.Builder

	var cols []string
	for _, c := range f.columns {
		if c.in.has(fam) {
			cols = append(cols, fmt.Sprintf("%s AS %s", c.expr, c.alias))
		}
	}
	b.WriteString("SELECT\n  ")
	b.WriteString(strings.Join(cols, ",\n  "))
	b.WriteString("\nFROM " + f.from)

	for _, j := range f.joins {
		if j.in.has(fam) {
			fmt.Fprintf(&b, "\nINNER JOIN %s ON %s", j.table, j.on)
		}
	}
	if where := rng.Where(f.date); where != "" {
		b.WriteString("\n" + where)
	}

	var group []string
	for _, g := range f.groupBy {
		if g.in.has(fam) {
			group = append(group, g.expr)
		}
	}
	if len(group) > 0 {
		b.WriteString("\nGROUP BY " + strings.Join(group, ", "))
	}
	return b.String()
}

// Name returns the report name of id, or "" for ids outside the catalog.
func (id ReportID) Name() string {
	if id == ReportAmCache {
		return amcacheReportName
	}
	if t, ok := findTemplate(id); ok {
		return t.name
	}
	return ""
}
