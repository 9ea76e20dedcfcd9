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
	"sort"
)

// tableMap collects the columns seen per table while introspecting.
type tableMap struct {
	tables map[string]map[string]bool
}

func newTableMap() *tableMap {
	return &tableMap{tables: map[string]map[string]bool{}}
}

func (tm *tableMap) addTable(name string) {
	if _, ok := tm.tables[name]; !ok {
		tm.tables[name] = map[string]bool{}
	}
}

func (tm *tableMap) add(name, column string) {
	tm.addTable(name)
	tm.tables[name][column] = true
}

func (tm *tableMap) len() int {
	return len(tm.tables)
}

// layout returns the collected tables with sorted column names.
func (tm *tableMap) layout() Layout {
	l := make(Layout, len(tm.tables))
	for name, columns := range tm.tables {
		names := make([]string, 0, len(columns))
		for column := range columns {
			names = append(names, column)
		}
		sort.Strings(names)
		l[name] = names
	}
	return l
}
