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

	"crawshaw.io/sqlite"
)

func isUserTable(name string) bool {
	return !strings.HasPrefix(strings.ToLower(name), "sqlite_")
}

// Tables returns the sorted names of all user tables.
func (store *Store) Tables() ([]string, error) {
	var names []string
	err := store.step("SELECT name FROM sqlite_master WHERE type='table'", func(stmt *sqlite.Stmt) error {
		name := stmt.GetText("name")
		if isUserTable(name) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(ErrStoreAccess, store.path, "list tables", err)
	}
	sort.Strings(names)
	return names, nil
}

// Layout returns every user table with its sorted column names. A store
// without user tables yields ErrEmptyStore.
func (store *Store) Layout() (Layout, error) {
	names, err := store.Tables()
	if err != nil {
		return nil, err
	}

	tables := newTableMap()
	for _, name := range names {
		tables.addTable(name)
		err := store.step(fmt.Sprintf("PRAGMA table_info (\"%s\")", quoteIdent(name)), func(stmt *sqlite.Stmt) error {
			tables.add(name, stmt.GetText("name"))
			return nil
		})
		if err != nil {
			return nil, storeErr(ErrStoreAccess, store.path, "table info "+name, err)
		}
	}

	if tables.len() == 0 {
		return Layout{}, storeErr(ErrEmptyStore, store.path, "introspect", nil)
	}
	return tables.layout(), nil
}

// Signature returns the column count of every user table.
func (store *Store) Signature() (Signature, error) {
	l, err := store.Layout()
	if err != nil {
		return nil, err
	}
	return l.Signature(), nil
}

// Introspect opens the store at path read-only and returns its layout.
func Introspect(path string) (Layout, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Layout()
}

// RowCounts returns the number of rows of every user table.
func (store *Store) RowCounts() (map[string]int64, error) {
	names, err := store.Tables()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(names))
	for _, name := range names {
		err := store.step(fmt.Sprintf("SELECT COUNT(*) FROM \"%s\"", quoteIdent(name)), func(stmt *sqlite.Stmt) error {
			counts[name] = stmt.ColumnInt64(0)
			return nil
		})
		if err != nil {
			return nil, storeErr(ErrStoreAccess, store.path, "count "+name, err)
		}
	}
	return counts, nil
}

func quoteIdent(name string) string {
	return strings.ReplaceAll(name, `"`, `""`)
}
