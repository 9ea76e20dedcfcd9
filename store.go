/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package wleappcam

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
)

// StoreFilename is the name of the Capability Access Manager database.
const StoreFilename = "CapabilityAccessManager.db"

// Store is an open handle on a Capability Access Manager database. A store
// returned by Open never writes to the file it was opened from.
type Store struct {
	path     string
	cursor   *sqlite.Conn
	writable bool
}

// sharedMemory counts the read-only handles per store. SQLite creates the
// -shm file of a store with a pending log even in read-only mode; the last
// handle removes it again when no -shm file existed before the first one.
var sharedMemory = struct { // nolint:gochecknoglobals
	sync.Mutex
	refs    map[string]int
	created map[string]bool
}{refs: map[string]int{}, created: map[string]bool{}}

func shmPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return abs + "-shm"
}

func acquireShm(path string) {
	shm := shmPath(path)
	sharedMemory.Lock()
	defer sharedMemory.Unlock()
	if sharedMemory.refs[shm] == 0 {
		_, err := os.Stat(shm)
		sharedMemory.created[shm] = os.IsNotExist(err)
	}
	sharedMemory.refs[shm]++
}

func releaseShm(path string) error {
	shm := shmPath(path)
	sharedMemory.Lock()
	defer sharedMemory.Unlock()
	sharedMemory.refs[shm]--
	if sharedMemory.refs[shm] > 0 {
		return nil
	}
	created := sharedMemory.created[shm]
	delete(sharedMemory.refs, shm)
	delete(sharedMemory.created, shm)
	if !created {
		return nil
	}
	if err := os.Remove(shm); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open opens a store read-only.
func Open(path string) (*Store, error) {
	uri, err := storeURI(path, "ro")
	if err != nil {
		return nil, storeErr(ErrStoreAccess, path, "open", err)
	}
	acquireShm(path)
	conn, err := sqlite.OpenConn(uri, sqlite.SQLITE_OPEN_READONLY|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		releaseShm(path) // nolint:errcheck
		return nil, storeErr(ErrStoreAccess, path, "open", err)
	}
	return &Store{path: path, cursor: conn}, nil
}

// openWritable opens an existing store for checkpointing. The file is never
// created.
func openWritable(path string) (*Store, error) {
	uri, err := storeURI(path, "rw")
	if err != nil {
		return nil, err
	}
	conn, err := sqlite.OpenConn(uri, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cursor: conn, writable: true}, nil
}

func storeURI(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=" + mode}
	return u.String(), nil
}

// Path returns the file the store was opened from.
func (store *Store) Path() string {
	return store.path
}

// Close releases the handle. Closing the last read-only handle of a store
// removes a -shm file that was created while it was open.
func (store *Store) Close() error {
	if store.cursor == nil {
		return nil
	}
	err := store.cursor.Close()
	store.cursor = nil
	if !store.writable {
		if rerr := releaseShm(store.path); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return storeErr(ErrStoreAccess, store.path, "close", err)
	}
	return nil
}

// Query runs a statement and calls fn for every result row.
func (store *Store) Query(query string, fn func(row Row) error) error {
	err := store.step(query, func(stmt *sqlite.Stmt) error {
		return fn(Row{stmt: stmt})
	})
	if err != nil {
		return storeErr(ErrStoreAccess, store.path, "query", err)
	}
	return nil
}

// QueryAll runs a statement and returns the column names and all rows.
func (store *Store) QueryAll(query string) (columns []string, rows [][]interface{}, err error) {
	err = store.Query(query, func(row Row) error {
		if columns == nil {
			columns = row.Columns()
		}
		rows = append(rows, row.Values())
		return nil
	})
	return columns, rows, err
}

func (store *Store) step(query string, fn func(stmt *sqlite.Stmt) error) (err error) {
	stmt, _, err := store.cursor.PrepareTransient(query)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("could not prepare statement %s", query))
	}
	defer func() {
		if ferr := stmt.Finalize(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for {
		if hasRow, err := stmt.Step(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("could not exec statement %s", query))
		} else if !hasRow {
			break
		}
		if fn == nil {
			continue
		}
		if err := fn(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (store *Store) exec(query string) error {
	return store.step(query, nil)
}

// pragma returns the first column of every row a pragma produces.
func (store *Store) pragma(name string) ([]string, error) {
	var values []string
	err := store.step("PRAGMA "+name, func(stmt *sqlite.Stmt) error {
		values = append(values, stmt.ColumnText(0))
		return nil
	})
	return values, err
}

// Row is the current result row of a query. It is only valid inside the
// callback it was passed to.
type Row struct {
	stmt *sqlite.Stmt
}

// Len returns the number of result columns.
func (r Row) Len() int { return r.stmt.ColumnCount() }

// Columns returns the result column names.
func (r Row) Columns() []string {
	columns := make([]string, r.stmt.ColumnCount())
	for i := range columns {
		columns[i] = r.stmt.ColumnName(i)
	}
	return columns
}

// Value returns column i as int64, float64, string, []byte or nil.
func (r Row) Value(i int) interface{} {
	switch r.stmt.ColumnType(i) {
	case sqlite.SQLITE_INTEGER:
		return r.stmt.ColumnInt64(i)
	case sqlite.SQLITE_FLOAT:
		return r.stmt.ColumnFloat(i)
	case sqlite.SQLITE_TEXT:
		return r.stmt.ColumnText(i)
	case sqlite.SQLITE_BLOB:
		b := make([]byte, r.stmt.ColumnLen(i))
		r.stmt.ColumnBytes(i, b)
		return b
	}
	return nil
}

// Values returns all columns of the row.
func (r Row) Values() []interface{} {
	values := make([]interface{}, r.stmt.ColumnCount())
	for i := range values {
		values[i] = r.Value(i)
	}
	return values
}

// Text returns column i as text.
func (r Row) Text(i int) string { return r.stmt.ColumnText(i) }

// Int64 returns column i as an integer.
func (r Row) Int64(i int) int64 { return r.stmt.ColumnInt64(i) }
