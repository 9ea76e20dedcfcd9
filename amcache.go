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
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const inventoryTable = "amcache_data"

// ReportAmCache is the side extraction correlating file identities with an
// AmCache inventory.
const (
	ReportAmCache        ReportID = "G"
	amcacheReportName             = "G_[IDs_in_amcache]"
	amcacheReportTSVName          = "G_CAM_ID_in_amcache"
)

// AmCacheHeaders are the headers of the correlation report.
var AmCacheHeaders = []string{ // nolint:gochecknoglobals
	"LastWrite", "FullPath", "SHA1", "LinkDate", "Size", "Name", "ProgramId", "Version", "ProductVersion",
}

// amcacheColumns are the inventory columns behind AmCacheHeaders.
var amcacheColumns = []string{ // nolint:gochecknoglobals
	"FileKeyLastWriteTimestamp", "FullPath", "SHA1", "LinkDate", "Size", "Name", "ProgramId", "Version", "ProductVersion",
}

// Inventory is an AmCache CSV export (the unassociated file entries written
// by AmcacheParser) loaded into an in-memory table. Close releases it.
type Inventory struct {
	Path     string
	Columns  []string
	Entries  int
	Rejected int
	conn     *sqlite.Conn
}

// LoadInventory parses an AmCache CSV. The header row fixes the number of
// fields; rows with another count are rejected and counted.
func LoadInventory(fs afero.Fs, path string) (*Inventory, error) { // nolint:funlen
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "could not read header of %s", path)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if header[i] == "" {
			header[i] = fmt.Sprintf("column%d", i+1)
		}
	}

	conn, err := sqlite.OpenConn(":memory:", sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	inv := &Inventory{Path: path, Columns: header, conn: conn}

	defs := make([]string, len(header))
	params := make([]string, len(header))
	for i, col := range header {
		defs[i] = `"` + quoteIdent(col) + `" TEXT`
		params[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", inventoryTable, strings.Join(defs, ", "))
	if err := sqlitex.ExecTransient(conn, create, nil); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not create inventory table")
	}

	if err := sqlitex.ExecTransient(conn, "BEGIN", nil); err != nil {
		conn.Close()
		return nil, err
	}
	insert := conn.Prep(fmt.Sprintf("INSERT INTO %s VALUES (%s)", inventoryTable, strings.Join(params, ", ")))
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				inv.Rejected++
				continue
			}
			conn.Close()
			return nil, err
		}
		if len(record) != len(header) {
			inv.Rejected++
			continue
		}
		for i, value := range record {
			insert.BindText(i+1, strings.TrimSpace(value))
		}
		if _, err := insert.Step(); err != nil {
			conn.Close()
			return nil, err
		}
		if err := insert.Reset(); err != nil {
			conn.Close()
			return nil, err
		}
		inv.Entries++
	}
	if err := sqlitex.ExecTransient(conn, "COMMIT", nil); err != nil {
		conn.Close()
		return nil, err
	}
	return inv, nil
}

// Close releases the inventory table.
func (inv *Inventory) Close() error {
	return inv.conn.Close()
}

func (inv *Inventory) has(column string) bool {
	for _, c := range inv.Columns {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

// Lookup returns the inventory rows whose SHA1 equals hash, ignoring case,
// with the columns of AmCacheHeaders. Columns missing from the CSV are empty.
func (inv *Inventory) Lookup(hash string) ([][]interface{}, error) {
	if !inv.has("SHA1") {
		return nil, fmt.Errorf("%s has no SHA1 column", inv.Path)
	}
	selects := make([]string, len(amcacheColumns))
	for i, col := range amcacheColumns {
		if inv.has(col) {
			selects[i] = `"` + quoteIdent(col) + `"`
		} else {
			selects[i] = "''"
		}
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "SHA1" = ? COLLATE NOCASE`, strings.Join(selects, ", "), inventoryTable)

	var rows [][]interface{}
	err := sqlitex.ExecTransient(inv.conn, query, func(stmt *sqlite.Stmt) error {
		row := make([]interface{}, stmt.ColumnCount())
		for i := range row {
			row[i] = stmt.ColumnText(i)
		}
		rows = append(rows, row)
		return nil
	}, hash)
	return rows, err
}

// StripFileIDPrefix removes the four character prefix that precedes the
// SHA1 of a file identity. Values of four characters or less yield "".
func StripFileIDPrefix(fileID string) string {
	if len(fileID) <= 4 {
		return ""
	}
	return fileID[4:]
}

// SplitFileIDToken splits a composite token of twelve or more characters
// into its first four, second to last four and last four characters and
// the remainder between them.
func SplitFileIDToken(token string) (blocks [3]string, rest string, ok bool) {
	if len(token) < 12 {
		return blocks, "", false
	}
	n := len(token)
	blocks = [3]string{token[:4], token[n-8 : n-4], token[n-4:]}
	return blocks, token[4 : n-8], true
}

// Correlate looks up the file identities of the identity relationship
// report in inv and returns the matching inventory rows. Only matched
// identities are reported.
func Correlate(store *Store, tag VersionTag, inv *Inventory) (*Report, error) {
	q, err := Build(ReportIdentity, tag, DateRange{}, false)
	if err != nil {
		return nil, err
	}
	fileIDColumn := -1
	for i, h := range q.Headers {
		if h == "File_ID_hash" {
			fileIDColumn = i
		}
	}
	if fileIDColumn < 0 {
		return nil, errors.Errorf("report %s has no file identity column", q.ID)
	}

	var tokens []string
	seen := map[string]bool{}
	err = store.Query(q.SQL, func(row Row) error {
		token := StripFileIDPrefix(row.Text(fileIDColumn))
		key := strings.ToLower(token)
		if token != "" && !seen[key] {
			seen[key] = true
			tokens = append(tokens, token)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(ErrStoreAccess, store.Path(), "query "+string(q.ID), err)
	}

	report := &Report{
		ID:      ReportAmCache,
		Name:    amcacheReportName,
		TSVName: amcacheReportTSVName,
		Source:  store.Path(),
		Filter:  fmt.Sprintf("[]; AmCache CSV='%s' (%d entries)", inv.Path, inv.Entries),
		Headers: AmCacheHeaders,
	}
	for _, token := range tokens {
		rows, err := inv.Lookup(token)
		if err != nil {
			return nil, err
		}
		report.Rows = append(report.Rows, rows...)
	}
	return report, nil
}
