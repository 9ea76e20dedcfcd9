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

// Package snapshot preserves evidence files in a SQLite archive (the sqlar
// format understood by "sqlite3 -A") before anything modifies them.
package snapshot

import (
	"compress/zlib"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const schema = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);
CREATE TABLE IF NOT EXISTS sqlar_digest(
  name TEXT PRIMARY KEY,
  sha256 TEXT
);`

const spoolSize = 32 << 20

// ErrArchiveExists is returned by Create for an existing file.
var ErrArchiveExists = fmt.Errorf("archive already exists")

// Archive is a SQLite archive of preserved files.
type Archive struct {
	path   string
	cursor *sqlite.Conn
}

// Entry describes an archived file.
type Entry struct {
	Name   string
	Mode   os.FileMode
	MTime  int64
	Size   int64
	SHA256 string
}

// Create creates a new archive. An existing file is never overwritten.
func Create(path string) (*Archive, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrap(ErrArchiveExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	a := &Archive{path: path, cursor: conn}
	if err := sqlitex.ExecScript(conn, schema); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not create sqlar table")
	}
	return a, nil
}

// Open opens an existing archive read-only.
func Open(path string) (*Archive, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READONLY|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	return &Archive{path: path, cursor: conn}, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	return a.cursor.Close()
}

// Add stores a file from fs under its base name.
func (a *Archive) Add(fs afero.Fs, name string) error { // nolint:funlen
	info, err := fs.Stat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", name)
	}

	buf, teardown := newSpool(spoolSize)
	defer teardown()

	f, err := fs.Open(name)
	if err != nil {
		return err
	}
	digest := sha256.New()
	compressor := zlib.NewWriter(buf)
	size, err := io.Copy(io.MultiWriter(compressor, digest), f)
	f.Close()
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("could not read %s", name))
	}
	if err := compressor.Close(); err != nil {
		return err
	}

	// sqlar stores content uncompressed when compression does not pay off
	var content io.Reader = buf
	length := buf.Size()
	if length >= size {
		raw, err := fs.Open(name)
		if err != nil {
			return err
		}
		defer raw.Close()
		content, length = raw, size
	} else if err := buf.Rewind(); err != nil {
		return err
	}

	entry := filepath.Base(name)
	stmt := a.cursor.Prep(`INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, $sz, $data)`)
	stmt.SetText("$name", entry)
	stmt.SetInt64("$mode", int64(info.Mode()))
	stmt.SetInt64("$mtime", info.ModTime().Unix())
	stmt.SetInt64("$sz", size)
	stmt.SetZeroBlob("$data", length)
	if err := exec(stmt); err != nil {
		return errors.Wrap(err, fmt.Sprintf("could not insert %s", entry))
	}

	blob, err := a.cursor.OpenBlob("", "sqlar", "data", a.cursor.LastInsertRowID(), true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(blob, content); err != nil {
		blob.Close()
		return err
	}
	if err := blob.Close(); err != nil {
		return err
	}

	stmt = a.cursor.Prep(`INSERT INTO sqlar_digest (name, sha256) VALUES ($name, $sha256)`)
	stmt.SetText("$name", entry)
	stmt.SetText("$sha256", hex.EncodeToString(digest.Sum(nil)))
	return exec(stmt)
}

// Entries lists the archived files.
func (a *Archive) Entries() ([]Entry, error) {
	stmt := a.cursor.Prep(`SELECT sqlar.name, mode, mtime, sz, IFNULL(sqlar_digest.sha256, '') AS sha256
FROM sqlar LEFT JOIN sqlar_digest ON sqlar.name = sqlar_digest.name ORDER BY sqlar.name`)

	var entries []Entry
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		entries = append(entries, Entry{
			Name:   stmt.GetText("name"),
			Mode:   os.FileMode(stmt.GetInt64("mode")),
			MTime:  stmt.GetInt64("mtime"),
			Size:   stmt.GetInt64("sz"),
			SHA256: stmt.GetText("sha256"),
		})
	}
	return entries, stmt.Reset()
}

// Extract writes the original content of an archived file to w.
func (a *Archive) Extract(name string, w io.Writer) error {
	stmt := a.cursor.Prep(`SELECT rowid, sz, length(data) AS len FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if !hasRow {
		stmt.Reset()
		return errors.Wrap(os.ErrNotExist, name)
	}
	rowid, size, length := stmt.GetInt64("rowid"), stmt.GetInt64("sz"), stmt.GetInt64("len")
	if err := stmt.Reset(); err != nil {
		return err
	}

	blob, err := a.cursor.OpenBlob("", "sqlar", "data", rowid, false)
	if err != nil {
		return err
	}
	defer blob.Close()

	var r io.Reader = blob
	if length != size {
		zr, err := zlib.NewReader(blob)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}
	_, err = io.Copy(w, r)
	return err
}

// Verify re-reads every entry and compares it with its recorded digest.
func (a *Archive) Verify() ([]string, error) {
	entries, err := a.Entries()
	if err != nil {
		return nil, err
	}
	var flaws []string
	for _, e := range entries {
		h := sha256.New()
		if err := a.Extract(e.Name, h); err != nil {
			return nil, err
		}
		if got := hex.EncodeToString(h.Sum(nil)); e.SHA256 != "" && got != e.SHA256 {
			flaws = append(flaws, fmt.Sprintf("%s: digest %s, recorded %s", e.Name, got, e.SHA256))
		}
	}
	return flaws, nil
}

func exec(stmt *sqlite.Stmt) error {
	_, err := stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Reset()
}
