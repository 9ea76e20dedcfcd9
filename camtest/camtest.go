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

// Package camtest builds Capability Access Manager stores for tests.
package camtest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Filename is the name the operating system gives the store.
const Filename = "CapabilityAccessManager.db"

// Variant selects the table set of a fixture.
type Variant int

// Fixture variants.
const (
	W23H2 Variant = iota
	W24H2
)

// FileHash is the SHA1 part of the file identity in every fixture.
const FileHash = "da39a3ee5e6b4b0d3255bfef95601890afd80709"

// FileID is the FileIDs value of every fixture: a four character prefix
// followed by FileHash.
const FileID = "0000" + FileHash

var lookups = []string{"BinaryFullPaths", "Capabilities", "FileIDs", "PackageFamilyNames", "ProgramIDs", "Users"}

// Tables returns the DDL of each table of a variant.
func Tables(v Variant) map[string]string {
	tables := map[string]string{}
	names := lookups
	if v == W24H2 {
		names = append([]string{"AccessGUIDs", "AppNames", "ServiceNames"}, lookups...)
	}
	for _, name := range names {
		tables[name] = fmt.Sprintf(`CREATE TABLE %s (ID INTEGER PRIMARY KEY, StringValue TEXT)`, name)
	}

	extra := ""
	if v == W24H2 {
		extra = "AccessGUID INTEGER, AppName INTEGER, Label TEXT, "
	}
	tables["PackagedUsageHistory"] = `CREATE TABLE PackagedUsageHistory (ID INTEGER PRIMARY KEY, ` +
		`UserSid INTEGER, Capability INTEGER, PackageFamilyName INTEGER, ` + extra +
		`LastUsedTimeStart INTEGER, LastUsedTimeStop INTEGER, AccessBlocked INTEGER)`
	if v == W24H2 {
		extra += "ServiceName INTEGER, "
	}
	tables["NonPackagedUsageHistory"] = `CREATE TABLE NonPackagedUsageHistory (ID INTEGER PRIMARY KEY, ` +
		`UserSid INTEGER, Capability INTEGER, BinaryFullPath INTEGER, FileID INTEGER, ProgramID INTEGER, ` + extra +
		`LastUsedTimeStart INTEGER, LastUsedTimeStop INTEGER, AccessBlocked INTEGER)`
	tables["NonPackagedIdentityRelationship"] = `CREATE TABLE NonPackagedIdentityRelationship (ID INTEGER PRIMARY KEY, ` +
		`LastObservedTime INTEGER, BinaryFullPath INTEGER, ProgramID INTEGER, FileID INTEGER)`
	if v == W24H2 {
		tables["NonPackagedGlobalPromptHistory"] = `CREATE TABLE NonPackagedGlobalPromptHistory (ID INTEGER PRIMARY KEY, ` +
			`UserSid INTEGER, Capability INTEGER, ProgramID INTEGER, FileID INTEGER, ShownTime INTEGER)`
	}
	return tables
}

// DDL returns the schema script of a variant.
func DDL(v Variant) string {
	tables := Tables(v)
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(tables[name])
		b.WriteString(";\n")
	}
	return b.String()
}

// FileTime converts a UTC time to FILETIME ticks.
func FileTime(year int, month time.Month, day, hour, min, sec int) int64 {
	t := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	return (t.Unix() + 11644473600) * 10000000
}

// Sample timestamps.
var (
	CameraStart  = FileTime(2024, 1, 10, 10, 0, 0)
	CameraStop   = FileTime(2024, 1, 10, 10, 5, 0)
	MicStop      = FileTime(2024, 2, 1, 8, 0, 0)
	ZoomMicStart = FileTime(2024, 1, 15, 9, 0, 0)
	ZoomMicStop  = FileTime(2024, 1, 15, 9, 30, 0)
	ZoomCamStart = FileTime(2024, 3, 1, 12, 0, 0)
	ZoomCamStop  = FileTime(2024, 3, 1, 12, 10, 0)
	ZoomMicLast  = FileTime(2024, 3, 5, 18, 0, 0)
	Observed     = FileTime(2024, 1, 15, 8, 58, 0)
	Shown        = FileTime(2024, 1, 15, 8, 59, 0)
)

// Row counts of the sample data.
const (
	PackagedRows    = 2
	NonPackagedRows = 3
	IdentityRows    = 1
	PromptRows      = 2
)

// Sample returns the statements filling a variant with sample rows: one
// packaged app (camera) and one desktop app (zoom) using webcam and
// microphone.
func Sample(v Variant) []string {
	stmts := []string{
		`INSERT INTO Users VALUES (1, 'S-1-5-21-1000')`,
		`INSERT INTO Capabilities VALUES (1, 'webcam'), (2, 'microphone'), (3, 'location')`,
		`INSERT INTO PackageFamilyNames VALUES (1, 'Microsoft.WindowsCamera_8wekyb3d8bbwe')`,
		`INSERT INTO BinaryFullPaths VALUES (1, 'C:#Program Files#Zoom#bin#Zoom.exe')`,
		`INSERT INTO ProgramIDs VALUES (1, '0000f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0')`,
		fmt.Sprintf(`INSERT INTO FileIDs VALUES (1, '%s')`, FileID),
		fmt.Sprintf(`INSERT INTO NonPackagedIdentityRelationship (ID, LastObservedTime, BinaryFullPath, ProgramID, FileID) VALUES (1, %d, 1, 1, 1)`, Observed),
	}
	if v == W23H2 {
		return append(stmts,
			fmt.Sprintf(`INSERT INTO PackagedUsageHistory (ID, UserSid, Capability, PackageFamilyName, LastUsedTimeStart, LastUsedTimeStop, AccessBlocked) VALUES
 (1, 1, 1, 1, %d, %d, 0), (2, 1, 2, 1, 0, %d, 1)`, CameraStart, CameraStop, MicStop),
			fmt.Sprintf(`INSERT INTO NonPackagedUsageHistory (ID, UserSid, Capability, BinaryFullPath, FileID, ProgramID, LastUsedTimeStart, LastUsedTimeStop, AccessBlocked) VALUES
 (1, 1, 2, 1, 1, 1, %d, %d, 0), (2, 1, 1, 1, 1, 1, %d, %d, 0), (3, 1, 2, 1, 1, 1, 0, %d, 0)`,
				ZoomMicStart, ZoomMicStop, ZoomCamStart, ZoomCamStop, ZoomMicLast),
		)
	}
	return append(stmts,
		`INSERT INTO AppNames VALUES (1, 'Camera'), (2, 'Zoom')`,
		fmt.Sprintf(`INSERT INTO PackagedUsageHistory (ID, UserSid, Capability, PackageFamilyName, AppName, Label, LastUsedTimeStart, LastUsedTimeStop, AccessBlocked) VALUES
 (1, 1, 1, 1, 1, 'Camera', %d, %d, 0), (2, 1, 2, 1, 1, 'Camera', 0, %d, 1)`, CameraStart, CameraStop, MicStop),
		fmt.Sprintf(`INSERT INTO NonPackagedUsageHistory (ID, UserSid, Capability, BinaryFullPath, FileID, ProgramID, AppName, LastUsedTimeStart, LastUsedTimeStop, AccessBlocked) VALUES
 (1, 1, 2, 1, 1, 1, 2, %d, %d, 0), (2, 1, 1, 1, 1, 1, 2, %d, %d, 0), (3, 1, 2, 1, 1, 1, 2, 0, %d, 0)`,
			ZoomMicStart, ZoomMicStop, ZoomCamStart, ZoomCamStop, ZoomMicLast),
		fmt.Sprintf(`INSERT INTO NonPackagedGlobalPromptHistory (ID, UserSid, Capability, ProgramID, FileID, ShownTime) VALUES
 (1, 1, 2, 1, 1, %d), (2, 1, 1, 1, 1, 0)`, Shown),
	)
}

// NewStore writes a sample store of variant v to dir and returns its path.
func NewStore(t testing.TB, dir string, v Variant) string {
	t.Helper()
	return NewCustomStore(t, dir, DDL(v), Sample(v)...)
}

// NewCustomStore writes a store with the given schema and statements.
func NewCustomStore(t testing.TB, dir, ddl string, stmts ...string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, Filename)
	conn := open(t, path)
	defer conn.Close()

	if err := sqlitex.ExecScript(conn, ddl); err != nil {
		t.Fatal(err)
	}
	for _, stmt := range stmts {
		if err := sqlitex.ExecTransient(conn, stmt, nil); err != nil {
			t.Fatalf("%s: %s", stmt, err)
		}
	}
	return path
}

// Exec runs statements against an existing store, e.g. to drift its schema.
func Exec(t testing.TB, path string, stmts ...string) {
	t.Helper()
	conn := open(t, path)
	defer conn.Close()
	for _, stmt := range stmts {
		if err := sqlitex.ExecTransient(conn, stmt, nil); err != nil {
			t.Fatalf("%s: %s", stmt, err)
		}
	}
}

// NewStoreWithPendingLog writes a sample store to dir whose write-ahead log
// still holds the given statements, as left behind by a system that did not
// checkpoint before the image was taken.
func NewStoreWithPendingLog(t testing.TB, dir string, v Variant, pending ...string) string {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "scratch")
	src := NewStore(t, scratch, v)

	conn := open(t, src)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA wal_autocheckpoint=0"} {
		if err := sqlitex.ExecTransient(conn, stmt, nil); err != nil {
			conn.Close()
			t.Fatal(err)
		}
	}
	for _, stmt := range pending {
		if err := sqlitex.ExecTransient(conn, stmt, nil); err != nil {
			conn.Close()
			t.Fatalf("%s: %s", stmt, err)
		}
	}

	// copy while the writer is open, closing it would checkpoint the log
	if err := os.MkdirAll(dir, 0750); err != nil {
		conn.Close()
		t.Fatal(err)
	}
	dst := filepath.Join(dir, Filename)
	for _, suffix := range []string{"", "-wal"} {
		if err := copyFile(src+suffix, dst+suffix); err != nil {
			conn.Close()
			t.Fatal(err)
		}
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	return dst
}

func open(t testing.TB, path string) *sqlite.Conn {
	t.Helper()
	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
