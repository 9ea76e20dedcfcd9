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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatricioDomingues/WLEAPPCAM/camtest"
)

func setup(t *testing.T) string {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dir, err := ioutil.TempDir("", name)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func cleanup(t *testing.T, directories ...string) {
	for _, directory := range directories {
		if err := os.RemoveAll(directory); err != nil {
			t.Fatal(err)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"sample", camtest.NewStore(t, filepath.Join(dir, "sample"), camtest.W23H2), nil},
		{"missing", filepath.Join(dir, "missing", StoreFilename), ErrStoreAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.path)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Open() error = %v, want %v", err, tt.wantErr)
				_, statErr := os.Stat(tt.path)
				assert.True(t, os.IsNotExist(statErr), "Open() must not create a store")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, store.Path())
			assert.NoError(t, store.Close())
			assert.NoError(t, store.Close())
		})
	}
}

func TestStore_readOnly(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W24H2)
	before, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	store, err := Open(path)
	require.NoError(t, err)

	err = store.exec("DELETE FROM Users")
	assert.Error(t, err)
	err = store.exec("CREATE TABLE evidence (ID INTEGER)")
	assert.Error(t, err)
	require.NoError(t, store.Close())

	after, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func dirNames(t *testing.T, dir string) []string {
	infos, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func TestStore_sidecarFiles(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStoreWithPendingLog(t, filepath.Join(dir, "evidence"), camtest.W23H2,
		"INSERT INTO Users (ID, StringValue) VALUES (9, 'late')")
	evidence := filepath.Dir(path)
	before := dirNames(t, evidence)
	require.Equal(t, []string{camtest.Filename, camtest.Filename + "-wal"}, before)

	first, err := Open(path)
	require.NoError(t, err)
	second, err := Open(path)
	require.NoError(t, err)

	_, rows, err := first.QueryAll("SELECT ID FROM Users WHERE StringValue = 'late'")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, first.Close())
	_, _, err = second.QueryAll("SELECT COUNT(*) FROM Users")
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, before, dirNames(t, evidence))

	// a -shm file present before the run is left alone
	plain := camtest.NewStore(t, filepath.Join(dir, "plain"), camtest.W23H2)
	shm := plain + "-shm"
	require.NoError(t, ioutil.WriteFile(shm, nil, 0644))
	store, err := Open(plain)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	_, err = os.Stat(shm)
	assert.NoError(t, err)
}

func TestStore_QueryAll(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W23H2)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	tests := []struct {
		name        string
		query       string
		wantColumns []string
		wantRows    [][]interface{}
		wantErr     bool
	}{
		{
			"lookup", "SELECT ID, StringValue FROM Capabilities ORDER BY ID",
			[]string{"ID", "StringValue"},
			[][]interface{}{{int64(1), "webcam"}, {int64(2), "microphone"}, {int64(3), "location"}},
			false,
		},
		{
			"types", "SELECT 1.5 AS f, NULL AS n, x'00ff' AS b",
			[]string{"f", "n", "b"},
			[][]interface{}{{1.5, nil, []byte{0x00, 0xff}}},
			false,
		},
		{"no rows", "SELECT ID FROM Users WHERE ID = 42", nil, nil, false},
		{"invalid", "SELECT FROM", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			columns, rows, err := store.QueryAll(tt.query)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrStoreAccess), "QueryAll() error = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumns, columns)
			assert.Equal(t, tt.wantRows, rows)
		})
	}
}

func TestStore_Query(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W23H2)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	var sids []string
	err = store.Query("SELECT StringValue, ID FROM Users", func(row Row) error {
		assert.Equal(t, 2, row.Len())
		assert.Equal(t, int64(1), row.Int64(1))
		sids = append(sids, row.Text(0))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S-1-5-21-1000"}, sids)

	stop := errors.New("stop")
	err = store.Query("SELECT ID FROM Capabilities", func(row Row) error {
		return stop
	})
	assert.True(t, errors.Is(err, stop))
}
