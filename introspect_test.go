package wleappcam

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatricioDomingues/WLEAPPCAM/camtest"
)

func TestIntrospect(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	tests := []struct {
		name    string
		variant camtest.Variant
		release Release
	}{
		{"23H2", camtest.W23H2, Release23H2},
		{"24H2", camtest.W24H2, Release24H2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := camtest.NewStore(t, filepath.Join(dir, tt.name), tt.variant)
			got, err := Introspect(path)
			require.NoError(t, err)

			want, ok := KnownLayout(tt.release)
			require.True(t, ok)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Introspect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntrospect_empty(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewCustomStore(t, dir, "CREATE TABLE t (ID INTEGER); DROP TABLE t;")
	_, err := Introspect(path)
	assert.True(t, errors.Is(err, ErrEmptyStore), "Introspect() error = %v, want %v", err, ErrEmptyStore)
}

func TestStore_Tables(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewCustomStore(t, dir,
		"CREATE TABLE Users (ID INTEGER PRIMARY KEY AUTOINCREMENT, StringValue TEXT); CREATE TABLE \"odd\"\"name\" (x);")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	tables, err := store.Tables()
	require.NoError(t, err)
	// sqlite_sequence is internal
	assert.Equal(t, []string{"Users", `odd"name`}, tables)

	layout, err := store.Layout()
	require.NoError(t, err)
	assert.Equal(t, Layout{"Users": {"ID", "StringValue"}, `odd"name`: {"x"}}, layout)
	assert.Equal(t, Signature{"Users": 2, `odd"name`: 1}, layout.Signature())
}

func TestStore_RowCounts(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	tests := []struct {
		name    string
		variant camtest.Variant
		want    map[string]int64
	}{
		{"23H2", camtest.W23H2, map[string]int64{
			"BinaryFullPaths": 1, "Capabilities": 3, "FileIDs": 1, "PackageFamilyNames": 1, "ProgramIDs": 1, "Users": 1,
			"PackagedUsageHistory":            camtest.PackagedRows,
			"NonPackagedUsageHistory":         camtest.NonPackagedRows,
			"NonPackagedIdentityRelationship": camtest.IdentityRows,
		}},
		{"24H2", camtest.W24H2, map[string]int64{
			"AccessGUIDs": 0, "AppNames": 2, "ServiceNames": 0,
			"BinaryFullPaths": 1, "Capabilities": 3, "FileIDs": 1, "PackageFamilyNames": 1, "ProgramIDs": 1, "Users": 1,
			"PackagedUsageHistory":            camtest.PackagedRows,
			"NonPackagedUsageHistory":         camtest.NonPackagedRows,
			"NonPackagedIdentityRelationship": camtest.IdentityRows,
			"NonPackagedGlobalPromptHistory":  camtest.PromptRows,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(camtest.NewStore(t, filepath.Join(dir, tt.name), tt.variant))
			require.NoError(t, err)
			defer store.Close()

			got, err := store.RowCounts()
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RowCounts() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
