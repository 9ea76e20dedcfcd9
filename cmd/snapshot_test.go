package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wleappcam "github.com/PatricioDomingues/WLEAPPCAM"
	"github.com/PatricioDomingues/WLEAPPCAM/camtest"
)

func TestSnapshot(t *testing.T) {
	dir := setup(t)
	defer os.RemoveAll(dir)

	path := camtest.NewStoreWithPendingLog(t, filepath.Join(dir, "evidence"), camtest.W23H2,
		"INSERT INTO Capabilities VALUES (4, 'bluetooth')")
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	archive := filepath.Join(dir, "before.sqlar")
	stdout(func() {
		command := Reconcile()
		command.SetArgs([]string{"--snapshot", archive, path})
		assert.NoError(t, command.Execute())
	})

	out := stdout(func() {
		command := Snapshot()
		command.SetArgs([]string{"ls", archive})
		assert.NoError(t, command.Execute())
	})
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], wleappcam.StoreFilename+"\t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], wleappcam.StoreFilename+"-wal\t"), lines[1])

	dest := filepath.Join(dir, "unpacked")
	stdout(func() {
		command := Snapshot()
		command.SetArgs([]string{"unpack", "-o", dest, archive})
		assert.NoError(t, command.Execute())
	})
	unpacked, err := os.ReadFile(filepath.Join(dest, wleappcam.StoreFilename))
	require.NoError(t, err)
	assert.Equal(t, original, unpacked)

	pending, err := wleappcam.PendingLog(filepath.Join(dest, wleappcam.StoreFilename))
	require.NoError(t, err)
	assert.True(t, pending)

	// never overwrite
	stdout(func() {
		command := Snapshot()
		command.SetArgs([]string{"unpack", "-o", dest, archive})
		command.SilenceUsage = true
		assert.Error(t, command.Execute())
	})
}
