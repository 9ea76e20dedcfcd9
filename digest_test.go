package wleappcam

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatricioDomingues/WLEAPPCAM/camtest"
)

func TestDigest(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	tests := []struct {
		name      string
		algorithm string
		length    int
	}{
		{"md5", "md5", 32},
		{"sha1", "SHA1", 40},
		{"sha256", "sha256", 64},
		{"sha512", "sha512", 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := camtest.NewStore(t, filepath.Join(dir, tt.name, "a"), camtest.W24H2)
			b := camtest.NewStore(t, filepath.Join(dir, tt.name, "b"), camtest.W24H2)

			da, err := Digest(a, tt.algorithm)
			require.NoError(t, err)
			db, err := Digest(b, tt.algorithm)
			require.NoError(t, err)

			assert.Len(t, da, 13)
			assert.Equal(t, da, db)
			for table, digest := range da {
				assert.Len(t, digest, tt.length, table)
			}
		})
	}
}

func TestDigest_changes(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W23H2)
	before, err := Digest(path, DefaultDigestAlgorithm)
	require.NoError(t, err)

	camtest.Exec(t, path, "UPDATE Users SET StringValue = 'S-1-5-21-1001' WHERE ID = 1")
	after, err := Digest(path, DefaultDigestAlgorithm)
	require.NoError(t, err)

	for table := range before {
		if table == "Users" {
			assert.NotEqual(t, before[table], after[table])
		} else {
			assert.Equal(t, before[table], after[table], table)
		}
	}
}

func TestDigest_vacuum(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W23H2)
	before, err := Digest(path, DefaultDigestAlgorithm)
	require.NoError(t, err)

	// the page layout changes, the logical content does not
	camtest.Exec(t, path, "PRAGMA page_size=1024", "VACUUM")
	after, err := Digest(path, DefaultDigestAlgorithm)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDigest_unsupported(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	path := camtest.NewStore(t, dir, camtest.W23H2)
	_, err := Digest(path, "crc32")
	assert.True(t, errors.Is(err, ErrUnsupportedDigestAlgorithm), "Digest() error = %v", err)
}

func Test_rowRepr(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
		want   string
	}{
		{"empty", nil, "()"},
		{"mixed", []interface{}{int64(1), "it's", nil, []byte{0x00, 0xff}, 1.5}, "(1, 'it''s', NULL, x'00ff', 1.5)"},
		{"negative", []interface{}{int64(-7)}, "(-7)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rowRepr(tt.values))
		})
	}
}
