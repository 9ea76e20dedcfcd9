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
	"os"
	"sort"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/PatricioDomingues/WLEAPPCAM/snapshot"
)

const separator = "----------------------------------------"

// ReconcileOptions controls a log reconciliation.
type ReconcileOptions struct {
	// Diagnostics captures row counts, file size and table digests before
	// and after the checkpoint and compares them.
	Diagnostics bool
	// Algorithm is the digest algorithm for diagnostics, sha256 if empty.
	Algorithm string
	// SnapshotTo names a SQLite archive that receives the store and its
	// sidecar files before the store is modified.
	SnapshotTo string
}

// StoreState is what diagnostics record about a store at one point in time.
type StoreState struct {
	Counts map[string]int64
	Size   int64
	Digest TableDigest
}

// Outcome describes a reconciliation.
type Outcome struct {
	Path string
	// Performed is false when there was no pending log.
	Performed   bool
	IntegrityOK bool
	Integrity   []string
	Before      *StoreState
	After       *StoreState
	// Identical is set by diagnostics when all digests agree.
	Identical   bool
	Snapshot    string
	Diagnostics []string
}

// LogPath returns the write-ahead log sidecar of a store.
func LogPath(path string) string {
	return path + "-wal"
}

// PendingLog reports whether a non-empty write-ahead log sits next to the
// store.
func PendingLog(path string) (bool, error) {
	info, err := os.Stat(LogPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir() && info.Size() > 0, nil
}

// Reconcile folds a pending write-ahead log into the store. Without a
// pending log it does nothing. A failed integrity check is recorded and the
// checkpoint is still attempted; only failures to open, checkpoint or close
// the store are returned, as ErrReconciliation.
func Reconcile(path string, opts ReconcileOptions) (*Outcome, error) { // nolint:gocyclo,funlen
	out := &Outcome{Path: path}

	pending, err := PendingLog(path)
	if err != nil {
		return nil, storeErr(ErrReconciliation, path, "stat log", err)
	}
	if !pending {
		return out, nil
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = DefaultDigestAlgorithm
	}
	if opts.Diagnostics {
		if _, err := newHash(algorithm); err != nil {
			return nil, err
		}
	}

	if opts.SnapshotTo != "" {
		if err := snapshotStore(path, opts.SnapshotTo); err != nil {
			return nil, storeErr(ErrReconciliation, path, "snapshot", err)
		}
		out.Snapshot = opts.SnapshotTo
	}

	if opts.Diagnostics {
		out.Before = out.capture(path, algorithm, "Before 'checkpoint'")
	}

	store, err := openWritable(path)
	if err != nil {
		return nil, storeErr(ErrReconciliation, path, "open", err)
	}
	closed := false
	defer func() {
		if !closed {
			store.Close()
		}
	}()

	if _, err := store.pragma("journal_mode=WAL"); err != nil {
		return nil, storeErr(ErrReconciliation, path, "journal mode", err)
	}

	out.Integrity, err = store.pragma("integrity_check")
	out.IntegrityOK = err == nil && len(out.Integrity) == 1 && out.Integrity[0] == "ok"
	switch {
	case err != nil:
		out.Integrity = []string{err.Error()}
		fallthrough
	case !out.IntegrityOK:
		log.Warn().Str("store", path).Strs("integrity", out.Integrity).Msg("integrity check failed, checkpointing anyway")
		out.note("[INFO] Integrity check failed: %s", strings.Join(out.Integrity, "; "))
	default:
		out.note("[INFO] Database integrity check passed.")
	}

	var busy, logFrames, checkpointed int64
	err = store.step("PRAGMA wal_checkpoint(RESTART)", func(stmt *sqlite.Stmt) error {
		busy, logFrames, checkpointed = stmt.ColumnInt64(0), stmt.ColumnInt64(1), stmt.ColumnInt64(2)
		return nil
	})
	if err != nil {
		return nil, storeErr(ErrReconciliation, path, "checkpoint", err)
	}
	if busy != 0 {
		return nil, storeErr(ErrReconciliation, path, "checkpoint",
			fmt.Errorf("checkpoint blocked, %d of %d frames written", checkpointed, logFrames))
	}
	out.note("[INFO] WAL file checkpointed successfully (%d of %d frames).", checkpointed, logFrames)

	closed = true
	if err := store.Close(); err != nil {
		return nil, storeErr(ErrReconciliation, path, "close", err)
	}
	out.Performed = true

	if opts.Diagnostics {
		out.After = out.capture(path, algorithm, "After 'checkpoint'")
		if out.Before != nil && out.After != nil {
			lines, identical := compareMaps(out.Before.Digest, out.After.Digest)
			out.Identical = identical
			out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("Digest comparison (%s):", algorithm))
			out.Diagnostics = append(out.Diagnostics, lines...)
		}
		out.Diagnostics = append(out.Diagnostics, separator)
	}
	return out, nil
}

func (out *Outcome) note(format string, args ...interface{}) {
	out.Diagnostics = append(out.Diagnostics, fmt.Sprintf(format, args...))
}

// capture records counts, size and digests. Failures are noted, not returned.
func (out *Outcome) capture(path, algorithm, title string) *StoreState {
	out.Diagnostics = append(out.Diagnostics, separator, "[INFO] "+title)

	state, err := captureState(path, algorithm)
	if err != nil {
		log.Error().Err(err).Str("store", path).Msg("could not capture store state")
		out.note("[ERROR] %s", err)
		return nil
	}

	names := make([]string, 0, len(state.Counts))
	for name := range state.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.note("%s: %d records", name, state.Counts[name])
	}
	out.note("DB size:%d bytes", state.Size)
	return state
}

func captureState(path, algorithm string) (*StoreState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	counts, err := store.RowCounts()
	if err != nil {
		return nil, err
	}
	digest, err := store.Digest(algorithm)
	if err != nil {
		return nil, err
	}
	return &StoreState{Counts: counts, Size: info.Size(), Digest: digest}, nil
}

// compareMaps renders a key by key comparison and reports whether both maps
// hold the same keys and values.
func compareMaps(before, after map[string]string) ([]string, bool) {
	var lines []string
	identical := true

	keys := map[string]bool{}
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		b, inBefore := before[k]
		a, inAfter := after[k]
		switch {
		case !inAfter:
			identical = false
			lines = append(lines, fmt.Sprintf("  - %s: only before", k), "    Value: "+b)
		case !inBefore:
			identical = false
			lines = append(lines, fmt.Sprintf("  - %s: only after", k), "    Value: "+a)
		case a == b:
			lines = append(lines, fmt.Sprintf("  - %s: EQUAL", k), "    Value: "+a)
		default:
			identical = false
			lines = append(lines, fmt.Sprintf("  - %s: DIFFERENT", k), "    Before: "+b, "    After:  "+a)
		}
	}

	if identical {
		lines = append(lines, "Overall: digests are IDENTICAL")
	} else {
		lines = append(lines, "Overall: digests are NOT identical")
	}
	return lines, identical
}

func snapshotStore(path, archive string) error {
	fs := afero.NewOsFs()
	files := []string{path}
	for _, sidecar := range []string{LogPath(path), path + "-shm"} {
		if ok, _ := afero.Exists(fs, sidecar); ok {
			files = append(files, sidecar)
		}
	}

	a, err := snapshot.Create(archive)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := a.Add(fs, f); err != nil {
			a.Close()
			return err
		}
	}
	return a.Close()
}
