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
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
)

// DefaultDigestAlgorithm is used when no algorithm is configured.
const DefaultDigestAlgorithm = "sha256"

// TableDigest maps a table name to the hex digest of its content.
type TableDigest map[string]string

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "md5":
		return md5.New(), nil // #nosec
	case "sha1":
		return sha1.New(), nil // #nosec
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, &StoreError{Kind: ErrUnsupportedDigestAlgorithm, Op: fmt.Sprintf("digest %q", algorithm)}
}

// Digest opens the store at path read-only and digests every user table.
func Digest(path, algorithm string) (TableDigest, error) {
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Digest(algorithm)
}

// Digest hashes the rows of every user table in rowid order. Each row's
// tuple representation feeds one running hash per table, so the result
// follows the logical content and not the page layout of the file.
func (store *Store) Digest(algorithm string) (TableDigest, error) {
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}

	names, err := store.Tables()
	if err != nil {
		return nil, err
	}

	digests := make(TableDigest, len(names))
	for _, name := range names {
		h, _ := newHash(algorithm)
		query := fmt.Sprintf("SELECT * FROM \"%s\" ORDER BY rowid", quoteIdent(name))
		err := store.step(query, func(stmt *sqlite.Stmt) error {
			_, err := io.WriteString(h, rowRepr(Row{stmt: stmt}.Values()))
			return err
		})
		if err != nil {
			return nil, storeErr(ErrStoreAccess, store.path, "digest "+name, err)
		}
		digests[name] = hex.EncodeToString(h.Sum(nil))
	}
	return digests, nil
}

// rowRepr renders a row as a tuple, e.g. (1, 'text', NULL, x'00ff', 1.5).
func rowRepr(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case nil:
			parts[i] = "NULL"
		case int64:
			parts[i] = strconv.FormatInt(v, 10)
		case float64:
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		case string:
			parts[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		case []byte:
			parts[i] = "x'" + hex.EncodeToString(v) + "'"
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
