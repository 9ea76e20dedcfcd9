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
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrStoreAccess is returned when a store cannot be opened or queried.
	ErrStoreAccess = errors.New("store access failed")
	// ErrEmptyStore is informational: the store holds no user tables.
	ErrEmptyStore = errors.New("store has no tables")
	// ErrReconciliation is returned when a pending log could not be checkpointed.
	ErrReconciliation = errors.New("log reconciliation failed")
	// ErrUnsupportedVersion is returned for stores or tags without a query set.
	ErrUnsupportedVersion = errors.New("unsupported store version")
	// ErrUnsupportedDigestAlgorithm is a programming error.
	ErrUnsupportedDigestAlgorithm = errors.New("unsupported digest algorithm")
	// ErrUnknownReport is returned for a report id outside the catalog.
	ErrUnknownReport = errors.New("unknown report")
)

// StoreError carries the kind of a failure together with the store path and
// the operation that failed.
type StoreError struct {
	Kind error
	Path string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *StoreError) Is(target error) bool { return target == e.Kind }

func storeErr(kind error, path, op string, err error) error {
	return &StoreError{Kind: kind, Path: path, Op: op, Err: err}
}
