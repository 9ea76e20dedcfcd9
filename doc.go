// Copyright (c) 2019 Siemens AG
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

// Package wleappcam extracts the privacy usage history that Windows keeps in
// CapabilityAccessManager.db, the SQLite database behind the camera,
// microphone, location and other capability settings.
//
// The extraction
//
// A store is processed in four steps:
//     - A pending write-ahead log next to the store is optionally checkpointed
//       into it (Reconcile). Row counts and per table content digests taken
//       before and after show that no record was lost.
//     - The table layout is read (Introspect) and matched against the known
//       releases (ClassifyLayout). Windows 11 24H2 added application names,
//       labels, access GUIDs, service names and the global prompt history.
//     - The report catalog (Build) renders the SQL of every report for the
//       release family, optionally bounded by a date range.
//     - An Extractor runs the queries and hands the rows to a Reporter.
//
// Timestamps
//
// The store keeps FILETIME values, 100 nanosecond ticks since 1601-01-01 UTC.
// A zero timestamp means the capability was never used and is shown as "N.A.".
package wleappcam
