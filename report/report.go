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

// Package report writes extraction results as HTML pages and TSV files.
package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stoewer/go-strcase"

	wleappcam "github.com/PatricioDomingues/WLEAPPCAM"
)

// TSVFolder is the subfolder receiving the TSV exports.
const TSVFolder = "_TSV Exports"

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Name }}</title>
</head>
<body>
<h1>{{ .Name }}</h1>
<p>Source: {{ .Source }}</p>
{{- if .Filter }}
<p>Date filter: {{ .Filter }}</p>
{{- end }}
<table>
<thead><tr>{{ range .Headers }}<th>{{ . }}</th>{{ end }}</tr></thead>
<tbody>
{{- range .Rows }}
<tr>{{ range . }}<td>{{ . }}</td>{{ end }}</tr>
{{- end }}
</tbody>
</table>
</body>
</html>
`))

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_+\-]+`)

// Writer writes every report to Folder.
type Writer struct {
	Fs     afero.Fs
	Folder string
	// Written lists the files created so far.
	Written []string
}

// New creates a writer for folder.
func New(fs afero.Fs, folder string) *Writer {
	return &Writer{Fs: fs, Folder: folder}
}

// FileName is the base name of the HTML page of a report.
func FileName(name string) string {
	return strcase.SnakeCase(unsafeChars.ReplaceAllString(name, "_")) + ".html"
}

// Write writes the HTML page and, when the report has a TSV name and real
// rows, the TSV export of r.
func (w *Writer) Write(r *wleappcam.Report) error {
	if err := w.Fs.MkdirAll(w.Folder, 0750); err != nil {
		return err
	}
	if err := w.html(r); err != nil {
		return errors.Wrapf(err, "could not write HTML report %s", r.Name)
	}
	if r.TSVName == "" || r.Placeholder {
		return nil
	}
	if err := w.tsv(r); err != nil {
		return errors.Wrapf(err, "could not write TSV report %s", r.TSVName)
	}
	return nil
}

func (w *Writer) html(r *wleappcam.Report) error {
	name := filepath.Join(w.Folder, FileName(r.Name))
	f, err := w.Fs.Create(name)
	if err != nil {
		return err
	}
	if err := page.Execute(f, r); err != nil {
		f.Close()
		return err
	}
	w.Written = append(w.Written, name)
	return f.Close()
}

func (w *Writer) tsv(r *wleappcam.Report) error {
	folder := filepath.Join(w.Folder, TSVFolder)
	if err := w.Fs.MkdirAll(folder, 0750); err != nil {
		return err
	}
	name := filepath.Join(folder, unsafeChars.ReplaceAllString(r.TSVName, "_")+".tsv")
	f, err := w.Fs.Create(name)
	if err != nil {
		return err
	}

	out := csv.NewWriter(f)
	out.Comma = '\t'
	if err := out.Write(r.Headers); err != nil {
		f.Close()
		return err
	}
	record := make([]string, len(r.Headers))
	for _, row := range r.Rows {
		record = record[:0]
		for _, value := range row {
			record = append(record, text(value))
		}
		if err := out.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		f.Close()
		return err
	}
	w.Written = append(w.Written, name)
	return f.Close()
}

func text(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprint(v)
	}
}
