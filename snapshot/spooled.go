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

package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
)

// spool buffers compressed file content in memory and moves it to a
// temporary file once it grows beyond maxSize.
type spool struct {
	size       int64
	maxSize    int64
	buffer     *bytes.Buffer
	tempFile   *os.File
	rolledOver bool
}

func newSpool(maxSize int64) (*spool, func() error) {
	s := &spool{buffer: &bytes.Buffer{}, maxSize: maxSize}
	return s, s.Close
}

// Rewind prepares the spool for reading from the start.
func (s *spool) Rewind() error {
	if s.rolledOver {
		_, err := s.tempFile.Seek(0, io.SeekStart)
		return err
	}
	return nil
}

func (s *spool) Read(p []byte) (n int, err error) {
	if s.rolledOver {
		return s.tempFile.Read(p)
	}
	return s.buffer.Read(p)
}

func (s *spool) Write(p []byte) (n int, err error) {
	if s.rolledOver {
		n, err = s.tempFile.Write(p)
		s.size += int64(n)
		return n, err
	}

	s.size += int64(len(p))

	if s.size > s.maxSize {
		if err := s.rollover(); err != nil {
			return 0, err
		}
		return s.tempFile.Write(p)
	}

	return s.buffer.Write(p)
}

func (s *spool) rollover() (err error) {
	s.tempFile, err = ioutil.TempFile("", "snapshot")
	if err != nil {
		return fmt.Errorf("could not create tmp file: %w", err)
	}
	s.rolledOver = true
	_, err = io.Copy(s.tempFile, s.buffer)
	if err != nil {
		return fmt.Errorf("could not fill tmp file: %w", err)
	}
	s.buffer.Reset()
	return nil
}

func (s *spool) Close() error {
	if s.rolledOver {
		err := s.tempFile.Close()
		if err != nil {
			return err
		}
		s.rolledOver = false
		return os.Remove(s.tempFile.Name())
	}
	s.buffer.Reset()
	return nil
}

// Size returns the number of bytes written.
func (s *spool) Size() int64 {
	return s.size
}
