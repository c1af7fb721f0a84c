//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of DQETL.
//
// DQETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DQETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DQETL. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aaronlmathis/dqetl"
)

// JSONWriterError wraps JSON-lines write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter implements dqetl.DataSink for JSON lines output.
// NaN values are written as null since JSON has no representation for them.
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	written int64
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
	}
}

// Write implements the DataSink interface
func (j *JSONWriter) Write(ctx context.Context, record dqetl.Record) error {
	if err := ctx.Err(); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}

	clean, copied := record, false
	for k, v := range record {
		if v != nil && dqetl.IsNull(v) {
			if !copied {
				clean, copied = record.Copy(), true
			}
			clean[k] = nil
		}
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}
	data = append(data, '\n')
	if _, err := j.writer.Write(data); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.written++
	return nil
}

// Written returns the number of records written.
func (j *JSONWriter) Written() int64 {
	return j.written
}

// Flush implements the DataSink interface
func (j *JSONWriter) Flush() error {
	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Abort implements dqetl.Aborter.
func (j *JSONWriter) Abort() error {
	j.writer.Reset(io.Discard)
	if a, ok := j.closer.(dqetl.Aborter); ok {
		return a.Abort()
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
