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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aaronlmathis/dqetl"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	Headers     []string
	BatchSize   int
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// Consistent naming with JSON writer
func WithHeaders(headers []string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Headers = append([]string(nil), headers...) // copy
	}
}

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// CSVWriter implements dqetl.DataSink for delimited text output with stats and batching.
//
// Values are rendered with dqetl.Stringify, so the file reads back to the same
// types. When the column order is known, a dataset with no records still
// produces a header line.
type CSVWriter struct {
	writer      *csv.Writer
	closer      io.Closer
	options     CSVWriterOptions
	headers     []string
	recordBuf   []dqetl.Record
	stats       CSVWriterStats
	wroteHeader bool
	errorState  bool
	closed      bool
	mu          sync.Mutex
}

// NewCSVWriter creates a new CSV writer with extended options.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:       ',',
		UseCRLF:     false,
		WriteHeader: true,
		BatchSize:   0,
	}

	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &CSVWriter{
		writer:    cw,
		closer:    w,
		options:   options,
		headers:   append([]string(nil), options.Headers...),
		recordBuf: make([]dqetl.Record, 0, max(options.BatchSize, 1)),
		stats:     CSVWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// SetColumns implements dqetl.ColumnAware. Explicit WithHeaders take precedence.
func (c *CSVWriter) SetColumns(columns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 && !c.wroteHeader {
		c.headers = append([]string(nil), columns...)
	}
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record dqetl.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if err := ctx.Err(); err != nil {
		return &CSVWriterError{Op: "write", Err: err}
	}

	// Track nulls
	for k, v := range record {
		if dqetl.IsNull(v) {
			c.stats.NullValueCounts[k]++
		}
	}

	// Headers come from the first record if not specified
	if len(c.headers) == 0 {
		for key := range record {
			c.headers = append(c.headers, key)
		}
		sort.Strings(c.headers)
	}
	if err := c.writeHeaderUnsafe(); err != nil {
		c.errorState = true
		return err
	}

	c.recordBuf = append(c.recordBuf, record)
	c.stats.RecordsWritten++

	if c.options.BatchSize > 0 && len(c.recordBuf) >= c.options.BatchSize {
		if err := c.flushBufferUnsafe(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Flush implements the DataSink interface.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeHeaderUnsafe(); err != nil {
		return err
	}
	if err := c.flushBufferUnsafe(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush_writer", Err: err}
	}
	return nil
}

// Close implements the DataSink interface.
func (c *CSVWriter) Close() error {
	if c.closed {
		return nil
	}
	if err := c.Flush(); err != nil {
		c.Abort()
		return err
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Abort implements dqetl.Aborter. Buffered rows are discarded and the
// underlying writer is aborted when it supports it, otherwise closed.
func (c *CSVWriter) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.recordBuf = c.recordBuf[:0]
	if a, ok := c.closer.(dqetl.Aborter); ok {
		return a.Abort()
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// writeHeaderUnsafe writes the header line once (must hold mutex).
func (c *CSVWriter) writeHeaderUnsafe() error {
	if c.wroteHeader || !c.options.WriteHeader || len(c.headers) == 0 {
		return nil
	}
	if err := c.writer.Write(c.headers); err != nil {
		return &CSVWriterError{Op: "write_header", Err: err}
	}
	c.wroteHeader = true
	return nil
}

// flushBufferUnsafe writes buffered records to CSV (must hold mutex).
func (c *CSVWriter) flushBufferUnsafe() error {
	if len(c.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	for _, record := range c.recordBuf {
		row := make([]string, len(c.headers))
		for i, key := range c.headers {
			if val, ok := record[key]; ok && !dqetl.IsNull(val) {
				row[i] = dqetl.Stringify(val)
			}
		}
		if err := c.writer.Write(row); err != nil {
			return &CSVWriterError{
				Op:  "write_row",
				Err: fmt.Errorf("failed to write CSV row: %w", err),
			}
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{
			Op:  "csv_flush",
			Err: fmt.Errorf("CSV writer flush error: %w", err),
		}
	}

	// Update statistics
	flushDuration := time.Since(start)
	c.stats.FlushCount++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += flushDuration
	c.recordBuf = c.recordBuf[:0]

	return nil
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Return a copy to prevent races
	statsCopy := c.stats
	statsCopy.NullValueCounts = make(map[string]int64)
	for k, v := range c.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

