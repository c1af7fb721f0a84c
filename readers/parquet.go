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

package readers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/dqetl"
)

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "open", "schema", "read_table")
	Err error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds statistics about the Parquet reader.
type ParquetReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	BytesRead       int64
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader.
type ParquetReaderOptions struct {
	BatchSize int64
}

// ReaderOptionParquet allows functional customization of ParquetReader.
type ReaderOptionParquet func(*ParquetReaderOptions)

// WithParquetBatchSize sets how many rows are decoded per batch.
func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(o *ParquetReaderOptions) { o.BatchSize = size }
}

// ParquetReader implements dqetl.ColumnSource over a parquet archive file.
//
// The file is buffered in memory because parquet needs random access and
// object-store locations only offer a stream.
type ParquetReader struct {
	table    arrow.Table
	batches  *array.TableReader
	schema   *arrow.Schema
	metadata map[string]string
	batch    arrow.Record
	row      int
	stats    ParquetReaderStats
}

// NewParquetReader reads r to the end, closes it and decodes the file.
func NewParquetReader(ctx context.Context, r io.ReadCloser, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := ParquetReaderOptions{BatchSize: 1024}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.BatchSize <= 0 {
		return nil, &ParquetReaderError{Op: "options", Err: fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)}
	}

	start := time.Now()
	data, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}

	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		pf.Close()
		return nil, &ParquetReaderError{Op: "schema", Err: err}
	}
	tbl, err := fr.ReadTable(ctx)
	pf.Close()
	if err != nil {
		return nil, &ParquetReaderError{Op: "read_table", Err: err}
	}

	md := tbl.Schema().Metadata()
	metadata := make(map[string]string, md.Len())
	for i, k := range md.Keys() {
		metadata[k] = md.Values()[i]
	}

	return &ParquetReader{
		table:    tbl,
		batches:  array.NewTableReader(tbl, opts.BatchSize),
		schema:   tbl.Schema(),
		metadata: metadata,
		stats: ParquetReaderStats{
			BytesRead:       int64(len(data)),
			ReadDuration:    time.Since(start),
			NullValueCounts: make(map[string]int64),
		},
	}, nil
}

// Columns returns the field names in file order.
func (p *ParquetReader) Columns() []string {
	fields := p.schema.Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// Metadata returns the file's key/value metadata, e.g. table and run_id.
func (p *ParquetReader) Metadata() map[string]string {
	return p.metadata
}

// Read implements the DataSource interface.
func (p *ParquetReader) Read(ctx context.Context) (dqetl.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}
	for p.batch == nil || p.row >= int(p.batch.NumRows()) {
		if p.batches == nil || !p.batches.Next() {
			return nil, io.EOF
		}
		p.batch = p.batches.Record()
		p.row = 0
		p.stats.BatchesRead++
	}

	rec := make(dqetl.Record, p.batch.NumCols())
	for i, f := range p.schema.Fields() {
		rec[f.Name] = p.value(p.batch.Column(i), p.row, f.Name)
	}
	p.row++
	p.stats.RecordsRead++
	return rec, nil
}

// Close releases the decoded table.
func (p *ParquetReader) Close() error {
	if p.batches != nil {
		p.batches.Release()
		p.batches = nil
	}
	if p.table != nil {
		p.table.Release()
		p.table = nil
	}
	p.batch = nil
	return nil
}

// Stats returns Parquet reader stats.
func (p *ParquetReader) Stats() ParquetReaderStats {
	return p.stats
}

// value maps the archive's column types back to the values the CSV reader produces.
func (p *ParquetReader) value(col arrow.Array, row int, field string) interface{} {
	if col.IsNull(row) {
		p.stats.NullValueCounts[field]++
		return nil
	}
	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(row)
	case *array.Int32:
		return int64(arr.Value(row))
	case *array.Int64:
		return arr.Value(row)
	case *array.Float64:
		return arr.Value(row)
	case *array.String:
		return arr.Value(row)
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(row))
	}
}
