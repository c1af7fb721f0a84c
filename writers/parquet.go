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
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/dqetl"
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "close_writer")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Schema       *arrow.Schema        // Fixed schema; inferred from the first record when nil
	Compression  compress.Compression // Compression algorithm
	FieldOrder   []string             // Explicit field ordering for inferred schemas
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Key/value metadata stored in the file schema
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithSchema fixes the Arrow schema instead of inferring it.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithFieldOrder sets the explicit field ordering for an inferred schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParquetWriter implements dqetl.DataSink for Parquet output.
//
// With a fixed schema every value is coerced to its column type; values that
// cannot be coerced are written as null and counted. A dataset with no records
// still produces a valid file carrying the schema.
type ParquetWriter struct {
	out          *onceCloser
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	fieldOrder   []string
	recordBuffer []dqetl.Record
	builders     []array.Builder
	allocator    memory.Allocator
	stats        WriterStats
	opts         ParquetWriterOptions
	errorState   bool
	closed       bool
	mu           sync.Mutex
}

// NewParquetWriter creates a Parquet writer over w. w is closed by Close and
// aborted (when it implements dqetl.Aborter) by Abort.
func NewParquetWriter(w io.WriteCloser, options ...WriterOption) (*ParquetWriter, error) {
	opts := ParquetWriterOptions{
		BatchSize:    1000,
		RowGroupSize: 10000,
		Compression:  compress.Codecs.Snappy,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.BatchSize <= 0 {
		return nil, &ParquetWriterError{Op: "options", Err: fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)}
	}

	p := &ParquetWriter{
		out:          &onceCloser{WriteCloser: w},
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]dqetl.Record, 0, opts.BatchSize),
		allocator:    memory.NewGoAllocator(),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}
	if opts.Schema != nil {
		if err := p.initialize(opts.Schema); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// SetColumns implements dqetl.ColumnAware. It only affects inferred schemas.
func (p *ParquetWriter) SetColumns(columns []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.schema == nil && len(p.fieldOrder) == 0 {
		p.fieldOrder = append([]string(nil), columns...)
	}
}

// Write implements the dqetl.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record dqetl.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	if p.schema == nil {
		if err := p.initialize(p.inferSchema(record)); err != nil {
			p.errorState = true
			return err
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the dqetl.DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushBatch()
}

// Close implements the dqetl.DataSink interface. It writes the file footer
// and closes the underlying writer.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	defer p.releaseBuilders()

	if p.schema == nil {
		if len(p.fieldOrder) == 0 {
			return p.out.Close()
		}
		// Nothing was written: emit an empty file with a string schema
		// over the known columns.
		if err := p.initialize(p.inferSchema(nil)); err != nil {
			p.out.Abort()
			return err
		}
	}
	if err := p.flushBatch(); err != nil {
		p.out.Abort()
		return &ParquetWriterError{Op: "flush_remaining", Err: err}
	}
	if err := p.writer.Close(); err != nil {
		p.out.Abort()
		return &ParquetWriterError{Op: "close_writer", Err: err}
	}
	if err := p.out.Close(); err != nil {
		return &ParquetWriterError{Op: "close_output", Err: err}
	}
	return nil
}

// Abort implements dqetl.Aborter. No footer is written.
func (p *ParquetWriter) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.releaseBuilders()
	p.recordBuffer = nil
	return p.out.Abort()
}

// inferSchema builds a schema from the field order (or the record's sorted
// keys) and the record's value types. Unknown types become strings.
func (p *ParquetWriter) inferSchema(record dqetl.Record) *arrow.Schema {
	if len(p.fieldOrder) == 0 {
		for name := range record {
			p.fieldOrder = append(p.fieldOrder, name)
		}
		sort.Strings(p.fieldOrder)
	}

	fields := make([]arrow.Field, 0, len(p.fieldOrder))
	for _, name := range p.fieldOrder {
		fields = append(fields, arrow.Field{Name: name, Type: inferArrowType(record[name]), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// initialize fixes the schema and opens the file writer.
func (p *ParquetWriter) initialize(schema *arrow.Schema) error {
	if len(p.opts.Metadata) > 0 {
		merged := make(map[string]string, len(p.opts.Metadata))
		existing := schema.Metadata()
		for i, k := range existing.Keys() {
			merged[k] = existing.Values()[i]
		}
		for k, v := range p.opts.Metadata {
			merged[k] = v
		}
		md := arrow.MetadataFrom(merged)
		schema = arrow.NewSchema(schema.Fields(), &md)
	}
	p.schema = schema

	p.fieldOrder = make([]string, 0, len(schema.Fields()))
	for _, f := range schema.Fields() {
		p.fieldOrder = append(p.fieldOrder, f.Name)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, p.out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: fmt.Errorf("failed to create parquet file writer: %w", err)}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		p.builders[i] = array.NewBuilder(p.allocator, f.Type)
	}
	return nil
}

func inferArrowType(value interface{}) arrow.DataType {
	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// flushBatch writes the current buffer as one record batch.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 || p.writer == nil {
		return nil
	}
	start := time.Now()

	for _, record := range p.recordBuffer {
		for i, name := range p.fieldOrder {
			value, ok := record[name]
			if ok && !dqetl.IsNull(value) && appendValue(p.builders[i], value) {
				continue
			}
			p.builders[i].AppendNull()
			p.stats.NullValueCounts[name]++
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, b := range p.builders {
		arrays[i] = b.NewArray()
	}
	rec := array.NewRecord(p.schema, arrays, int64(len(p.recordBuffer)))
	for _, a := range arrays {
		a.Release()
	}
	defer rec.Release()

	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: fmt.Errorf("failed to write record batch: %w", err)}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// appendValue coerces value to the builder's type. It reports false, without
// appending, when the value cannot be represented.
func appendValue(builder array.Builder, value interface{}) bool {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		switch v := value.(type) {
		case bool:
			b.Append(v)
		case string:
			switch v {
			case "True", "TRUE", "true":
				b.Append(true)
			case "False", "FALSE", "false":
				b.Append(false)
			default:
				return false
			}
		default:
			return false
		}
		return true
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case float64:
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return false
			}
			b.Append(int64(v))
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return false
			}
			b.Append(n)
		default:
			return false
		}
		return true
	case *array.Int32Builder:
		switch v := value.(type) {
		case int64:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return false
			}
			b.Append(int32(v))
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return false
			}
			b.Append(int32(v))
		default:
			return false
		}
		return true
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case int64:
			b.Append(float64(v))
		case int:
			b.Append(float64(v))
		default:
			return false
		}
		return true
	case *array.StringBuilder:
		b.Append(dqetl.Stringify(value))
		return true
	default:
		return false
	}
}

func (p *ParquetWriter) releaseBuilders() {
	for _, b := range p.builders {
		if b != nil {
			b.Release()
		}
	}
	p.builders = nil
}

// onceCloser lets both the parquet file writer and ParquetWriter close the
// output without committing it twice.
type onceCloser struct {
	io.WriteCloser
	once sync.Once
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() { o.err = o.WriteCloser.Close() })
	return o.err
}

func (o *onceCloser) Abort() error {
	var err error
	o.once.Do(func() {
		if a, ok := o.WriteCloser.(dqetl.Aborter); ok {
			err = a.Abort()
			return
		}
		err = o.WriteCloser.Close()
	})
	return err
}
