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

package dqetl

import (
	"context"

	"github.com/aaronlmathis/dqetl/remediation"
)

// Package dqetl defines the core interfaces and types for the DQETL library.
//
// DQETL reads related tabular datasets, runs each one through an ordered chain of
// data-quality rules, writes the cleaned tables back out and upserts them into a store.
//
// This file contains the primary interfaces for data sources, sinks, rules and error handling.

// Record represents a single data record in the pipeline.
// Each record is a map from field names to values, supporting heterogeneous data.
type Record map[string]interface{}

// Copy returns a shallow copy of the record.
func (r Record) Copy() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., CSV).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// ColumnSource is a DataSource that knows its column order up front.
type ColumnSource interface {
	DataSource
	Columns() []string
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., CSV, Parquet).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// ColumnAware sinks accept the dataset column order before the first write.
type ColumnAware interface {
	SetColumns(columns []string)
}

// Aborter is implemented by sinks that can discard everything written so far.
type Aborter interface {
	Abort() error
}

// Recorder receives remediation entries emitted by rules.
type Recorder interface {
	Record(entry remediation.Entry)
}

// RecorderFunc is a function adapter for the Recorder interface.
type RecorderFunc func(entry remediation.Entry)

// Record implements the Recorder interface for RecorderFunc.
func (f RecorderFunc) Record(entry remediation.Entry) {
	f(entry)
}

// Discard is a Recorder that drops every entry.
var Discard Recorder = RecorderFunc(func(remediation.Entry) {})

// Rule is a single data-quality check over one column of a dataset.
//
// Apply returns a new dataset holding the surviving, possibly remediated, records in
// their original order. The input dataset and any parent dataset the rule consults are
// never modified. Row-level violations are reported to rec and never returned as errors;
// an error means the rule could not run at all (for example a missing column).
type Rule interface {
	Name() string
	Apply(ctx context.Context, ds *Dataset, rec Recorder) (*Dataset, error)
}

// ErrorStrategy defines how to handle source read errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred while reading a record.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}
