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
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/dqetl"
)

// DefaultNullValues are the textual tokens read as null, matching what
// spreadsheet and dataframe tools write for missing values.
var DefaultNullValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

// ErrMalformedRow marks a record the CSV parser could not map onto the header.
// Reading continues after it, so callers may drop the row and go on.
var ErrMalformedRow = errors.New("malformed row")

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op   string
	Line int // 1-based input line for record errors, 0 otherwise
	Err  error
}

func (e *CSVReaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv reader %s line %d: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	MalformedRows   int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	NullValues       []string
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

// WithCSVNullValues replaces the set of tokens read as null.
func WithCSVNullValues(tokens ...string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.NullValues = tokens }
}

// columnKind is the type inferred for a whole column.
type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
	kindBool
)

// rawRow is one buffered input record, or the error it produced.
type rawRow struct {
	fields []string
	err    error
}

// CSVReader implements dqetl.ColumnSource for delimited text.
//
// The input is buffered on the first Read and typed per column: a column
// becomes int64, float64 or bool only when every non-null value in it parses
// as that type. Digit strings with a leading zero, and spellings such as Inf
// or 0x1p3, keep the column as text, so values like phone numbers and zip
// codes are returned exactly as written. An empty input is an empty dataset.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	nulls   map[string]struct{}
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions

	loaded bool
	rows   []rawRow
	kinds  []columnKind
	pos    int
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:      ',',
		HasHeaders: true,
		NullValues: DefaultNullValues,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace

	reader := &CSVReader{
		reader: csvReader,
		nulls:  make(map[string]struct{}, len(opts.NullValues)),
		closer: r,
		opts:   opts,
		stats:  CSVReaderStats{NullValueCounts: make(map[string]int64)},
	}
	for _, tok := range opts.NullValues {
		reader.nulls[tok] = struct{}{}
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		reader.headers = headers
	}

	return reader, nil
}

// Columns returns the header row, or nil for an empty headered input.
// Headerless inputs only know their columns after the first Read.
func (c *CSVReader) Columns() []string {
	return append([]string(nil), c.headers...)
}

// Read implements the DataSource interface.
//
// A row with more fields than the header, or one the parser rejects, is
// returned as a *CSVReaderError wrapping ErrMalformedRow; the next Read
// continues with the following row.
func (c *CSVReader) Read(ctx context.Context) (dqetl.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if !c.loaded {
		if err := c.load(ctx); err != nil {
			return nil, err
		}
	}
	if c.pos >= len(c.rows) {
		return nil, io.EOF
	}
	row := c.rows[c.pos]
	c.pos++
	if row.err != nil {
		c.stats.MalformedRows++
		return nil, row.err
	}

	res := make(dqetl.Record, len(c.headers))
	for i, key := range c.headers {
		if i >= len(row.fields) {
			res[key] = nil
			c.stats.NullValueCounts[key]++
			continue
		}
		v := c.convert(row.fields[i], c.kinds[i])
		if v == nil {
			c.stats.NullValueCounts[key]++
		}
		res[key] = v
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

// Close implements the DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

// load buffers every remaining record and infers the column kinds.
func (c *CSVReader) load(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return &CSVReaderError{Op: "read", Err: err}
		}
		fields, err := c.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return &CSVReaderError{Op: "read_record", Err: err}
			}
			c.rows = append(c.rows, rawRow{err: &CSVReaderError{
				Op:   "read_record",
				Line: perr.Line,
				Err:  fmt.Errorf("%w: %w", ErrMalformedRow, perr.Err),
			}})
			continue
		}

		if !c.opts.HasHeaders && c.headers == nil {
			c.headers = make([]string, len(fields))
			for i := range fields {
				c.headers[i] = "col_" + strconv.Itoa(i)
			}
		}
		if len(fields) > len(c.headers) {
			line, _ := c.reader.FieldPos(0)
			c.rows = append(c.rows, rawRow{err: &CSVReaderError{
				Op:   "read_record",
				Line: line,
				Err:  fmt.Errorf("%w: %d fields, header has %d", ErrMalformedRow, len(fields), len(c.headers)),
			}})
			continue
		}
		c.rows = append(c.rows, rawRow{fields: fields})
	}

	c.kinds = make([]columnKind, len(c.headers))
	for i := range c.headers {
		c.kinds[i] = c.inferColumn(i)
	}
	c.loaded = true
	return nil
}

// inferColumn returns the narrowest kind every non-null value of column i fits.
// A column of integers and decimals is float; a column with no values is text.
func (c *CSVReader) inferColumn(i int) columnKind {
	seen := false
	allInt, allNumber, allBool := true, true, true
	for _, row := range c.rows {
		if row.err != nil || i >= len(row.fields) {
			continue
		}
		v := strings.TrimSpace(row.fields[i])
		if c.isNull(v) {
			continue
		}
		seen = true
		isInt := isDecimalInt(v)
		allInt = allInt && isInt
		allNumber = allNumber && (isInt || isDecimalFloat(v))
		_, ok := parseBool(v)
		allBool = allBool && ok
		if !allNumber && !allBool {
			return kindString
		}
	}
	switch {
	case !seen:
		return kindString
	case allInt:
		return kindInt
	case allNumber:
		return kindFloat
	case allBool:
		return kindBool
	}
	return kindString
}

// convert maps null tokens to nil and the rest to the column's kind.
// Text columns keep the value untrimmed.
func (c *CSVReader) convert(value string, kind columnKind) interface{} {
	trimmed := strings.TrimSpace(value)
	if c.isNull(trimmed) {
		return nil
	}
	switch kind {
	case kindInt:
		i, _ := strconv.ParseInt(trimmed, 10, 64)
		return i
	case kindFloat:
		f, _ := strconv.ParseFloat(trimmed, 64)
		return f
	case kindBool:
		b, _ := parseBool(trimmed)
		return b
	}
	return value
}

func (c *CSVReader) isNull(trimmed string) bool {
	if trimmed == "" {
		return true
	}
	_, ok := c.nulls[trimmed]
	return ok
}

// isDecimalInt accepts an optional sign and base-10 digits without a leading
// zero, within int64 range.
func isDecimalInt(s string) bool {
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 || !allDigits(digits) || hasLeadingZero(digits) {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isDecimalFloat accepts plain decimal and exponent notation with a finite
// value. Inf, NaN, hex floats and underscores are rejected.
func isDecimalFloat(s string) bool {
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" {
		return false
	}
	mantissa, exp := body, ""
	if i := strings.IndexAny(body, "eE"); i >= 0 {
		mantissa, exp = body[:i], strings.TrimLeft(body[i+1:], "+-")
		if len(body[i+1:])-len(exp) > 1 || exp == "" || !allDigits(exp) {
			return false
		}
	}
	whole, frac, dotted := strings.Cut(mantissa, ".")
	if whole == "" && frac == "" {
		return false
	}
	if !allDigits(whole) || !allDigits(frac) || hasLeadingZero(whole) {
		return false
	}
	if !dotted && exp == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasLeadingZero(digits string) bool {
	return len(digits) > 1 && digits[0] == '0'
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}
