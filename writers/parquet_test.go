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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/dqetl"
)

// bufferCloser collects parquet output in memory
type bufferCloser struct {
	bytes.Buffer
	closed  int
	aborted bool
}

func (b *bufferCloser) Close() error {
	b.closed++
	return nil
}

func (b *bufferCloser) Abort() error {
	b.aborted = true
	return nil
}

func readParquet(t *testing.T, data []byte) arrow.Table {
	t.Helper()
	rdr, err := file.NewParquetReader(bytes.NewReader(data))
	require.NoError(t, err)
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)
	tbl, err := fr.ReadTable(context.Background())
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl
}

var postsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "userId", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "title", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "done", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
}, nil)

// TestParquetWriter_FixedSchema tests writing against a schema and reading it back
func TestParquetWriter_FixedSchema(t *testing.T) {
	out := &bufferCloser{}
	writer, err := NewParquetWriter(out,
		WithSchema(postsSchema),
		WithBatchSize(2),
		WithCompression(compress.Codecs.Gzip),
		WithMetadata(map[string]string{"table": "posts"}),
	)
	require.NoError(t, err)

	records := []dqetl.Record{
		{"id": int64(1), "userId": int64(1), "title": "a", "done": true},
		{"id": int64(2), "userId": float64(3), "title": int64(42), "done": false},
		{"id": int64(3), "userId": "oops", "title": nil, "done": "maybe"},
	}
	for _, r := range records {
		require.NoError(t, writer.Write(context.Background(), r))
	}
	require.NoError(t, writer.Close())
	assert.Equal(t, 1, out.closed, "output closed exactly once")

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["userId"])
	assert.Equal(t, int64(1), stats.NullValueCounts["title"])
	assert.Equal(t, int64(1), stats.NullValueCounts["done"])

	tbl := readParquet(t, out.Bytes())
	assert.Equal(t, int64(3), tbl.NumRows())
	require.Equal(t, int64(4), tbl.NumCols())
	assert.Equal(t, "id", tbl.Schema().Field(0).Name)

	assert.Equal(t, []string{"a", "42", "<null>"}, stringColumn(tbl, 2))
}

func stringColumn(tbl arrow.Table, i int) []string {
	var out []string
	for _, chunk := range tbl.Column(i).Data().Chunks() {
		col := chunk.(*array.String)
		for j := 0; j < col.Len(); j++ {
			if col.IsNull(j) {
				out = append(out, "<null>")
				continue
			}
			out = append(out, col.Value(j))
		}
	}
	return out
}

// TestParquetWriter_InferredSchema tests schema inference in dataset column order
func TestParquetWriter_InferredSchema(t *testing.T) {
	out := &bufferCloser{}
	writer, err := NewParquetWriter(out)
	require.NoError(t, err)

	writer.SetColumns([]string{"name", "id", "score"})
	require.NoError(t, writer.Write(context.Background(), dqetl.Record{"id": int64(1), "name": "Bret", "score": 1.5}))
	require.NoError(t, writer.Close())

	tbl := readParquet(t, out.Bytes())
	assert.Equal(t, int64(1), tbl.NumRows())
	assert.Equal(t, "name", tbl.Schema().Field(0).Name)
	assert.Equal(t, arrow.PrimitiveTypes.Int64.ID(), tbl.Schema().Field(1).Type.ID())
	assert.Equal(t, arrow.PrimitiveTypes.Float64.ID(), tbl.Schema().Field(2).Type.ID())
}

// TestParquetWriter_EmptyDataset tests that no records still yields a readable file
func TestParquetWriter_EmptyDataset(t *testing.T) {
	out := &bufferCloser{}
	writer, err := NewParquetWriter(out, WithSchema(postsSchema))
	require.NoError(t, err)
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	tbl := readParquet(t, out.Bytes())
	assert.Equal(t, int64(0), tbl.NumRows())
	assert.Equal(t, int64(4), tbl.NumCols())
}

// TestParquetWriter_Abort tests that abort skips the footer and aborts the output
func TestParquetWriter_Abort(t *testing.T) {
	out := &bufferCloser{}
	writer, err := NewParquetWriter(out, WithSchema(postsSchema))
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), dqetl.Record{"id": int64(1)}))
	require.NoError(t, writer.Abort())

	assert.True(t, out.aborted)
	assert.Equal(t, 0, out.closed)
	assert.NoError(t, writer.Close())
	assert.Equal(t, 0, out.closed)
}

// TestParquetWriter_ErrorHandling tests error conditions
func TestParquetWriter_ErrorHandling(t *testing.T) {
	t.Run("write_after_close", func(t *testing.T) {
		writer, err := NewParquetWriter(&bufferCloser{}, WithSchema(postsSchema))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		err = writer.Write(context.Background(), dqetl.Record{"id": int64(1)})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	})

	t.Run("invalid_batch_size", func(t *testing.T) {
		_, err := NewParquetWriter(&bufferCloser{}, WithBatchSize(0))
		var pwErr *ParquetWriterError
		assert.ErrorAs(t, err, &pwErr)
	})

	t.Run("cancelled_context", func(t *testing.T) {
		writer, err := NewParquetWriter(&bufferCloser{}, WithSchema(postsSchema))
		require.NoError(t, err)
		defer writer.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, writer.Write(ctx, dqetl.Record{"id": int64(1)}), context.Canceled)
	})
}

// TestParquetWriter_BatchProcessing tests batching behavior
func TestParquetWriter_BatchProcessing(t *testing.T) {
	writer, err := NewParquetWriter(&bufferCloser{}, WithBatchSize(3), WithRowGroupSize(5))
	require.NoError(t, err)
	defer writer.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, writer.Write(context.Background(), dqetl.Record{"id": int64(i), "value": float64(i * 10)}))
	}

	stats := writer.Stats()
	assert.Equal(t, int64(10), stats.RecordsWritten)
	assert.Equal(t, int64(3), stats.BatchesWritten)
	assert.GreaterOrEqual(t, stats.FlushDuration, time.Duration(0))
}
