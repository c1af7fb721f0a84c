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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/dqetl"
)

func readAll(t *testing.T, r *CSVReader) []dqetl.Record {
	t.Helper()
	var out []dqetl.Record
	for {
		rec, err := r.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

// TestCSVReader_TypesColumns tests per-column type inference and null tokens
func TestCSVReader_TypesColumns(t *testing.T) {
	input := "id,userId,title,completed,score,flag\n" +
		"1,1,delectus aut autem,False,1.5,True\n" +
		"2,NA,,TRUE,,maybe\n" +
		"3,7, padded ,,null,False\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(input)))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "userId", "title", "completed", "score", "flag"}, r.Columns())

	records := readAll(t, r)
	require.Len(t, records, 3)

	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, "delectus aut autem", records[0]["title"])
	assert.Equal(t, false, records[0]["completed"])
	assert.Equal(t, 1.5, records[0]["score"])

	assert.Nil(t, records[1]["userId"])
	assert.Nil(t, records[1]["title"])
	assert.Equal(t, true, records[1]["completed"])
	assert.Nil(t, records[1]["score"])

	assert.Equal(t, " padded ", records[2]["title"])
	assert.Nil(t, records[2]["completed"])
	assert.Nil(t, records[2]["score"])

	// one value that is not a boolean keeps the whole column as text
	assert.Equal(t, "True", records[0]["flag"])
	assert.Equal(t, "maybe", records[1]["flag"])
	assert.Equal(t, "False", records[2]["flag"])

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(2), stats.NullValueCounts["score"])
	require.NoError(t, r.Close())
}

// TestCSVReader_KeepsNumericLookingText tests that leading zeros and special float spellings stay text
func TestCSVReader_KeepsNumericLookingText(t *testing.T) {
	input := "id,phone,zipcode,title,code,ratio\n" +
		"1,0123456789,02134,Inf,0x1p3,1\n" +
		"2,1234567890,10001,Infinity,12,2.5\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(input)))
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 2)

	assert.Equal(t, "0123456789", records[0]["phone"])
	assert.Equal(t, "1234567890", records[1]["phone"])
	assert.Equal(t, "02134", records[0]["zipcode"])
	assert.Equal(t, "10001", records[1]["zipcode"])
	assert.Equal(t, "Inf", records[0]["title"])
	assert.Equal(t, "Infinity", records[1]["title"])
	assert.Equal(t, "0x1p3", records[0]["code"])
	assert.Equal(t, "12", records[1]["code"])

	// integers and decimals in one column read as floats
	assert.Equal(t, 1.0, records[0]["ratio"])
	assert.Equal(t, 2.5, records[1]["ratio"])
}

// TestCSVReader_NumberForms tests which spellings count as integers and floats
func TestCSVReader_NumberForms(t *testing.T) {
	tests := []struct {
		value string
		isInt bool
		isNum bool
	}{
		{"0", true, true},
		{"-12", true, true},
		{"+7", true, true},
		{"007", false, false},
		{"1.5", false, true},
		{"0.25", false, true},
		{".5", false, true},
		{"1e3", false, true},
		{"-2.5E-2", false, true},
		{"1e400", false, false},
		{"9223372036854775808", false, false},
		{"inf", false, false},
		{"NaN", false, false},
		{"0x10", false, false},
		{"1_000", false, false},
		{"--1", false, false},
		{"1.2.3", false, false},
		{"e5", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.isInt, isDecimalInt(tt.value))
			assert.Equal(t, tt.isNum, tt.isInt || isDecimalFloat(tt.value))
		})
	}
}

// TestCSVReader_EmptyInput tests that an empty file is an empty dataset
func TestCSVReader_EmptyInput(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("")))
	require.NoError(t, err)
	assert.Empty(t, r.Columns())
	assert.Empty(t, readAll(t, r))
}

// TestCSVReader_ShortRowsPadWithNull tests rows with fewer fields than the header
func TestCSVReader_ShortRowsPadWithNull(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("id,name,email\n1,Bret\n")))
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, "Bret", records[0]["name"])
	v, ok := records[0]["email"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

// TestCSVReader_LongRowIsError tests rows with more fields than the header
func TestCSVReader_LongRowIsError(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("id\n1,2\n3\n")))
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	var readerErr *CSVReaderError
	require.ErrorAs(t, err, &readerErr)
	assert.ErrorIs(t, err, ErrMalformedRow)
	assert.Equal(t, 2, readerErr.Line)

	// reading goes on with the next row
	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec["id"])

	_, err = r.Read(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(1), r.Stats().MalformedRows)
	assert.Equal(t, int64(1), r.Stats().RecordsRead)
}

// TestCSVReader_Options tests custom delimiter, headerless input and null tokens
func TestCSVReader_Options(t *testing.T) {
	r, err := NewCSVReader(
		io.NopCloser(strings.NewReader("1;-\n2;x\n")),
		WithCSVComma(';'),
		WithCSVHasHeaders(false),
		WithCSVNullValues("-"),
	)
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Nil(t, records[0]["col_1"])
	assert.Equal(t, "x", records[1]["col_1"])
	assert.Equal(t, []string{"col_0", "col_1"}, r.Columns())
}

// TestCSVReader_ContextCancelled tests that a cancelled context stops reading
func TestCSVReader_ContextCancelled(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("id\n1\n")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
