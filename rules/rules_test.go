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

package rules

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/remediation"
)

// entryCollector is a Recorder that keeps every entry for assertions
type entryCollector struct {
	entries []remediation.Entry
}

func (c *entryCollector) Record(e remediation.Entry) {
	c.entries = append(c.entries, e)
}

func (c *entryCollector) actions() map[remediation.Action]int {
	out := make(map[remediation.Action]int)
	for _, e := range c.entries {
		out[e.Action]++
	}
	return out
}

func newDataset(table string, columns []string, records ...dqetl.Record) *dqetl.Dataset {
	ds := dqetl.NewDataset(table, table, columns)
	ds.Records = append(ds.Records, records...)
	return ds
}

func ids(ds *dqetl.Dataset) []interface{} {
	out := make([]interface{}, 0, ds.Len())
	for _, r := range ds.Records {
		out = append(out, r["id"])
	}
	return out
}

// TestPrimaryKey_DropsDuplicatesNullsAndText tests the primary-key check
func TestPrimaryKey_DropsDuplicatesNullsAndText(t *testing.T) {
	ds := newDataset("posts", []string{"id", "title"},
		dqetl.Record{"id": int64(1), "title": "a"},
		dqetl.Record{"id": int64(2), "title": "b"},
		dqetl.Record{"id": float64(2), "title": "dup"},
		dqetl.Record{"id": nil, "title": "null"},
		dqetl.Record{"id": "x", "title": "text"},
		dqetl.Record{"id": math.NaN(), "title": "nan"},
		dqetl.Record{"id": true, "title": "bool"},
		dqetl.Record{"id": int64(3), "title": "c"},
	)
	rec := &entryCollector{}

	out, err := PrimaryKey("id").Apply(context.Background(), ds, rec)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{int64(1), int64(3)}, ids(out))
	assert.Len(t, rec.entries, 6)
	assert.Equal(t, 8, ds.Len(), "input must not change")
	assert.Contains(t, rec.entries[0].Reason, "duplicate id")
	assert.Equal(t, "2", rec.entries[0].RecordID)
}

// TestPrimaryKey_Validator tests a key check narrowed to integer keys
func TestPrimaryKey_Validator(t *testing.T) {
	ds := newDataset("posts", []string{"id"},
		dqetl.Record{"id": int64(1)},
		dqetl.Record{"id": 2.5},
		dqetl.Record{"id": int64(3)},
	)
	rec := &entryCollector{}

	pk := PrimaryKey("id")
	pk.Validator.DataType = FieldTypeInt
	out, err := pk.Apply(context.Background(), ds, rec)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{int64(1), int64(3)}, ids(out))
	require.Len(t, rec.entries, 1)
	assert.Contains(t, rec.entries[0].Reason, "null or non-numeric id")
}

// TestPrimaryKey_MissingColumnDropsAll tests that a dataset without the key column empties out
func TestPrimaryKey_MissingColumnDropsAll(t *testing.T) {
	ds := newDataset("users", []string{"name"},
		dqetl.Record{"name": "a"},
		dqetl.Record{"name": "b"},
	)
	rec := &entryCollector{}

	out, err := PrimaryKey("id").Apply(context.Background(), ds, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Len(t, rec.entries, 2)
}

// TestForeignKey_SeparateReasons tests null and missing-parent drops are logged differently
func TestForeignKey_SeparateReasons(t *testing.T) {
	users := newDataset("users", []string{"id"},
		dqetl.Record{"id": int64(1)},
		dqetl.Record{"id": int64(2)},
	)
	posts := newDataset("posts", []string{"id", "userId"},
		dqetl.Record{"id": int64(10), "userId": int64(1)},
		dqetl.Record{"id": int64(11), "userId": int64(99)},
		dqetl.Record{"id": int64(12), "userId": nil},
		dqetl.Record{"id": int64(13), "userId": float64(2)},
	)
	rec := &entryCollector{}

	out, err := ForeignKey("userId", users, "id").Apply(context.Background(), posts, rec)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{int64(10), int64(13)}, ids(out))
	require.Len(t, rec.entries, 2)
	assert.Contains(t, rec.entries[0].Reason, "not found in parent table users")
	assert.Equal(t, "11", rec.entries[0].RecordID)
	assert.Contains(t, rec.entries[1].Reason, "null or invalid userId")
	assert.Equal(t, 2, users.Len(), "parent must not change")
}

// TestForeignKey_NoParent tests the error for a missing parent dataset
func TestForeignKey_NoParent(t *testing.T) {
	posts := newDataset("posts", []string{"id", "userId"})
	_, err := ForeignKey("userId", nil, "id").Apply(context.Background(), posts, dqetl.Discard)
	assert.ErrorIs(t, err, ErrNoParent)
}

// TestColumnRule_MissingColumnIsSchemaError tests that rules fail loudly on a missing column
func TestColumnRule_MissingColumnIsSchemaError(t *testing.T) {
	ds := newDataset("posts", []string{"id", "body"}, dqetl.Record{"id": int64(1), "body": "x"})

	_, err := TitleSoft("title").Apply(context.Background(), ds, dqetl.Discard)

	var schemaErr *dqetl.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "posts", schemaErr.Table)
	assert.Equal(t, "title", schemaErr.Column)

	_, err = ForeignKey("userId", ds, "id").Apply(context.Background(), ds, dqetl.Discard)
	assert.True(t, errors.As(err, &schemaErr))
}

// TestTitleSoft_SubstitutesWithoutMutating tests substitution copies the record
func TestTitleSoft_SubstitutesWithoutMutating(t *testing.T) {
	original := dqetl.Record{"id": int64(10), "title": nil}
	ds := newDataset("posts", []string{"id", "title"},
		original,
		dqetl.Record{"id": int64(11), "title": "kept"},
	)
	rec := &entryCollector{}

	out, err := TitleSoft("title").Apply(context.Background(), ds, rec)
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, "untitled", out.Records[0]["title"])
	assert.Nil(t, original["title"])
	assert.Equal(t, map[remediation.Action]int{remediation.Substitute: 1}, rec.actions())
	assert.Equal(t, "10", rec.entries[0].RecordID)
	assert.Equal(t, "posts", rec.entries[0].Table)
}

// TestTitleStrict_Drops tests that strict title drops null titles
func TestTitleStrict_Drops(t *testing.T) {
	ds := newDataset("todos", []string{"id", "title"},
		dqetl.Record{"id": int64(1), "title": nil},
		dqetl.Record{"id": int64(2), "title": "x"},
	)
	out, err := TitleStrict("title").Apply(context.Background(), ds, dqetl.Discard)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2)}, ids(out))
}

// TestEmailBlank_RetainsRecord tests that an invalid email is blanked and the record kept
func TestEmailBlank_RetainsRecord(t *testing.T) {
	ds := newDataset("users", []string{"id", "email"},
		dqetl.Record{"id": int64(1), "email": "not-an-email"},
		dqetl.Record{"id": int64(2), "email": "Sincere@april.biz"},
		dqetl.Record{"id": int64(3), "email": nil},
	)
	rec := &entryCollector{}

	out, err := EmailBlank("email").Apply(context.Background(), ds, rec)
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "", out.Records[0]["email"])
	assert.Equal(t, "Sincere@april.biz", out.Records[1]["email"])
	assert.Equal(t, "", out.Records[2]["email"])
	assert.Equal(t, map[remediation.Action]int{remediation.BlankOut: 2}, rec.actions())
}

// TestEmailDrop_DropsEveryInvalidRow tests that every failing row is dropped
func TestEmailDrop_DropsEveryInvalidRow(t *testing.T) {
	ds := newDataset("comments", []string{"id", "email"},
		dqetl.Record{"id": int64(1), "email": "bad"},
		dqetl.Record{"id": int64(2), "email": "ok@example.com"},
		dqetl.Record{"id": int64(3), "email": "also bad"},
	)
	out, err := EmailDrop("email").Apply(context.Background(), ds, dqetl.Discard)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2)}, ids(out))
}

// TestURLRules tests url-drop and url-fallback policies
func TestURLRules(t *testing.T) {
	ds := newDataset("photos", []string{"id", "url", "thumbnailUrl"},
		dqetl.Record{"id": int64(1), "url": "https://via.placeholder.com/600/92c952", "thumbnailUrl": "ftp://x"},
		dqetl.Record{"id": int64(2), "url": "www.example.com/a", "thumbnailUrl": "http://ok"},
		dqetl.Record{"id": int64(3), "url": "not a url", "thumbnailUrl": "http://ok"},
		dqetl.Record{"id": int64(4), "url": nil, "thumbnailUrl": nil},
	)
	rec := &entryCollector{}

	out, err := URLDrop("url").Apply(context.Background(), ds, rec)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, ids(out))

	out, err = URLFallback("thumbnailUrl", "").Apply(context.Background(), out, rec)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, DefaultFallbackURL, out.Records[0]["thumbnailUrl"])
	assert.Equal(t, "http://ok", out.Records[1]["thumbnailUrl"])
	assert.Equal(t, map[remediation.Action]int{remediation.Drop: 2, remediation.Substitute: 1}, rec.actions())
}

// TestUsernameFill tests the username substitution from name
func TestUsernameFill(t *testing.T) {
	ds := newDataset("users", []string{"id", "name", "username"},
		dqetl.Record{"id": int64(1), "name": "Leanne Graham", "username": nil},
		dqetl.Record{"id": int64(2), "name": nil, "username": nil},
		dqetl.Record{"id": int64(3), "name": "Ervin", "username": "Antonette"},
	)
	out, err := UsernameFill("username", "name").Apply(context.Background(), ds, dqetl.Discard)
	require.NoError(t, err)

	assert.Equal(t, "Leanne Graham", out.Records[0]["username"])
	assert.Equal(t, "anonymous", out.Records[1]["username"])
	assert.Equal(t, "Antonette", out.Records[2]["username"])
}

// TestPhone tests ten-digit phone validation
func TestPhone(t *testing.T) {
	ds := newDataset("users", []string{"id", "phone"},
		dqetl.Record{"id": int64(1), "phone": int64(1234567890)},
		dqetl.Record{"id": int64(2), "phone": "1-770-736-8031 x56442"},
		dqetl.Record{"id": int64(3), "phone": "0123456789"},
	)
	out, err := Phone("phone").Apply(context.Background(), ds, dqetl.Discard)
	require.NoError(t, err)

	assert.Equal(t, int64(1234567890), out.Records[0]["phone"])
	assert.Equal(t, "", out.Records[1]["phone"])
	assert.Equal(t, "0123456789", out.Records[2]["phone"])
}

// TestBoolean tests that only values printing as True or False survive
func TestBoolean(t *testing.T) {
	ds := newDataset("todos", []string{"id", "completed"},
		dqetl.Record{"id": int64(1), "completed": "maybe"},
		dqetl.Record{"id": int64(2), "completed": "True"},
		dqetl.Record{"id": int64(3), "completed": false},
		dqetl.Record{"id": int64(4), "completed": nil},
		dqetl.Record{"id": int64(5), "completed": "true"},
	)
	rec := &entryCollector{}

	out, err := Boolean("completed").Apply(context.Background(), ds, rec)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2), int64(3)}, ids(out))
	require.Len(t, rec.entries, 3)
	assert.True(t, strings.Contains(rec.entries[0].Reason, `value="maybe"`))
}

// TestSoftRulesNeverShrink tests that substitution rules keep every record
func TestSoftRulesNeverShrink(t *testing.T) {
	ds := newDataset("x", []string{"id", "title", "name", "email", "thumbnailUrl", "phone"},
		dqetl.Record{"id": int64(1)},
		dqetl.Record{"id": int64(2), "title": "t", "name": "n", "email": "bad", "thumbnailUrl": "bad", "phone": "bad"},
	)
	soft := []dqetl.Rule{TitleSoft("title"), NameSoft("name"), EmailBlank("email"), URLFallback("thumbnailUrl", ""), Phone("phone")}
	for _, r := range soft {
		out, err := r.Apply(context.Background(), ds, dqetl.Discard)
		require.NoError(t, err, r.Name())
		assert.Equal(t, ds.Len(), out.Len(), r.Name())
	}
}

// TestFieldValidator_DataTypes tests type checks carried by the validator
func TestFieldValidator_DataTypes(t *testing.T) {
	tests := []struct {
		name  string
		fv    FieldValidator
		value interface{}
		want  bool
	}{
		{"int ok", FieldValidator{DataType: FieldTypeInt}, int64(1), true},
		{"int rejects float", FieldValidator{DataType: FieldTypeInt}, 1.5, false},
		{"number accepts float", FieldValidator{DataType: FieldTypeNumber}, 1.5, true},
		{"number rejects bool", FieldValidator{DataType: FieldTypeNumber}, true, false},
		{"email type", FieldValidator{DataType: FieldTypeEmail}, "a@b.io", true},
		{"url type", FieldValidator{DataType: FieldTypeURL}, "ftp://x", false},
		{"null allowed without checks", FieldValidator{}, nil, true},
		{"null rejected when required", FieldValidator{Required: true}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fv.Valid(tt.value))
		})
	}
}
