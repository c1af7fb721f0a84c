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
	"fmt"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/remediation"
)

// ErrNoParent is returned by a foreign-key rule constructed without a parent dataset.
var ErrNoParent = errors.New("foreign key check has no parent dataset")

// PrimaryKeyRule keeps records whose key is non-null, numeric and unique.
// Every copy of a duplicated key is dropped, not just the later ones.
type PrimaryKeyRule struct {
	Column    string
	Validator FieldValidator
}

// PrimaryKey returns the primary-key check for column.
func PrimaryKey(column string) *PrimaryKeyRule {
	return &PrimaryKeyRule{
		Column:    column,
		Validator: FieldValidator{Required: true, DataType: FieldTypeNumber},
	}
}

// Name implements dqetl.Rule.
func (pk *PrimaryKeyRule) Name() string {
	return fmt.Sprintf("primary-key(%s)", pk.Column)
}

// Apply implements dqetl.Rule. A dataset without the key column loses every record.
func (pk *PrimaryKeyRule) Apply(ctx context.Context, ds *dqetl.Dataset, rec dqetl.Recorder) (*dqetl.Dataset, error) {
	if !ds.HasColumn(pk.Column) {
		for i := range ds.Records {
			rec.Record(remediation.Entry{
				Table:  ds.Table,
				Column: pk.Column,
				Action: remediation.Drop,
				Reason: fmt.Sprintf("missing %s column in %s table, row %d dropped", pk.Column, ds.Table, i+1),
			})
		}
		return ds.Derive(make([]dqetl.Record, 0)), nil
	}

	counts := make(map[string]int, len(ds.Records))
	for _, r := range ds.Records {
		if k, ok := pk.key(r[pk.Column]); ok {
			counts[k]++
		}
	}

	out := make([]dqetl.Record, 0, len(ds.Records))
	for i, r := range ds.Records {
		v := r[pk.Column]
		k, ok := pk.key(v)
		if ok && counts[k] == 1 {
			out = append(out, r)
			continue
		}

		problem := "null or non-numeric"
		if ok {
			problem = "duplicate"
		}
		id := keyID(v)
		rec.Record(remediation.Entry{
			Table:    ds.Table,
			Column:   pk.Column,
			RecordID: id,
			Action:   remediation.Drop,
			Reason:   fmt.Sprintf("%s %s in %s table at id %s (row %d), row dropped", problem, pk.Column, ds.Table, idOrUnknown(id), i+1),
		})
	}
	return ds.Derive(out), nil
}

// ForeignKeyRule keeps records whose column value is present in the parent's key set.
type ForeignKeyRule struct {
	Column    string
	Parent    *dqetl.Dataset
	ParentKey string
}

// ForeignKey returns the foreign-key check of column against parent.parentKey.
// parent should be the cleaned parent dataset; it is only read.
func ForeignKey(column string, parent *dqetl.Dataset, parentKey string) *ForeignKeyRule {
	if parentKey == "" {
		parentKey = dqetl.DefaultKey
	}
	return &ForeignKeyRule{Column: column, Parent: parent, ParentKey: parentKey}
}

// Name implements dqetl.Rule.
func (fk *ForeignKeyRule) Name() string {
	parent := "?"
	if fk.Parent != nil {
		parent = fk.Parent.Table
	}
	return fmt.Sprintf("foreign-key(%s->%s.%s)", fk.Column, parent, fk.ParentKey)
}

// Apply implements dqetl.Rule. Null values and values missing from the parent
// are both dropped but logged with different reasons.
func (fk *ForeignKeyRule) Apply(ctx context.Context, ds *dqetl.Dataset, rec dqetl.Recorder) (*dqetl.Dataset, error) {
	if fk.Parent == nil {
		return nil, ErrNoParent
	}
	if !ds.HasColumn(fk.Column) {
		return nil, &dqetl.SchemaError{Table: ds.Table, Column: fk.Column, Rule: "foreign-key"}
	}
	if !fk.Parent.HasColumn(fk.ParentKey) && fk.Parent.Len() > 0 {
		return nil, &dqetl.SchemaError{Table: fk.Parent.Table, Column: fk.ParentKey, Rule: "foreign-key"}
	}

	parentKeys := fk.Parent.KeySet(fk.ParentKey)
	out := make([]dqetl.Record, 0, len(ds.Records))
	for _, r := range ds.Records {
		v := r[fk.Column]
		id := ds.RecordID(r)

		k, ok := dqetl.KeyOf(v)
		if !ok {
			rec.Record(remediation.Entry{
				Table:    ds.Table,
				Column:   fk.Column,
				RecordID: id,
				Action:   remediation.Drop,
				Reason:   fmt.Sprintf("null or invalid %s in %s table at id %s (value=%s), row dropped", fk.Column, ds.Table, idOrUnknown(id), describe(v)),
			})
			continue
		}
		if _, found := parentKeys[k]; !found {
			rec.Record(remediation.Entry{
				Table:    ds.Table,
				Column:   fk.Column,
				RecordID: id,
				Action:   remediation.Drop,
				Reason:   fmt.Sprintf("%s %s in %s table at id %s not found in parent table %s, row dropped", fk.Column, dqetl.Stringify(v), ds.Table, idOrUnknown(id), fk.Parent.Table),
			})
			continue
		}
		out = append(out, r)
	}
	return ds.Derive(out), nil
}

// key returns the canonical key of a value the validator accepts.
func (pk *PrimaryKeyRule) key(v interface{}) (string, bool) {
	if !pk.Validator.Valid(v) {
		return "", false
	}
	return dqetl.KeyOf(v)
}

func keyID(v interface{}) string {
	if dqetl.IsNull(v) {
		return ""
	}
	return dqetl.Stringify(v)
}
