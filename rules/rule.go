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
	"fmt"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/remediation"
)

// Remedy is what happens to a record whose column value fails validation.
type Remedy struct {
	Action   remediation.Action
	Value    interface{} // replacement value for Substitute and BlankOut
	From     string      // Substitute copies this column instead of Value
	Fallback interface{} // used when From is null
}

// DropRow removes the failing record.
func DropRow() Remedy {
	return Remedy{Action: remediation.Drop}
}

// SubstituteWith replaces the failing value with v.
func SubstituteWith(v interface{}) Remedy {
	return Remedy{Action: remediation.Substitute, Value: v}
}

// SubstituteFrom replaces the failing value with the record's value in column,
// or with fallback when that is null too.
func SubstituteFrom(column string, fallback interface{}) Remedy {
	return Remedy{Action: remediation.Substitute, From: column, Fallback: fallback}
}

// BlankOut replaces the failing value with the empty string.
func BlankOut() Remedy {
	return Remedy{Action: remediation.BlankOut, Value: ""}
}

func (r Remedy) replacement(rec dqetl.Record) interface{} {
	if r.From == "" {
		return r.Value
	}
	if v := rec[r.From]; !dqetl.IsNull(v) {
		return v
	}
	return r.Fallback
}

// ColumnRule validates one column record by record and applies a Remedy to
// every record that fails.
type ColumnRule struct {
	RuleName  string
	Column    string
	Validator FieldValidator
	Remedy    Remedy
	// Problem describes a failing value in log entries, e.g. "blank" or "invalid".
	Problem string
}

// Name implements dqetl.Rule.
func (cr *ColumnRule) Name() string {
	return fmt.Sprintf("%s(%s)", cr.RuleName, cr.Column)
}

// Apply implements dqetl.Rule. Records that pass are shared with the input;
// remediated records are copies.
func (cr *ColumnRule) Apply(ctx context.Context, ds *dqetl.Dataset, rec dqetl.Recorder) (*dqetl.Dataset, error) {
	if !ds.HasColumn(cr.Column) {
		return nil, &dqetl.SchemaError{Table: ds.Table, Column: cr.Column, Rule: cr.RuleName}
	}
	if cr.Remedy.From != "" && !ds.HasColumn(cr.Remedy.From) {
		return nil, &dqetl.SchemaError{Table: ds.Table, Column: cr.Remedy.From, Rule: cr.RuleName}
	}

	out := make([]dqetl.Record, 0, len(ds.Records))
	for _, r := range ds.Records {
		v := r[cr.Column]
		if cr.Validator.Valid(v) {
			out = append(out, r)
			continue
		}

		id := ds.RecordID(r)
		switch cr.Remedy.Action {
		case remediation.Drop:
			rec.Record(cr.entry(ds, id, v, "row dropped"))
		default:
			fixed := r.Copy()
			nv := cr.Remedy.replacement(r)
			fixed[cr.Column] = nv
			out = append(out, fixed)
			rec.Record(cr.entry(ds, id, v, fmt.Sprintf("replaced with %q", dqetl.Stringify(nv))))
		}
	}
	return ds.Derive(out), nil
}

func (cr *ColumnRule) entry(ds *dqetl.Dataset, id string, v interface{}, outcome string) remediation.Entry {
	problem := cr.Problem
	if problem == "" {
		problem = "invalid"
	}
	return remediation.Entry{
		Table:    ds.Table,
		Column:   cr.Column,
		RecordID: id,
		Action:   cr.Remedy.Action,
		Reason:   fmt.Sprintf("%s %s in %s table at id %s (value=%s), %s", problem, cr.Column, ds.Table, idOrUnknown(id), describe(v), outcome),
	}
}

func idOrUnknown(id string) string {
	if id == "" {
		return "<unknown>"
	}
	return id
}

func describe(v interface{}) string {
	if dqetl.IsNull(v) {
		return "null"
	}
	return fmt.Sprintf("%q", dqetl.Stringify(v))
}
