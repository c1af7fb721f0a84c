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
	"strings"

	"github.com/zeebo/xxh3"
)

// DefaultKey is the primary-key column used when a dataset does not name one.
const DefaultKey = "id"

// Dataset is an ordered sequence of records sharing a fixed column schema.
type Dataset struct {
	Name    string   // logical dataset name, e.g. "posts"
	Table   string   // target table name, used in remediation entries
	Key     string   // primary-key column
	Columns []string // column order as read from the source
	Records []Record
}

// NewDataset creates an empty dataset with the given column order.
func NewDataset(name, table string, columns []string) *Dataset {
	if table == "" {
		table = name
	}
	return &Dataset{
		Name:    name,
		Table:   table,
		Key:     DefaultKey,
		Columns: append([]string(nil), columns...),
		Records: make([]Record, 0),
	}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// HasColumn reports whether the column is part of the dataset schema.
func (d *Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Derive returns a dataset with the same metadata holding records.
// The column slice is copied; records are shared, not copied.
func (d *Dataset) Derive(records []Record) *Dataset {
	return &Dataset{
		Name:    d.Name,
		Table:   d.Table,
		Key:     d.Key,
		Columns: append([]string(nil), d.Columns...),
		Records: records,
	}
}

// Clone returns a deep copy of the dataset: every record map is copied.
func (d *Dataset) Clone() *Dataset {
	records := make([]Record, len(d.Records))
	for i, r := range d.Records {
		records[i] = r.Copy()
	}
	return d.Derive(records)
}

// RecordID returns the stringified primary key of r, or "" when unknown.
func (d *Dataset) RecordID(r Record) string {
	key := d.Key
	if key == "" {
		key = DefaultKey
	}
	v, ok := r[key]
	if !ok || IsNull(v) {
		return ""
	}
	return Stringify(v)
}

// KeySet returns the canonical keys present in column.
// Null and non-key values are skipped.
func (d *Dataset) KeySet(column string) map[string]struct{} {
	set := make(map[string]struct{}, len(d.Records))
	for _, r := range d.Records {
		if k, ok := KeyOf(r[column]); ok {
			set[k] = struct{}{}
		}
	}
	return set
}

// Fingerprint hashes the columns and every value in order.
// Two datasets with the same fingerprint serialize to the same CSV.
func (d *Dataset) Fingerprint() uint64 {
	h := xxh3.New()
	h.WriteString(strings.Join(d.Columns, "\x1f"))
	h.WriteString("\x1e")
	for _, r := range d.Records {
		for _, c := range d.Columns {
			v := r[c]
			if IsNull(v) {
				h.WriteString("\x00")
			} else {
				h.WriteString(Stringify(v))
			}
			h.WriteString("\x1f")
		}
		h.WriteString("\x1e")
	}
	return h.Sum64()
}
