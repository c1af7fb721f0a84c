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

package schema

import (
	"github.com/apache/arrow/go/v12/arrow"
)

// ArrowSchema maps the table's data columns to a nullable Arrow schema for the
// parquet archive. Dataset columns keep their names; callers pass the dataset
// columns so that dotted names like address.street are matched to address_street.
func ArrowSchema(t Table, columns []string) *arrow.Schema {
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}
	fields := make([]arrow.Field, 0, len(columns))
	for _, name := range columns {
		typ := arrow.DataType(arrow.BinaryTypes.String)
		if c, ok := t.Column(ColumnName(name)); ok {
			typ = arrowType(c.Type)
		}
		fields = append(fields, arrow.Field{Name: name, Type: typ, Nullable: true})
	}
	md := arrow.NewMetadata([]string{"table", "key"}, []string{t.Name, t.Key})
	return arrow.NewSchema(fields, &md)
}

func arrowType(t ColumnType) arrow.DataType {
	switch t {
	case Integer:
		return arrow.PrimitiveTypes.Int64
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}
