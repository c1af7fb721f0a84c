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

// Package schema holds the relational definitions of the six target tables
// and renders them as DDL or Arrow schemas.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/dqetl"
)

// ColumnType is the logical type of a column.
type ColumnType int

const (
	Integer ColumnType = iota
	Text
	Boolean
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Audit column names appended to every table.
const (
	CreatedBy = "created_by"
	CreatedAt = "created_at"
	UpdatedBy = "updated_by"
	UpdatedAt = "updated_at"
)

// DefaultAuditUser fills created_by and updated_by when none is configured.
const DefaultAuditUser = "dqetl"

// Column is a data column of a table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// ForeignKey references the parent table's key and cascades deletes.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table describes one target table.
type Table struct {
	Name       string
	Key        string
	Columns    []Column
	ForeignKey *ForeignKey
}

// ColumnNames returns the data column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ConstraintName is the name of the table's foreign key constraint.
func (t Table) ConstraintName() string {
	return t.Name + "_fk"
}

func text(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Text}
	}
	return cols
}

func concat(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	Users = Table{
		Name: "users",
		Key:  "id",
		Columns: concat(
			[]Column{{Name: "id", Type: Integer, NotNull: true}},
			text("name", "username", "email", "phone", "website",
				"address_street", "address_suite", "address_city", "address_zipcode",
				"address_geo_lat", "address_geo_lng",
				"company_name", "company_catchPhrase", "company_bs"),
		),
	}

	Posts = Table{
		Name: "posts",
		Key:  "id",
		Columns: concat(
			[]Column{{Name: "userId", Type: Integer}, {Name: "id", Type: Integer, NotNull: true}},
			text("title", "body"),
		),
		ForeignKey: &ForeignKey{Column: "userId", RefTable: "users", RefColumn: "id"},
	}

	Comments = Table{
		Name: "comments",
		Key:  "id",
		Columns: concat(
			[]Column{{Name: "postId", Type: Integer}, {Name: "id", Type: Integer, NotNull: true}},
			text("name", "email", "body"),
		),
		ForeignKey: &ForeignKey{Column: "postId", RefTable: "posts", RefColumn: "id"},
	}

	Albums = Table{
		Name: "albums",
		Key:  "id",
		Columns: concat(
			[]Column{{Name: "userId", Type: Integer}, {Name: "id", Type: Integer, NotNull: true}},
			text("title"),
		),
		ForeignKey: &ForeignKey{Column: "userId", RefTable: "users", RefColumn: "id"},
	}

	Photos = Table{
		Name: "photos",
		Key:  "id",
		Columns: concat(
			[]Column{{Name: "albumId", Type: Integer}, {Name: "id", Type: Integer, NotNull: true}},
			text("title", "url", "thumbnailUrl"),
		),
		ForeignKey: &ForeignKey{Column: "albumId", RefTable: "albums", RefColumn: "id"},
	}

	Todos = Table{
		Name: "todos",
		Key:  "id",
		Columns: []Column{
			{Name: "userId", Type: Integer, NotNull: true},
			{Name: "id", Type: Integer, NotNull: true},
			{Name: "title", Type: Text},
			{Name: "completed", Type: Boolean},
		},
		ForeignKey: &ForeignKey{Column: "userId", RefTable: "users", RefColumn: "id"},
	}
)

// Tables returns all tables, parents before children.
func Tables() []Table {
	return []Table{Users, Posts, Comments, Albums, Photos, Todos}
}

// Lookup finds a table by name.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// ColumnName maps a dataset column to its store column: '.' becomes '_'.
func ColumnName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// Coerce converts v to the Go type the column's store type expects.
// Nulls stay nil and values that cannot be converted are returned unchanged.
func (c Column) Coerce(v interface{}) interface{} {
	if dqetl.IsNull(v) {
		return nil
	}
	switch c.Type {
	case Text:
		return dqetl.Stringify(v)
	case Integer:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
				return int64(x)
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			switch x {
			case "True", "true", "TRUE":
				return true
			case "False", "false", "FALSE":
				return false
			}
		}
	}
	return v
}

// SQLDialect renders the dialect-specific parts of DDL.
type SQLDialect interface {
	QuoteIdent(name string) string
	TypeName(t ColumnType) string
	TimestampType() string
	// UpdatedAtClause is appended to the updated_at definition, e.g. ON UPDATE CURRENT_TIMESTAMP.
	UpdatedAtClause() string
	// CreateTable wraps a column list in a create-if-absent statement.
	CreateTable(table, body string) string
}

// CreateTableSQL renders the create-if-absent statement for t.
func CreateTableSQL(d SQLDialect, t Table, auditUser string) string {
	if auditUser == "" {
		auditUser = DefaultAuditUser
	}
	user := quoteLiteral(auditUser)

	var defs []string
	for _, c := range t.Columns {
		def := d.QuoteIdent(c.Name) + " " + d.TypeName(c.Type)
		if c.Name == t.Key {
			def += " PRIMARY KEY"
		} else if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	ts := d.TimestampType()
	defs = append(defs,
		fmt.Sprintf("%s VARCHAR(255) DEFAULT %s", d.QuoteIdent(CreatedBy), user),
		fmt.Sprintf("%s %s DEFAULT CURRENT_TIMESTAMP", d.QuoteIdent(CreatedAt), ts),
		fmt.Sprintf("%s VARCHAR(255) DEFAULT %s", d.QuoteIdent(UpdatedBy), user),
		strings.TrimSpace(fmt.Sprintf("%s %s DEFAULT CURRENT_TIMESTAMP %s", d.QuoteIdent(UpdatedAt), ts, d.UpdatedAtClause())),
	)
	// table constraints follow all column definitions
	if fk := t.ForeignKey; fk != nil {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			d.QuoteIdent(t.ConstraintName()), d.QuoteIdent(fk.Column),
			d.QuoteIdent(fk.RefTable), d.QuoteIdent(fk.RefColumn)))
	}
	return d.CreateTable(t.Name, "\n    "+strings.Join(defs, ",\n    ")+"\n")
}

// DDL renders every table in dependency order.
func DDL(d SQLDialect, auditUser string) []string {
	tables := Tables()
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = CreateTableSQL(d, t, auditUser)
	}
	return stmts
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
