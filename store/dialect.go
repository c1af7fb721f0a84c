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

// Package store connects to the relational target and knows how each
// supported SQL dialect spells upserts, placeholders and DDL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/aaronlmathis/dqetl/schema"
)

// ConflictPolicy decides what an upsert does when the key already exists.
type ConflictPolicy string

const (
	// ConflictUpdate overwrites every non-key column of the stored row.
	ConflictUpdate ConflictPolicy = "update"
	// ConflictIgnore keeps the stored row.
	ConflictIgnore ConflictPolicy = "ignore"
)

// ParseConflictPolicy accepts "update", "ignore" or "" (update).
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConflictUpdate:
		return ConflictUpdate, nil
	case ConflictIgnore:
		return ConflictIgnore, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Dialect is a SQL flavour together with its database/sql driver.
type Dialect interface {
	schema.SQLDialect

	Name() string
	DriverName() string

	// DSN builds the connection string. With admin set it targets the server's
	// maintenance database instead of cfg.Database.
	DSN(cfg Config, admin bool) (string, error)
	// EnsureDatabase creates cfg.Database if it does not exist.
	EnsureDatabase(ctx context.Context, cfg Config) error

	// MaxParams is the bind parameter limit of one statement.
	MaxParams() int
	// MaxRows limits rows per statement independently of parameters; 0 means none.
	MaxRows() int
	// UpsertSQL renders an insert of rows rows with the given conflict policy.
	UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string
}

var dialects = map[string]Dialect{}

func register(d Dialect) {
	dialects[d.Name()] = d
}

func init() {
	register(postgresDialect{})
	register(pgxDialect{})
	register(mysqlDialect{})
	register(sqliteDialect{})
	register(sqlServerDialect{})
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (supported: %s)", name, strings.Join(Dialects(), ", "))
	}
	return d, nil
}

// Dialects lists the registered dialect names.
func Dialects() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RowsPerStatement is how many rows of width columns fit in one statement.
func RowsPerStatement(d Dialect, columns int) int {
	if columns <= 0 {
		return 0
	}
	rows := d.MaxParams() / columns
	if max := d.MaxRows(); max > 0 && rows > max {
		rows = max
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

// valuesList renders rows tuples of width placeholders numbered from 1.
func valuesList(width, rows int, placeholder func(n int) string) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func quoteAll(d schema.SQLDialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.QuoteIdent(n)
	}
	return out
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// onConflictSQL is the INSERT ... ON CONFLICT form shared by PostgreSQL and SQLite.
func onConflictSQL(d schema.SQLDialect, table string, columns []string, key string, rows int, policy ConflictPolicy, placeholder func(int) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) ",
		d.QuoteIdent(table),
		strings.Join(quoteAll(d, columns), ", "),
		valuesList(len(columns), rows, placeholder),
		d.QuoteIdent(key))
	if policy == ConflictIgnore {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	var sets []string
	for _, c := range columns {
		if c == key {
			continue
		}
		q := d.QuoteIdent(c)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	sets = append(sets, d.QuoteIdent(schema.UpdatedAt)+" = CURRENT_TIMESTAMP")
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// openDB opens and pings a handle, closing it when the ping fails.
func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
