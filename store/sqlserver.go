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

package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/aaronlmathis/dqetl/schema"
)

// sqlServerDialect upserts with MERGE. A statement takes at most 2100
// parameters and a VALUES constructor at most 1000 rows.
type sqlServerDialect struct{}

func (sqlServerDialect) Name() string       { return "sqlserver" }
func (sqlServerDialect) DriverName() string { return "sqlserver" }

func (sqlServerDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlServerDialect) TypeName(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "INT"
	case schema.Boolean:
		return "BIT"
	default:
		return "NVARCHAR(600)"
	}
}

func (sqlServerDialect) TimestampType() string   { return "DATETIME2" }
func (sqlServerDialect) UpdatedAtClause() string { return "" }

func (d sqlServerDialect) CreateTable(table, body string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(table, "'", "''"), d.QuoteIdent(table), body)
}

func (sqlServerDialect) DSN(cfg Config, admin bool) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	u := url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	if admin {
		q.Set("database", "master")
	} else {
		q.Set("database", cfg.Database)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d sqlServerDialect) EnsureDatabase(ctx context.Context, cfg Config) error {
	dsn, err := d.DSN(cfg, true)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, d.DriverName(), dsn)
	if err != nil {
		return fmt.Errorf("connect to master: %w", err)
	}
	defer db.Close()

	var id sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT DB_ID(@p1)", cfg.Database).Scan(&id); err != nil {
		return fmt.Errorf("look up database: %w", err)
	}
	if id.Valid {
		return nil
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+d.QuoteIdent(cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

func (sqlServerDialect) MaxParams() int { return 2000 }
func (sqlServerDialect) MaxRows() int   { return 1000 }

func (d sqlServerDialect) UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string {
	quoted := quoteAll(d, columns)
	source := make([]string, len(columns))
	for i, q := range quoted {
		source[i] = "source." + q
	}
	k := d.QuoteIdent(key)

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS target USING (VALUES %s) AS source (%s) ON target.%s = source.%s",
		d.QuoteIdent(table),
		valuesList(len(columns), rows, func(n int) string { return "@p" + strconv.Itoa(n) }),
		strings.Join(quoted, ", "), k, k)

	if policy != ConflictIgnore {
		var sets []string
		for i, c := range columns {
			if c == key {
				continue
			}
			sets = append(sets, fmt.Sprintf("target.%s = source.%s", quoted[i], quoted[i]))
		}
		sets = append(sets, "target."+d.QuoteIdent(schema.UpdatedAt)+" = CURRENT_TIMESTAMP")
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(quoted, ", "), strings.Join(source, ", "))
	return b.String()
}
