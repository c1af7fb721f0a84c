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
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/aaronlmathis/dqetl/schema"
)

const sqliteMemory = ":memory:"

// sqliteDialect uses the pure Go modernc driver. Foreign keys are enabled
// per connection through the _pragma DSN parameter, and the pool is limited
// to one connection so that :memory: databases are shared.
type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) TypeName(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "INTEGER"
	case schema.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) TimestampType() string   { return "TIMESTAMP" }
func (sqliteDialect) UpdatedAtClause() string { return "" }

func (d sqliteDialect) CreateTable(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(table), body)
}

func (sqliteDialect) DSN(cfg Config, admin bool) (string, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	for k, v := range cfg.Params {
		q.Add(k, v)
	}
	return path + "?" + q.Encode(), nil
}

// EnsureDatabase creates the parent directory; the file itself is created on open.
func (sqliteDialect) EnsureDatabase(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" || path == sqliteMemory {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

func (sqliteDialect) MaxOpenConns() int { return 1 }

func (sqliteDialect) MaxParams() int { return 32766 }
func (sqliteDialect) MaxRows() int   { return 0 }

func (d sqliteDialect) UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string {
	return onConflictSQL(d, table, columns, key, rows, policy, questionMark)
}
