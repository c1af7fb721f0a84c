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
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/aaronlmathis/dqetl/schema"
)

const postgresMaintenanceDB = "postgres"

// postgresDialect talks to PostgreSQL through lib/pq.
type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }

func (postgresDialect) TypeName(t schema.ColumnType) string { return postgresType(t) }
func (postgresDialect) TimestampType() string               { return "TIMESTAMP" }
func (postgresDialect) UpdatedAtClause() string             { return "" }

func (d postgresDialect) CreateTable(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(table), body)
}

func (postgresDialect) DSN(cfg Config, admin bool) (string, error) { return postgresURL(cfg, admin) }

func (d postgresDialect) EnsureDatabase(ctx context.Context, cfg Config) error {
	return ensurePostgresDatabase(ctx, d, cfg)
}

func (postgresDialect) MaxParams() int { return 65535 }
func (postgresDialect) MaxRows() int   { return 0 }

func (d postgresDialect) UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string {
	return onConflictSQL(d, table, columns, key, rows, policy, dollar)
}

// pgxDialect talks to PostgreSQL through the pgx stdlib driver.
type pgxDialect struct{}

func (pgxDialect) Name() string       { return "pgx" }
func (pgxDialect) DriverName() string { return "pgx" }

func (pgxDialect) QuoteIdent(name string) string { return pgx.Identifier{name}.Sanitize() }

func (pgxDialect) TypeName(t schema.ColumnType) string { return postgresType(t) }
func (pgxDialect) TimestampType() string               { return "TIMESTAMP" }
func (pgxDialect) UpdatedAtClause() string             { return "" }

func (d pgxDialect) CreateTable(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(table), body)
}

func (pgxDialect) DSN(cfg Config, admin bool) (string, error) { return postgresURL(cfg, admin) }

func (d pgxDialect) EnsureDatabase(ctx context.Context, cfg Config) error {
	return ensurePostgresDatabase(ctx, d, cfg)
}

func (pgxDialect) MaxParams() int { return 65535 }
func (pgxDialect) MaxRows() int   { return 0 }

func (d pgxDialect) UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string {
	return onConflictSQL(d, table, columns, key, rows, policy, dollar)
}

func postgresType(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "INTEGER"
	case schema.Boolean:
		return "BOOLEAN"
	default:
		return "VARCHAR(600)"
	}
}

func postgresURL(cfg Config, admin bool) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	db := cfg.Database
	if admin {
		db = postgresMaintenanceDB
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + db,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ensurePostgresDatabase(ctx context.Context, d Dialect, cfg Config) error {
	dsn, err := d.DSN(cfg, true)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, d.DriverName(), dsn)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", postgresMaintenanceDB, err)
	}
	defer db.Close()

	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", cfg.Database).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("look up database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+d.QuoteIdent(cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}
