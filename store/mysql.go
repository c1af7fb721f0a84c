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
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/aaronlmathis/dqetl/schema"
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) TypeName(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "INT"
	case schema.Boolean:
		return "BOOLEAN"
	default:
		return "VARCHAR(600)"
	}
}

func (mysqlDialect) TimestampType() string   { return "DATETIME" }
func (mysqlDialect) UpdatedAtClause() string { return "ON UPDATE CURRENT_TIMESTAMP" }

func (d mysqlDialect) CreateTable(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(table), body)
}

// DSN uses the driver's own formatter so passwords and params are escaped.
func (mysqlDialect) DSN(cfg Config, admin bool) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.ParseTime = true
	if !admin {
		mc.DBName = cfg.Database
	}
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN(), nil
}

func (d mysqlDialect) EnsureDatabase(ctx context.Context, cfg Config) error {
	dsn, err := d.DSN(cfg, true)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, d.DriverName(), dsn)
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+d.QuoteIdent(cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

func (mysqlDialect) MaxParams() int { return 65535 }
func (mysqlDialect) MaxRows() int   { return 0 }

func (d mysqlDialect) UpsertSQL(table string, columns []string, key string, rows int, policy ConflictPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s ON DUPLICATE KEY UPDATE ",
		d.QuoteIdent(table),
		strings.Join(quoteAll(d, columns), ", "),
		valuesList(len(columns), rows, questionMark))

	k := d.QuoteIdent(key)
	if policy == ConflictIgnore {
		fmt.Fprintf(&b, "%s = %s", k, k)
		return b.String()
	}
	var sets []string
	for _, c := range columns {
		if c == key {
			continue
		}
		q := d.QuoteIdent(c)
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", q, q))
	}
	sets = append(sets, d.QuoteIdent(schema.UpdatedAt)+" = CURRENT_TIMESTAMP")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}
