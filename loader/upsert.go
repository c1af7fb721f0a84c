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

// Package loader reconciles cleaned datasets with the target store.
//
// Loader writes to a SQL store through a store.Session: all rows of a dataset
// go into one transaction, split into as many multi-row upsert statements as
// the dialect's parameter limit requires. MongoLoader does the same for a
// MongoDB collection with bulk upserts.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/schema"
	"github.com/aaronlmathis/dqetl/store"
)

// LoaderError wraps a failed load with the table and operation.
type LoaderError struct {
	Table string
	Op    string
	Err   error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *LoaderError) Unwrap() error {
	return e.Err
}

// LoadStats describes one completed load.
type LoadStats struct {
	Table      string        `json:"table"`
	Rows       int64         `json:"rows"`
	Statements int           `json:"statements"`
	Duration   time.Duration `json:"duration"`
}

// Connector is the part of store.Session the loader needs.
type Connector interface {
	Conn(ctx context.Context) (*sql.DB, error)
	Dialect() store.Dialect
}

// Options configures a Loader.
type Options struct {
	Policy store.ConflictPolicy
	// MaxRows caps rows per statement below the dialect limit; 0 means no cap.
	MaxRows int
}

// Option represents a configuration function for Options.
type Option func(*Options)

// WithPolicy sets the conflict policy.
func WithPolicy(p store.ConflictPolicy) Option {
	return func(o *Options) {
		o.Policy = p
	}
}

// WithMaxRows caps the rows per statement.
func WithMaxRows(n int) Option {
	return func(o *Options) {
		o.MaxRows = n
	}
}

// Loader upserts datasets into a SQL store.
type Loader struct {
	conn Connector
	opts Options
	log  *zap.Logger
}

// NewLoader creates a loader. The policy defaults to update.
func NewLoader(conn Connector, log *zap.Logger, options ...Option) *Loader {
	opts := Options{Policy: store.ConflictUpdate}
	for _, o := range options {
		o(&opts)
	}
	if opts.Policy == "" {
		opts.Policy = store.ConflictUpdate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{conn: conn, opts: opts, log: log}
}

// Load upserts every record of ds into table in a single transaction.
// An empty dataset executes nothing.
func (l *Loader) Load(ctx context.Context, ds *dqetl.Dataset, table string) (LoadStats, error) {
	stats := LoadStats{Table: table}
	if ds.Len() == 0 {
		l.log.Debug("nothing to load", zap.String("table", table))
		return stats, nil
	}
	start := time.Now()

	columns, key, err := storeColumns(ds)
	if err != nil {
		return stats, &LoaderError{Table: table, Op: "columns", Err: err}
	}
	coerce := coercers(table, columns)

	db, err := l.conn.Conn(ctx)
	if err != nil {
		return stats, &LoaderError{Table: table, Op: "connect", Err: err}
	}
	dialect := l.conn.Dialect()

	perStmt := store.RowsPerStatement(dialect, len(columns))
	if l.opts.MaxRows > 0 && l.opts.MaxRows < perStmt {
		perStmt = l.opts.MaxRows
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, &LoaderError{Table: table, Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// full-size statements share one rendering
	var fullSQL string
	for lo := 0; lo < ds.Len(); lo += perStmt {
		hi := lo + perStmt
		if hi > ds.Len() {
			hi = ds.Len()
		}
		rows := hi - lo

		query := fullSQL
		if rows != perStmt || query == "" {
			query = dialect.UpsertSQL(table, columns, key, rows, l.opts.Policy)
			if rows == perStmt {
				fullSQL = query
			}
		}

		args := make([]interface{}, 0, rows*len(columns))
		for _, rec := range ds.Records[lo:hi] {
			for i, col := range ds.Columns {
				args = append(args, coerce[i](rec[col]))
			}
		}

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			err = &LoaderError{Table: table, Op: "upsert", Err: err}
			return stats, err
		}
		stats.Statements++
	}

	if err = tx.Commit(); err != nil {
		err = &LoaderError{Table: table, Op: "commit", Err: err}
		return stats, err
	}

	stats.Rows = int64(ds.Len())
	stats.Duration = time.Since(start)
	l.log.Debug("dataset loaded",
		zap.String("table", table),
		zap.Int64("rows", stats.Rows),
		zap.Int("statements", stats.Statements),
		zap.Duration("elapsed", stats.Duration),
		zap.String("policy", string(l.opts.Policy)))
	return stats, nil
}

// storeColumns maps dataset columns to store column names and checks the key.
func storeColumns(ds *dqetl.Dataset) ([]string, string, error) {
	if len(ds.Columns) == 0 {
		return nil, "", fmt.Errorf("dataset has no columns")
	}
	key := schema.ColumnName(ds.Key)
	columns := make([]string, len(ds.Columns))
	seen := make(map[string]bool, len(ds.Columns))
	hasKey := false
	for i, c := range ds.Columns {
		name := schema.ColumnName(c)
		if seen[name] {
			return nil, "", fmt.Errorf("columns collide on %q", name)
		}
		seen[name] = true
		columns[i] = name
		if name == key {
			hasKey = true
		}
	}
	if !hasKey {
		return nil, "", fmt.Errorf("key column %q missing", ds.Key)
	}
	return columns, key, nil
}

// coercers returns one conversion per column. Tables without a definition
// pass values through, with NaN turned into NULL.
func coercers(table string, columns []string) []func(interface{}) interface{} {
	def, known := schema.Lookup(table)
	out := make([]func(interface{}) interface{}, len(columns))
	for i, name := range columns {
		if known {
			if col, ok := def.Column(name); ok {
				out[i] = col.Coerce
				continue
			}
		}
		out[i] = passThrough
	}
	return out
}

func passThrough(v interface{}) interface{} {
	if dqetl.IsNull(v) {
		return nil
	}
	return v
}
