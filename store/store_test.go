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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl/schema"
)

// TestParseConflictPolicy tests policy parsing and the update default
func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ConflictUpdate, p)

	p, err = ParseConflictPolicy(" IGNORE ")
	require.NoError(t, err)
	assert.Equal(t, ConflictIgnore, p)

	_, err = ParseConflictPolicy("replace")
	assert.Error(t, err)
}

// TestLookup tests the dialect registry
func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"mysql", "pgx", "postgres", "sqlite", "sqlserver"}, Dialects())

	d, err := Lookup("SQLite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.DriverName())

	_, err = Lookup("oracle")
	assert.Error(t, err)
}

// TestRowsPerStatement tests chunk sizing against parameter and row limits
func TestRowsPerStatement(t *testing.T) {
	pg, _ := Lookup("postgres")
	ms, _ := Lookup("sqlserver")

	assert.Equal(t, 16383, RowsPerStatement(pg, 4))
	assert.Equal(t, 500, RowsPerStatement(ms, 4))
	assert.Equal(t, 1000, RowsPerStatement(ms, 1))
	assert.Equal(t, 1, RowsPerStatement(ms, 5000))
	assert.Equal(t, 0, RowsPerStatement(pg, 0))
}

// TestUpsertSQL tests the statement rendered by each dialect
func TestUpsertSQL(t *testing.T) {
	cols := []string{"userId", "id", "title"}

	tests := []struct {
		dialect string
		policy  ConflictPolicy
		want    string
	}{
		{"postgres", ConflictUpdate, `INSERT INTO "posts" ("userId", "id", "title") VALUES ($1, $2, $3), ($4, $5, $6) ON CONFLICT ("id") DO UPDATE SET "userId" = excluded."userId", "title" = excluded."title", "updated_at" = CURRENT_TIMESTAMP`},
		{"pgx", ConflictIgnore, `INSERT INTO "posts" ("userId", "id", "title") VALUES ($1, $2, $3), ($4, $5, $6) ON CONFLICT ("id") DO NOTHING`},
		{"sqlite", ConflictUpdate, `INSERT INTO "posts" ("userId", "id", "title") VALUES (?, ?, ?), (?, ?, ?) ON CONFLICT ("id") DO UPDATE SET "userId" = excluded."userId", "title" = excluded."title", "updated_at" = CURRENT_TIMESTAMP`},
		{"mysql", ConflictUpdate, "INSERT INTO `posts` (`userId`, `id`, `title`) VALUES (?, ?, ?), (?, ?, ?) ON DUPLICATE KEY UPDATE `userId` = VALUES(`userId`), `title` = VALUES(`title`), `updated_at` = CURRENT_TIMESTAMP"},
		{"mysql", ConflictIgnore, "INSERT INTO `posts` (`userId`, `id`, `title`) VALUES (?, ?, ?), (?, ?, ?) ON DUPLICATE KEY UPDATE `id` = `id`"},
		{"sqlserver", ConflictUpdate, "MERGE INTO [posts] WITH (HOLDLOCK) AS target USING (VALUES (@p1, @p2, @p3), (@p4, @p5, @p6)) AS source ([userId], [id], [title]) ON target.[id] = source.[id] WHEN MATCHED THEN UPDATE SET target.[userId] = source.[userId], target.[title] = source.[title], target.[updated_at] = CURRENT_TIMESTAMP WHEN NOT MATCHED THEN INSERT ([userId], [id], [title]) VALUES (source.[userId], source.[id], source.[title]);"},
		{"sqlserver", ConflictIgnore, "MERGE INTO [posts] WITH (HOLDLOCK) AS target USING (VALUES (@p1, @p2, @p3), (@p4, @p5, @p6)) AS source ([userId], [id], [title]) ON target.[id] = source.[id] WHEN NOT MATCHED THEN INSERT ([userId], [id], [title]) VALUES (source.[userId], source.[id], source.[title]);"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect+"_"+string(tt.policy), func(t *testing.T) {
			d, err := Lookup(tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.UpsertSQL("posts", cols, "id", 2, tt.policy))
		})
	}
}

// TestDDL tests dialect specific table rendering
func TestDDL(t *testing.T) {
	mysql, _ := Lookup("mysql")
	ddl := schema.CreateTableSQL(mysql, schema.Posts, "")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `posts`")
	assert.Contains(t, ddl, "`updated_at` DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP")

	ms, _ := Lookup("sqlserver")
	ddl = schema.CreateTableSQL(ms, schema.Todos, "")
	assert.True(t, strings.HasPrefix(ddl, "IF OBJECT_ID(N'todos', N'U') IS NULL CREATE TABLE [todos]"))
	assert.Contains(t, ddl, "[completed] BIT")
}

// TestDSN tests connection string construction
func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", User: "etl", Password: "p@ss", Database: "dq", Params: map[string]string{"sslmode": "disable"}}

	pg, _ := Lookup("postgres")
	dsn, err := pg.DSN(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "postgres://etl:p%40ss@db:5432/dq?sslmode=disable", dsn)
	dsn, err = pg.DSN(cfg, true)
	require.NoError(t, err)
	assert.Contains(t, dsn, "@db:5432/postgres?")

	my, _ := Lookup("mysql")
	dsn, err = my.DSN(Config{Host: "db", User: "etl", Password: "pw", Database: "dq"}, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "etl:pw@tcp(db:3306)/dq"), dsn)
	dsn, err = my.DSN(Config{Host: "db", User: "etl", Password: "pw", Database: "dq"}, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "etl:pw@tcp(db:3306)/"), dsn)
	assert.NotContains(t, dsn, "/dq")

	ms, _ := Lookup("sqlserver")
	dsn, err = ms.DSN(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver://etl:p%40ss@db:1433?database=dq&sslmode=disable", dsn)

	sq, _ := Lookup("sqlite")
	dsn, err = sq.DSN(Config{Path: "out/dq.db"}, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "out/dq.db?_pragma="), dsn)

	_, err = pg.DSN(Config{}, false)
	assert.Error(t, err)
}

// TestSession_Lifecycle tests connect, reuse, reconnect and close
func TestSession_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dq.db")
	s, err := NewSession(Config{Dialect: "sqlite", Path: path}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	db1, err := s.Conn(ctx)
	require.NoError(t, err)
	db2, err := s.Conn(ctx)
	require.NoError(t, err)
	assert.Same(t, db1, db2)
	assert.Equal(t, 1, s.Connects())

	require.NoError(t, db1.Close())
	db3, err := s.Conn(ctx)
	require.NoError(t, err)
	assert.NotSame(t, db1, db3)
	assert.Equal(t, 2, s.Connects())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Conn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Connects())
	require.NoError(t, s.Close())
}

// TestSession_ApplySchema tests idempotent table creation with foreign keys
func TestSession_ApplySchema(t *testing.T) {
	s, err := NewSession(Config{Dialect: "sqlite", Path: filepath.Join(t.TempDir(), "dq.db")}, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.ApplySchema(ctx))
	require.NoError(t, s.ApplySchema(ctx))

	db, err := s.Conn(ctx)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&n))
	assert.Equal(t, 6, n)

	_, err = db.ExecContext(ctx, `INSERT INTO "users" ("id", "name") VALUES (1, 'Leanne')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "posts" ("userId", "id", "title") VALUES (1, 10, 't')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "posts" ("userId", "id", "title") VALUES (99, 11, 't')`)
	assert.Error(t, err, "foreign keys are enforced")

	var by string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "created_by" FROM "posts" WHERE "id" = 10`).Scan(&by))
	assert.Equal(t, "dqetl", by)

	_, err = db.ExecContext(ctx, `DELETE FROM "users" WHERE "id" = 1`)
	require.NoError(t, err)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "posts"`).Scan(&n))
	assert.Equal(t, 0, n, "delete cascades")
}

// TestNewSession_UnknownDialect tests the typed error for bad dialects
func TestNewSession_UnknownDialect(t *testing.T) {
	_, err := NewSession(Config{Dialect: "oracle"}, nil)
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "dialect", sessErr.Op)
}
