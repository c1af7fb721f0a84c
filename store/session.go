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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl/schema"
)

// SessionError wraps store connectivity errors with the failed operation.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Config holds the store connection parameters.
type Config struct {
	Dialect  string            `yaml:"dialect"`
	DSN      string            `yaml:"dsn"` // used verbatim; skips database creation
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Path     string            `yaml:"path"` // sqlite file
	Params   map[string]string `yaml:"params"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	AuditUser string `yaml:"audit_user"`
}

// Session owns the store connection. Conn reuses a live handle and reconnects,
// ensuring the database exists first, when the handle is gone or dead.
type Session struct {
	cfg     Config
	dialect Dialect
	log     *zap.Logger

	mu       sync.Mutex
	db       *sql.DB
	connects int
}

// NewSession validates the dialect; no connection is made until Conn.
func NewSession(cfg Config, log *zap.Logger) (*Session, error) {
	d, err := Lookup(cfg.Dialect)
	if err != nil {
		return nil, &SessionError{Op: "dialect", Err: err}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AuditUser == "" {
		cfg.AuditUser = schema.DefaultAuditUser
	}
	return &Session{cfg: cfg, dialect: d, log: log.With(zap.String("dialect", d.Name()))}, nil
}

// Dialect returns the session's SQL dialect.
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Connects counts the connections opened so far.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Conn returns a live handle.
func (s *Session) Conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.PingContext(ctx)
		if err == nil {
			return s.db, nil
		}
		s.log.Warn("store connection lost, reconnecting", zap.Error(err))
		s.db.Close()
		s.db = nil
	}

	dsn := s.cfg.DSN
	if dsn == "" {
		if err := s.dialect.EnsureDatabase(ctx, s.cfg); err != nil {
			return nil, &SessionError{Op: "ensure_database", Err: err}
		}
		var err error
		if dsn, err = s.dialect.DSN(s.cfg, false); err != nil {
			return nil, &SessionError{Op: "dsn", Err: err}
		}
	}

	start := time.Now()
	db, err := openDB(ctx, s.dialect.DriverName(), dsn)
	if err != nil {
		return nil, &SessionError{Op: "connect", Err: err}
	}
	s.configurePool(db)

	s.db = db
	s.connects++
	s.log.Debug("store connected", zap.Duration("elapsed", time.Since(start)), zap.Int("connects", s.connects))
	return db, nil
}

func (s *Session) configurePool(db *sql.DB) {
	if l, ok := s.dialect.(interface{ MaxOpenConns() int }); ok {
		db.SetMaxOpenConns(l.MaxOpenConns())
	} else if s.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	}
	if s.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	}
	if s.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}
}

// SchemaSQL renders the create-if-absent DDL for every table.
func (s *Session) SchemaSQL() []string {
	return schema.DDL(s.dialect, s.cfg.AuditUser)
}

// ApplySchema creates any missing tables, parents first.
func (s *Session) ApplySchema(ctx context.Context) error {
	db, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	for i, stmt := range s.SchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &SessionError{Op: "create_table " + schema.Tables()[i].Name, Err: err}
		}
	}
	s.log.Debug("schema applied", zap.Int("tables", len(schema.Tables())))
	return nil
}

// Close releases the connection. The session may be reused afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return &SessionError{Op: "close", Err: err}
	}
	return nil
}
