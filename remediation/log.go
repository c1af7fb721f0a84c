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

// Package remediation records what the data-quality pass did to each record and
// writes it, once per run, to an append-only diagnostics file.
package remediation

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Action is the remediation applied to a record.
type Action string

const (
	Drop       Action = "drop"
	Substitute Action = "substitute"
	BlankOut   Action = "blank-out"
	// Failure marks a dataset-level error rather than a record-level fix.
	Failure Action = "failure"
)

// Entry is one remediation or failure event.
type Entry struct {
	Time     time.Time
	Table    string
	Column   string
	RecordID string
	Action   Action
	Reason   string
}

// Log is an in-memory, append-only buffer of entries.
// It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	flushed int
	clock   func() time.Time
	fields  []zap.Field
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for entries without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

// WithFields adds fields written on every flushed line, such as a run id.
func WithFields(fields ...zap.Field) Option {
	return func(l *Log) { l.fields = append(l.fields, fields...) }
}

// NewLog creates an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry, stamping it with the current time if needed.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = l.clock()
	}
	l.entries = append(l.entries, e)
}

// Fail records a dataset-level failure.
func (l *Log) Fail(table, op string, err error) {
	l.Record(Entry{
		Table:  table,
		Action: Failure,
		Reason: fmt.Sprintf("error in %s for %s: %v", op, table, err),
	})
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of every recorded entry.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Counts returns the number of entries per action for a table.
func (l *Log) Counts(table string) map[Action]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[Action]int)
	for _, e := range l.entries {
		if e.Table == table {
			counts[e.Action]++
		}
	}
	return counts
}

// Flush writes every entry not yet flushed to ws, one line per entry, using the
// entry's own timestamp. encoding is "console" (default) or "json".
// Entries stay in memory after a flush so they can still be counted.
func (l *Log) Flush(ws zapcore.WriteSyncer, encoding string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.entries[l.flushed:]
	if len(pending) == 0 {
		return nil
	}

	core := zapcore.NewCore(newEncoder(encoding), ws, zapcore.DebugLevel)
	for _, e := range pending {
		level := zapcore.WarnLevel
		if e.Action == Failure {
			level = zapcore.ErrorLevel
		}
		ent := zapcore.Entry{Level: level, Time: e.Time, Message: e.Reason}
		if err := core.Write(ent, l.entryFields(e)); err != nil {
			return fmt.Errorf("remediation flush: %w", err)
		}
		l.flushed++
	}
	if err := core.Sync(); err != nil {
		return fmt.Errorf("remediation sync: %w", err)
	}
	return nil
}

func (l *Log) entryFields(e Entry) []zap.Field {
	fields := make([]zap.Field, 0, 4+len(l.fields))
	fields = append(fields, zap.String("table", e.Table))
	if e.Column != "" {
		fields = append(fields, zap.String("column", e.Column))
	}
	if e.RecordID != "" {
		fields = append(fields, zap.String("id", e.RecordID))
	}
	fields = append(fields, zap.String("action", string(e.Action)))
	return append(fields, l.fields...)
}

func newEncoder(encoding string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if encoding == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Open opens path for appending behind a write buffer. path may also be
// "stdout" or "stderr". The returned func flushes the buffer and closes the file.
func Open(path string) (zapcore.WriteSyncer, func() error, error) {
	ws, closeFn, err := zap.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("remediation open %s: %w", path, err)
	}
	buffered := &zapcore.BufferedWriteSyncer{WS: ws, Size: 256 * 1024}
	return buffered, func() error {
		err := buffered.Stop()
		closeFn()
		return err
	}, nil
}
