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

// Package config loads the DQETL run configuration: which file feeds each
// dataset, where cleaned tables go and how to reach the store.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/dqetl/catalog"
	"github.com/aaronlmathis/dqetl/location"
	"github.com/aaronlmathis/dqetl/schema"
	"github.com/aaronlmathis/dqetl/store"
)

// DefaultRemediationPath is where remediation entries are appended when no
// path is configured.
const DefaultRemediationPath = "error.txt"

// ConfigError lists every problem found in a configuration document.
type ConfigError struct {
	Path     string
	Problems []string
}

func (e *ConfigError) Error() string {
	where := "config"
	if e.Path != "" {
		where = fmt.Sprintf("config %s", e.Path)
	}
	return fmt.Sprintf("%s: %s", where, strings.Join(e.Problems, "; "))
}

// Dataset maps one dataset to its source, logical table and destination.
type Dataset struct {
	Source      string `yaml:"source"`
	Table       string `yaml:"table"`
	Destination string `yaml:"destination"`
}

// MongoConfig enables loading into MongoDB instead of a SQL store.
type MongoConfig struct {
	URI          string `yaml:"uri"`
	Database     string `yaml:"database"`
	Transactions bool   `yaml:"transactions"`
}

// RemediationConfig controls the remediation log sink.
type RemediationConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"` // console or json
}

// Config is a fully resolved run configuration.
type Config struct {
	Datasets    map[string]Dataset `yaml:"datasets"`
	Store       store.Config       `yaml:"store"`
	Mongo       *MongoConfig       `yaml:"mongo"`
	S3          location.S3Options `yaml:"s3"`
	Archive     string             `yaml:"archive"`
	Remediation RemediationConfig  `yaml:"remediation"`
	Conflict    string             `yaml:"conflict"`
	FallbackURL string             `yaml:"fallback_url"`
	LogLevel    string             `yaml:"log_level"`

	envProblems []string
}

// legacyDatabase is the flat connection block of the older layout.
type legacyDatabase struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
}

// document accepts both layouts. The legacy keys are folded into Config by
// normalize.
type document struct {
	Config `yaml:",inline"`

	SrcPath  map[string]string `yaml:"srcpath"`
	Tables   map[string]string `yaml:"tables"`
	DistPath map[string]string `yaml:"distpath"`
	Database *legacyDatabase   `yaml:"database"`
}

// LoadEnv loads .env style files into the process environment. Missing files
// are skipped; with no arguments ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// LoadOption adjusts how Load resolves a document.
type LoadOption func(*loadOptions)

type loadOptions struct {
	getenv func(string) (string, bool)
}

// WithLookupEnv replaces os.LookupEnv for DQETL_* overrides.
func WithLookupEnv(fn func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) {
		o.getenv = fn
	}
}

// Load reads, normalizes and validates the configuration at path.
func Load(path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{err.Error()}}
	}
	cfg, err := Parse(data, opts...)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML or JSON document, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte, opts ...LoadOption) (*Config, error) {
	o := loadOptions{getenv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Problems: []string{err.Error()}}
	}

	cfg := doc.normalize()
	cfg.applyEnv(o.getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize folds the srcpath/tables/distpath/database layout into Config.
// Keys already set in the current layout win.
func (d document) normalize() Config {
	cfg := d.Config
	if len(d.SrcPath) > 0 && cfg.Datasets == nil {
		cfg.Datasets = make(map[string]Dataset, len(d.SrcPath))
	}
	for name, src := range d.SrcPath {
		if _, ok := cfg.Datasets[name]; ok {
			continue
		}
		table := d.Tables[name]
		if table == "" {
			table = name
		}
		cfg.Datasets[name] = Dataset{
			Source:      src,
			Table:       table,
			Destination: d.DistPath[table],
		}
	}

	if db := d.Database; db != nil {
		if cfg.Store.Dialect == "" {
			cfg.Store.Dialect = "mysql"
		}
		if cfg.Store.Host == "" {
			cfg.Store.Host = db.Host
		}
		if cfg.Store.Port == 0 {
			cfg.Store.Port = db.Port
		}
		if cfg.Store.User == "" {
			cfg.Store.User = db.User
		}
		if cfg.Store.Password == "" {
			cfg.Store.Password = db.Password
		}
		if cfg.Store.Database == "" {
			cfg.Store.Database = db.DB
		}
	}
	return cfg
}

// applyEnv overrides connection fields and secrets from DQETL_* variables.
func (c *Config) applyEnv(getenv func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := getenv(key); ok && v != "" {
			*dst = v
		}
	}

	str("DQETL_DB_DIALECT", &c.Store.Dialect)
	str("DQETL_DB_DSN", &c.Store.DSN)
	str("DQETL_DB_HOST", &c.Store.Host)
	str("DQETL_DB_USER", &c.Store.User)
	str("DQETL_DB_PASSWORD", &c.Store.Password)
	str("DQETL_DB_NAME", &c.Store.Database)
	str("DQETL_DB_PATH", &c.Store.Path)
	if v, ok := getenv("DQETL_DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			c.envProblems = append(c.envProblems, fmt.Sprintf("DQETL_DB_PORT: invalid port %q", v))
		} else {
			c.Store.Port = port
		}
	}

	if v, ok := getenv("DQETL_MONGO_URI"); ok && v != "" {
		if c.Mongo == nil {
			c.Mongo = &MongoConfig{}
		}
		c.Mongo.URI = v
	}

	str("DQETL_S3_REGION", &c.S3.Region)
	str("DQETL_S3_ENDPOINT", &c.S3.Endpoint)
	str("DQETL_S3_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	str("DQETL_S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	str("DQETL_S3_SESSION_TOKEN", &c.S3.SessionToken)

	str("DQETL_ARCHIVE", &c.Archive)
	str("DQETL_LOG_LEVEL", &c.LogLevel)
}

func (c *Config) applyDefaults() {
	for name, ds := range c.Datasets {
		if ds.Table == "" {
			ds.Table = name
			c.Datasets[name] = ds
		}
	}
	if c.Remediation.Path == "" {
		c.Remediation.Path = DefaultRemediationPath
	}
	if c.Remediation.Encoding == "" {
		c.Remediation.Encoding = "console"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.AuditUser == "" {
		c.Store.AuditUser = schema.DefaultAuditUser
	}
	if c.Mongo != nil && c.Mongo.Database == "" {
		c.Mongo.Database = c.Store.Database
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	problems = append(problems, c.envProblems...)
	if len(c.Datasets) == 0 {
		add("no datasets configured")
	}
	for _, name := range c.DatasetNames() {
		ds := c.Datasets[name]
		spec, ok := catalog.Lookup(name)
		if !ok {
			add("datasets.%s: unknown dataset", name)
			continue
		}
		if ds.Source == "" {
			add("datasets.%s.source is required", name)
		}
		if ds.Destination == "" {
			add("datasets.%s.destination is required", name)
		}
		if _, ok := schema.Lookup(ds.Table); !ok {
			add("datasets.%s.table: unknown table %q", name, ds.Table)
		}
		for _, dep := range spec.Dependencies() {
			if _, ok := c.Datasets[dep]; !ok {
				add("datasets.%s requires dataset %s", name, dep)
			}
		}
	}

	if c.Mongo != nil {
		if c.Mongo.URI == "" {
			add("mongo.uri is required")
		}
		if c.Mongo.Database == "" {
			add("mongo.database is required")
		}
	} else {
		switch {
		case c.Store.Dialect == "":
			add("store.dialect is required")
		default:
			if _, err := store.Lookup(c.Store.Dialect); err != nil {
				add("store.dialect: %v", err)
			}
		}
		if c.Store.DSN == "" && c.Store.Database == "" && c.Store.Path == "" {
			add("store.database is required")
		}
		if c.Store.Port < 0 || c.Store.Port > 65535 {
			add("store.port: %d is out of range", c.Store.Port)
		}
	}

	if _, err := store.ParseConflictPolicy(c.Conflict); err != nil {
		add("conflict: %v", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %v", err)
	}
	switch c.Remediation.Encoding {
	case "console", "json":
	default:
		add("remediation.encoding: must be console or json, got %q", c.Remediation.Encoding)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// DatasetNames returns the configured datasets in cleaning order; names the
// catalog does not know sort last, alphabetically.
func (c *Config) DatasetNames() []string {
	rank := make(map[string]int)
	for i, name := range catalog.Names() {
		rank[name] = i
	}
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})
	return names
}

// Policy returns the parsed conflict policy.
func (c *Config) Policy() store.ConflictPolicy {
	p, _ := store.ParseConflictPolicy(c.Conflict)
	return p
}
