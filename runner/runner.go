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

// Package runner drives a DQETL run: the clean phase walks the dataset graph
// parents first, the load phase upserts the cleaned files into the store, and
// the remediation log is written once when the run is closed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/catalog"
	"github.com/aaronlmathis/dqetl/config"
	"github.com/aaronlmathis/dqetl/dag"
	"github.com/aaronlmathis/dqetl/loader"
	"github.com/aaronlmathis/dqetl/location"
	"github.com/aaronlmathis/dqetl/readers"
	"github.com/aaronlmathis/dqetl/remediation"
	"github.com/aaronlmathis/dqetl/schema"
	"github.com/aaronlmathis/dqetl/store"
	"github.com/aaronlmathis/dqetl/writers"
)

// TableLoader upserts one dataset. loader.Loader and loader.MongoLoader
// satisfy it.
type TableLoader interface {
	Load(ctx context.Context, ds *dqetl.Dataset, table string) (loader.LoadStats, error)
}

// Runner holds the state of one run. It is not safe for concurrent use.
type Runner struct {
	cfg         *config.Config
	log         *zap.Logger
	resolver    *location.Resolver
	remediation *remediation.Log
	runID       string
	archive     string
	fromArchive string

	loader  TableLoader
	session *store.Session
	mongo   *mongo.Client

	cleaned map[string]*dqetl.Dataset
	report  *Report
	closed  bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithResolver replaces the location resolver built from the S3 options.
func WithResolver(r *location.Resolver) Option {
	return func(rn *Runner) { rn.resolver = r }
}

// WithLoader replaces the store loader built from the configuration.
func WithLoader(l TableLoader) Option {
	return func(rn *Runner) { rn.loader = l }
}

// WithArchive writes a parquet copy of every cleaned dataset under base.
// It overrides the configured archive location.
func WithArchive(base string) Option {
	return func(rn *Runner) { rn.archive = base }
}

// WithArchiveSource makes the load phase read <base>/<table>.parquet
// instead of the destination files.
func WithArchiveSource(base string) Option {
	return func(rn *Runner) { rn.fromArchive = base }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(rn *Runner) { rn.runID = id }
}

// New prepares a run. Nothing is read or connected until a phase runs.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		archive: cfg.Archive,
		cleaned: make(map[string]*dqetl.Dataset),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	if r.resolver == nil {
		r.resolver = location.NewResolver(cfg.S3)
	}
	r.log = log.With(zap.String("run_id", r.runID))
	r.remediation = remediation.NewLog(remediation.WithFields(zap.String("run_id", r.runID)))

	names := cfg.DatasetNames()
	tables := make(map[string]string, len(names))
	for _, name := range names {
		tables[name] = cfg.Datasets[name].Table
	}
	r.report = newReport(r.runID, time.Now(), names, tables)
	return r
}

// RunID returns the id stamped on logs, remediation entries and the report.
func (r *Runner) RunID() string {
	return r.runID
}

// Remediation returns the run's remediation log.
func (r *Runner) Remediation() *remediation.Log {
	return r.remediation
}

// Cleaned returns the dataset cleaned in this run, if any.
func (r *Runner) Cleaned(name string) (*dqetl.Dataset, bool) {
	ds, ok := r.cleaned[name]
	return ds, ok
}

// Run cleans every dataset and loads the ones that were cleaned.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if _, err := r.Clean(ctx); err != nil {
		return r.report, err
	}
	var ok []string
	for _, d := range r.report.Datasets {
		if d.Clean == dag.StatusSuccess {
			ok = append(ok, d.Dataset)
		}
	}
	return r.load(ctx, ok)
}

// Clean runs every configured dataset through its rule chain. A dataset
// whose parent failed is skipped. Only cancellation is returned as an error;
// dataset failures are in the report.
func (r *Runner) Clean(ctx context.Context) (*Report, error) {
	g, err := r.CleanDAG()
	if err != nil {
		return r.report, err
	}
	res, err := dag.NewDAGExecutor(dag.WithLogger(r.log.Named("clean"))).Execute(ctx, g)
	r.collect(res, func(d *DatasetReport, tr dag.TaskResult) {
		d.Clean = tr.Status
		if tr.Err != nil {
			d.Err = tr.Err
		}
		if tr.Status == dag.StatusUpstreamFailed {
			r.remediation.Fail(d.Table, "clean", tr.Err)
		}
	})
	return r.finish(), err
}

// Load reads the configured destinations back and upserts them.
func (r *Runner) Load(ctx context.Context) (*Report, error) {
	return r.load(ctx, r.cfg.DatasetNames())
}

// CleanDAG builds the clean-phase graph.
func (r *Runner) CleanDAG() (*dag.DAG, error) {
	b := dag.NewDAG("clean-"+r.runID, "Clean datasets")
	for _, name := range r.cfg.DatasetNames() {
		spec, ok := catalog.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("dataset %s has no rule chain", name)
		}
		b.AddTask(name, r.cleanTask(spec), spec.Dependencies(),
			dag.WithTriggerRule(dag.TriggerAllSuccess),
			dag.WithDescription(fmt.Sprintf("clean %s into %s", name, r.cfg.Datasets[name].Destination)))
	}
	return b.Build()
}

// LoadDAG builds the load-phase graph over names. Every dataset is attempted
// whatever happened to its parent.
func (r *Runner) LoadDAG(names []string) (*dag.DAG, error) {
	include := make(map[string]bool, len(names))
	for _, n := range names {
		include[n] = true
	}
	b := dag.NewDAG("load-"+r.runID, "Load datasets")
	for _, name := range r.cfg.DatasetNames() {
		if !include[name] {
			continue
		}
		var deps []string
		if spec, ok := catalog.Lookup(name); ok {
			for _, dep := range spec.Dependencies() {
				if include[dep] {
					deps = append(deps, dep)
				}
			}
		}
		b.AddTask(name, r.loadTask(name), deps,
			dag.WithTriggerRule(dag.TriggerAllDone),
			dag.WithDescription(fmt.Sprintf("load %s into %s", name, r.cfg.Datasets[name].Table)))
	}
	return b.Build()
}

func (r *Runner) load(ctx context.Context, names []string) (*Report, error) {
	if len(names) == 0 {
		return r.finish(), nil
	}
	if err := r.prepareLoader(ctx); err != nil {
		r.log.Error("store unavailable", zap.Error(err))
		for _, name := range names {
			d := r.report.Dataset(name)
			d.Load = dag.StatusFailed
			d.Err = err
			r.remediation.Fail(d.Table, "load", err)
		}
		return r.finish(), ctx.Err()
	}

	g, err := r.LoadDAG(names)
	if err != nil {
		return r.report, err
	}
	res, err := dag.NewDAGExecutor(dag.WithLogger(r.log.Named("load"))).Execute(ctx, g)
	r.collect(res, func(d *DatasetReport, tr dag.TaskResult) {
		d.Load = tr.Status
		if tr.Err != nil {
			d.Err = tr.Err
		}
	})
	return r.finish(), err
}

func (r *Runner) collect(res *dag.DAGResult, apply func(*DatasetReport, dag.TaskResult)) {
	if res == nil {
		return
	}
	for id, tr := range res.TaskResults {
		if d := r.report.Dataset(id); d != nil {
			apply(d, tr)
		}
	}
}

func (r *Runner) finish() *Report {
	r.report.Finished = time.Now()
	for _, d := range r.report.Datasets {
		d.Remediation = r.remediation.Counts(d.Table)
	}
	return r.report
}

func (r *Runner) cleanTask(spec catalog.Spec) dag.TaskFunc {
	return func(ctx context.Context) error {
		err := r.clean(ctx, spec)
		if err != nil {
			table := r.cfg.Datasets[spec.Name].Table
			r.remediation.Fail(table, "clean", err)
			var se *dqetl.SchemaError
			if errors.As(err, &se) {
				r.log.Error("dataset misconfigured", zap.String("dataset", spec.Name), zap.Error(err))
			}
		}
		return err
	}
}

// clean reads one dataset, applies its rule chain and writes the result to the
// destination and, when enabled, the parquet archive.
func (r *Runner) clean(ctx context.Context, spec catalog.Spec) error {
	dsCfg := r.cfg.Datasets[spec.Name]
	rep := r.report.Dataset(spec.Name)

	var parent *dqetl.Dataset
	if spec.Parent != "" {
		p, ok := r.cleaned[spec.Parent]
		if !ok {
			return fmt.Errorf("parent %s was not cleaned", spec.Parent)
		}
		parent = p
	}

	reader, err := r.openCSV(ctx, dsCfg.Source)
	if err != nil {
		return err
	}

	b := dqetl.NewPipeline(spec.Name).
		Table(dsCfg.Table).
		Key(spec.Key).
		From(reader).
		Check(spec.Rules(parent, catalog.Options{FallbackURL: r.cfg.FallbackURL})...).
		WithRecorder(r.remediation).
		WithErrorStrategy(dqetl.CollectErrors).
		WithErrorHandler(r.dropMalformed(dsCfg.Table))

	sinks, err := r.sinks(ctx, dsCfg, reader.Columns())
	if err != nil {
		reader.Close()
		return err
	}
	for _, s := range sinks {
		b.To(s)
	}

	p, err := b.Build()
	if err != nil {
		reader.Close()
		abortAll(sinks)
		return err
	}

	ds, err := p.Execute(ctx)
	rep.Malformed = len(p.Errors())
	rep.RowsIn = reader.Stats().RecordsRead + int64(rep.Malformed)
	if err != nil {
		return err
	}

	r.cleaned[spec.Name] = ds
	rep.RowsOut = ds.Len()
	rep.Fingerprint = ds.Fingerprint()
	r.log.Info("dataset cleaned",
		zap.String("dataset", spec.Name),
		zap.Int64("rows_in", rep.RowsIn),
		zap.Int("rows_out", rep.RowsOut),
		zap.Int("malformed", rep.Malformed),
		zap.String("destination", dsCfg.Destination))
	return nil
}

// dropMalformed drops source rows the CSV reader could not parse, logging each
// as a row-level drop. Any other read error fails the dataset.
func (r *Runner) dropMalformed(table string) dqetl.ErrorHandler {
	return dqetl.ErrorHandlerFunc(func(ctx context.Context, _ dqetl.Record, err error) error {
		var rerr *readers.CSVReaderError
		if !errors.As(err, &rerr) || !errors.Is(err, readers.ErrMalformedRow) {
			return err
		}
		r.remediation.Record(remediation.Entry{
			Table:  table,
			Action: remediation.Drop,
			Reason: fmt.Sprintf("malformed row at line %d in %s table (%v), row dropped", rerr.Line, table, rerr.Err),
		})
		return nil
	})
}

// sinks opens the destination CSV and, when archiving, the parquet copy.
func (r *Runner) sinks(ctx context.Context, dsCfg config.Dataset, columns []string) ([]dqetl.DataSink, error) {
	dst, err := r.create(ctx, dsCfg.Destination)
	if err != nil {
		return nil, err
	}
	csvw, err := writers.NewCSVWriter(dst)
	if err != nil {
		dst.Abort()
		return nil, err
	}
	sinks := []dqetl.DataSink{csvw}

	if r.archive == "" {
		return sinks, nil
	}
	table, ok := schema.Lookup(dsCfg.Table)
	if !ok {
		abortAll(sinks)
		return nil, fmt.Errorf("archive: unknown table %s", dsCfg.Table)
	}
	out, err := r.create(ctx, location.Join(r.archive, dsCfg.Table+".parquet"))
	if err != nil {
		abortAll(sinks)
		return nil, err
	}
	pw, err := writers.NewParquetWriter(out,
		writers.WithSchema(schema.ArrowSchema(table, columns)),
		writers.WithMetadata(map[string]string{"run_id": r.runID}))
	if err != nil {
		out.Abort()
		abortAll(sinks)
		return nil, err
	}
	return append(sinks, pw), nil
}

func (r *Runner) loadTask(name string) dag.TaskFunc {
	return func(ctx context.Context) error {
		dsCfg := r.cfg.Datasets[name]
		rep := r.report.Dataset(name)

		ds, err := r.readBack(ctx, name, dsCfg)
		if err != nil {
			r.remediation.Fail(dsCfg.Table, "load", err)
			return err
		}
		stats, err := r.loader.Load(ctx, ds, dsCfg.Table)
		if err != nil {
			r.remediation.Fail(dsCfg.Table, "load", err)
			return err
		}
		rep.LoadStats = &stats
		r.log.Info("dataset loaded",
			zap.String("dataset", name),
			zap.String("table", dsCfg.Table),
			zap.Int64("rows", stats.Rows),
			zap.Int("statements", stats.Statements))
		return nil
	}
}

// readBack reads a cleaned destination file as written, or its parquet
// archive copy when loading from an archive.
func (r *Runner) readBack(ctx context.Context, name string, dsCfg config.Dataset) (*dqetl.Dataset, error) {
	var source dqetl.DataSource
	if r.fromArchive != "" {
		pr, err := r.openParquet(ctx, location.Join(r.fromArchive, dsCfg.Table+".parquet"))
		if err != nil {
			return nil, err
		}
		source = pr
	} else {
		cr, err := r.openCSV(ctx, dsCfg.Destination)
		if err != nil {
			return nil, err
		}
		source = cr
	}

	key := dqetl.DefaultKey
	if spec, ok := catalog.Lookup(name); ok {
		key = spec.Key
	}
	p, err := dqetl.NewPipeline(name).Table(dsCfg.Table).Key(key).From(source).Build()
	if err != nil {
		source.Close()
		return nil, err
	}
	return p.Execute(ctx)
}

func (r *Runner) openParquet(ctx context.Context, uri string) (*readers.ParquetReader, error) {
	loc, err := r.resolver.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err := loc.Open(ctx)
	if err != nil {
		return nil, err
	}
	return readers.NewParquetReader(ctx, rc)
}

// prepareLoader connects to the configured store and provisions the schema.
func (r *Runner) prepareLoader(ctx context.Context) error {
	if r.loader != nil {
		return nil
	}
	if m := r.cfg.Mongo; m != nil {
		client, err := loader.ConnectMongo(ctx, m.URI)
		if err != nil {
			return err
		}
		r.mongo = client
		r.loader = loader.NewMongoLoader(client, m.Database, r.log.Named("mongo"), loader.MongoOptions{
			Policy:       r.cfg.Policy(),
			Transactions: m.Transactions,
			AuditUser:    r.cfg.Store.AuditUser,
		})
		return nil
	}

	sess, err := store.NewSession(r.cfg.Store, r.log.Named("store"))
	if err != nil {
		return err
	}
	r.session = sess
	if err := sess.ApplySchema(ctx); err != nil {
		return err
	}
	r.loader = loader.NewLoader(sess, r.log.Named("loader"), loader.WithPolicy(r.cfg.Policy()))
	return nil
}

func (r *Runner) openCSV(ctx context.Context, uri string) (*readers.CSVReader, error) {
	loc, err := r.resolver.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err := loc.Open(ctx)
	if err != nil {
		return nil, err
	}
	reader, err := readers.NewCSVReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return reader, nil
}

func (r *Runner) create(ctx context.Context, uri string) (location.Writer, error) {
	loc, err := r.resolver.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return loc.Create(ctx)
}

// WriteReport writes the report as JSON lines to uri.
func (r *Runner) WriteReport(ctx context.Context, uri string) error {
	w, err := r.create(ctx, uri)
	if err != nil {
		return err
	}
	return r.finish().WriteJSON(ctx, w)
}

// Close writes the remediation log and releases store connections. It is
// safe to call more than once; the log is written only the first time.
func (r *Runner) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.flushRemediation(); err != nil {
		errs = append(errs, err)
	}
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.mongo != nil {
		if err := r.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) flushRemediation() error {
	if r.remediation.Len() == 0 {
		return nil
	}
	ws, closeFn, err := remediation.Open(r.cfg.Remediation.Path)
	if err != nil {
		return err
	}
	err = r.remediation.Flush(ws, r.cfg.Remediation.Encoding)
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return err
}

func abortAll(sinks []dqetl.DataSink) {
	for _, s := range sinks {
		if a, ok := s.(dqetl.Aborter); ok {
			a.Abort()
			continue
		}
		s.Close()
	}
}
