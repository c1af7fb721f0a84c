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

package dqetl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Package dqetl provides the dataset pipeline: read one dataset in full, run it
// through an ordered chain of rules, and write the surviving records to one or more sinks.
//
// Rules see the whole dataset because some of them (uniqueness, foreign keys) cannot
// be decided one record at a time. Each rule only sees what the previous rule kept.
//
// Example usage:
//
//   pipeline, err := dqetl.NewPipeline("posts").
//       Table("posts").
//       From(csvReader).
//       Check(rules.PrimaryKey("id"), rules.TitleSoft("title")).
//       To(csvWriter).
//       WithRecorder(remediationLog).
//       Build()
//   if err != nil { log.Fatal(err) }
//   cleaned, err := pipeline.Execute(ctx)

// PipelineBuilder provides a fluent API for constructing dataset pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder for the named dataset.
func NewPipeline(name string) *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			name:     name,
			table:    name,
			key:      DefaultKey,
			rules:    make([]Rule, 0),
			sinks:    make([]DataSink, 0),
			strategy: FailFast,
			recorder: Discard,
		},
	}
}

// Table sets the target table name reported in remediation entries.
func (pb *PipelineBuilder) Table(table string) *PipelineBuilder {
	pb.pipeline.table = table
	return pb
}

// Key sets the primary-key column used to identify records in remediation entries.
func (pb *PipelineBuilder) Key(column string) *PipelineBuilder {
	pb.pipeline.key = column
	return pb
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Check appends rules to the chain. Order is significant.
func (pb *PipelineBuilder) Check(rules ...Rule) *PipelineBuilder {
	pb.pipeline.rules = append(pb.pipeline.rules, rules...)
	return pb
}

// To adds a DataSink that receives the cleaned dataset.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sinks = append(pb.pipeline.sinks, sink)
	return pb
}

// WithRecorder sets where rules report remediation entries.
func (pb *PipelineBuilder) WithRecorder(rec Recorder) *PipelineBuilder {
	if rec != nil {
		pb.pipeline.recorder = rec
	}
	return pb
}

// WithErrorStrategy sets the error handling strategy for source read errors.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	for i, r := range pb.pipeline.rules {
		if r == nil {
			return nil, fmt.Errorf("pipeline rule %d is nil", i)
		}
	}
	return pb.pipeline, nil
}

// Pipeline cleans a single dataset.
type Pipeline struct {
	name         string
	table        string
	key          string
	source       DataSource
	rules        []Rule
	sinks        []DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	recorder     Recorder
	errs         []error
}

// Name returns the dataset name.
func (p *Pipeline) Name() string {
	return p.name
}

// Errors returns the read errors collected under CollectErrors.
func (p *Pipeline) Errors() []error {
	return append([]error(nil), p.errs...)
}

// Execute reads the source, applies every rule in order and writes the result to the sinks.
//
// The source and all sinks are closed before Execute returns; on failure sinks that
// implement Aborter are aborted instead. An empty result is written
// like any other (sinks decide what an empty dataset looks like) and is not an error.
func (p *Pipeline) Execute(ctx context.Context) (*Dataset, error) {
	ds, err := p.extract(ctx)
	if cerr := p.source.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		p.abortSinks()
		return nil, &PipelineError{Dataset: p.name, Op: "extract", Err: err}
	}

	for _, rule := range p.rules {
		if err := ctx.Err(); err != nil {
			p.abortSinks()
			return nil, &PipelineError{Dataset: p.name, Op: "rule " + rule.Name(), Err: err}
		}
		next, err := rule.Apply(ctx, ds, p.recorder)
		if err != nil {
			p.abortSinks()
			return nil, &PipelineError{Dataset: p.name, Op: "rule " + rule.Name(), Err: err}
		}
		ds = next
	}

	if err := p.write(ctx, ds); err != nil {
		return ds, &PipelineError{Dataset: p.name, Op: "write", Err: err}
	}
	return ds, nil
}

// extract reads every record from the source into a dataset.
func (p *Pipeline) extract(ctx context.Context) (*Dataset, error) {
	var columns []string
	if cs, ok := p.source.(ColumnSource); ok {
		columns = cs.Columns()
	}
	ds := NewDataset(p.name, p.table, columns)
	ds.Key = p.key

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := p.source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return nil, err
			}
			continue
		}

		// Skip empty records early
		if len(record) == 0 {
			continue
		}
		ds.Records = append(ds.Records, record)
	}

	if len(ds.Columns) == 0 && len(ds.Records) > 0 {
		for k := range ds.Records[0] {
			ds.Columns = append(ds.Columns, k)
		}
		sort.Strings(ds.Columns)
	}
	return ds, nil
}

// write sends the dataset to every sink and closes them.
func (p *Pipeline) write(ctx context.Context, ds *Dataset) error {
	var errs []error
	for _, sink := range p.sinks {
		if ca, ok := sink.(ColumnAware); ok {
			ca.SetColumns(ds.Columns)
		}
		var werr error
		for _, r := range ds.Records {
			if werr = sink.Write(ctx, r); werr != nil {
				break
			}
		}
		if werr == nil {
			werr = sink.Flush()
		}
		if werr != nil {
			if a, ok := sink.(Aborter); ok {
				a.Abort()
			} else {
				sink.Close()
			}
			errs = append(errs, werr)
			continue
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// abortSinks discards sink output after a failure so a previous good file is kept.
func (p *Pipeline) abortSinks() {
	for _, sink := range p.sinks {
		if a, ok := sink.(Aborter); ok {
			a.Abort()
			continue
		}
		sink.Close()
	}
}

// handleError handles errors according to the pipeline's error strategy and handler.
func (p *Pipeline) handleError(ctx context.Context, record Record, err error) error {
	switch p.strategy {
	case FailFast:
		return err
	case SkipErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	case CollectErrors:
		p.errs = append(p.errs, err)
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}
