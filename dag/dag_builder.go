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

// dag_builder.go - Fluent API for DAG construction
package dag

import (
	"errors"
	"fmt"
)

// DAGBuilder provides a fluent API for constructing DAGs
type DAGBuilder struct {
	dag  *DAG
	errs []error
}

// NewDAG creates a new DAG builder
func NewDAG(id, name string) *DAGBuilder {
	return &DAGBuilder{
		dag: &DAG{
			id:           id,
			name:         name,
			tasks:        make(map[string]*Task),
			dependencies: make(map[string][]string),
		},
	}
}

// AddTask adds a task that runs after its dependencies
func (db *DAGBuilder) AddTask(id string, run TaskFunc, dependencies []string, opts ...TaskOption) *DAGBuilder {
	if id == "" {
		db.errs = append(db.errs, fmt.Errorf("task id is required"))
		return db
	}
	if run == nil {
		db.errs = append(db.errs, fmt.Errorf("task %s has no function", id))
		return db
	}
	if db.dag.HasTask(id) {
		db.errs = append(db.errs, fmt.Errorf("task %s added twice", id))
		return db
	}

	task := &Task{
		ID:           id,
		Run:          run,
		Dependencies: append([]string(nil), dependencies...),
		TriggerRule:  TriggerAllSuccess,
	}
	for _, opt := range opts {
		opt(task)
	}

	db.dag.tasks[id] = task
	db.dag.order = append(db.dag.order, id)
	if len(dependencies) > 0 {
		db.dag.dependencies[id] = task.Dependencies
	}
	return db
}

// Build validates and returns the constructed DAG
func (db *DAGBuilder) Build() (*DAG, error) {
	errs := append([]error(nil), db.errs...)
	errs = append(errs, db.dag.ValidateDAGStructure()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return db.dag, nil
}
