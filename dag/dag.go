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

// Package dag orders dataset tasks by their dependencies and runs them
// sequentially, skipping or running dependents according to trigger rules.
package dag

import (
	"fmt"
	"io"
	"strings"
)

// DAG represents a directed acyclic graph of tasks
type DAG struct {
	id           string
	name         string
	tasks        map[string]*Task
	order        []string // insertion order, the tie-breaker for execution order
	dependencies map[string][]string
}

// GetID returns the DAG's unique identifier
func (d *DAG) GetID() string {
	return d.id
}

// GetName returns the DAG's name
func (d *DAG) GetName() string {
	return d.name
}

// GetTask returns the task with the given id
func (d *DAG) GetTask(taskID string) (*Task, bool) {
	t, ok := d.tasks[taskID]
	return t, ok
}

// GetTaskCount returns the total number of tasks
func (d *DAG) GetTaskCount() int {
	return len(d.tasks)
}

// HasTask checks if a task exists in the DAG
func (d *DAG) HasTask(taskID string) bool {
	_, exists := d.tasks[taskID]
	return exists
}

// GetDependencies returns the dependencies for a specific task
func (d *DAG) GetDependencies(taskID string) []string {
	if deps, exists := d.dependencies[taskID]; exists {
		return deps
	}
	return []string{}
}

// GetDownstreamTasks returns all tasks that depend on this task, in insertion order
func (d *DAG) GetDownstreamTasks(taskID string) []string {
	var downstream []string
	for _, id := range d.order {
		for _, dep := range d.dependencies[id] {
			if dep == taskID {
				downstream = append(downstream, id)
				break
			}
		}
	}
	return downstream
}

// ValidateDAGStructure reports missing dependencies and cycles
func (d *DAG) ValidateDAGStructure() []error {
	var errs []error

	for _, taskID := range d.order {
		for _, dep := range d.dependencies[taskID] {
			if !d.HasTask(dep) {
				errs = append(errs, fmt.Errorf("task %s depends on non-existent task %s", taskID, dep))
			}
		}
	}

	if d.hasCycle() {
		errs = append(errs, fmt.Errorf("DAG contains cycles"))
	}

	return errs
}

// GetExecutionOrder returns tasks in topological execution order.
// The order is deterministic: ties are broken by insertion order.
func (d *DAG) GetExecutionOrder() ([]string, error) {
	return d.topologicalSort()
}

// Describe writes a human-readable structure of the DAG
func (d *DAG) Describe(w io.Writer) error {
	order, err := d.GetExecutionOrder()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "DAG: %s (%s), %d tasks\n", d.name, d.id, len(d.tasks)); err != nil {
		return err
	}
	for i, id := range order {
		task := d.tasks[id]
		line := fmt.Sprintf("  %d. %s", i+1, id)
		if deps := d.GetDependencies(id); len(deps) > 0 {
			line += fmt.Sprintf(" <- %s [%s]", strings.Join(deps, ", "), task.TriggerRule)
		}
		if task.Description != "" {
			line += ": " + task.Description
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func (d *DAG) hasCycle() bool {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, taskID := range d.order {
		if !visited[taskID] {
			if d.dfsHasCycle(taskID, visited, recStack) {
				return true
			}
		}
	}
	return false
}

func (d *DAG) dfsHasCycle(taskID string, visited, recStack map[string]bool) bool {
	visited[taskID] = true
	recStack[taskID] = true

	for _, dep := range d.dependencies[taskID] {
		if !visited[dep] {
			if d.dfsHasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[taskID] = false
	return false
}

// topologicalSort performs Kahn's algorithm for topological sorting
func (d *DAG) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.order))
	for _, taskID := range d.order {
		inDegree[taskID] = len(d.dependencies[taskID])
	}

	queue := make([]string, 0, len(d.order))
	for _, taskID := range d.order {
		if inDegree[taskID] == 0 {
			queue = append(queue, taskID)
		}
	}

	result := make([]string, 0, len(d.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, taskID := range d.GetDownstreamTasks(current) {
			inDegree[taskID]--
			if inDegree[taskID] == 0 {
				queue = append(queue, taskID)
			}
		}
	}

	if len(result) != len(d.tasks) {
		return nil, fmt.Errorf("DAG contains cycles")
	}

	return result, nil
}
