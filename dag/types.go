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

package dag

import (
	"context"
	"errors"
	"time"
)

// TriggerRule decides whether a task runs given the outcome of its dependencies.
type TriggerRule string

const (
	TriggerAllSuccess TriggerRule = "all_success" // All dependencies succeeded
	TriggerAllDone    TriggerRule = "all_done"    // All dependencies finished, whatever the outcome
)

// Status is the outcome of one task.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusUpstreamFailed Status = "upstream_failed"
)

// ErrUpstreamFailed is recorded for tasks skipped because a dependency failed.
var ErrUpstreamFailed = errors.New("upstream failed")

// TaskFunc is the work of a task.
type TaskFunc func(ctx context.Context) error

// Task is a node of the graph.
type Task struct {
	ID           string
	Run          TaskFunc
	Dependencies []string
	TriggerRule  TriggerRule
	Description  string
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithTriggerRule sets the task's trigger rule. The default is all_success.
func WithTriggerRule(rule TriggerRule) TaskOption {
	return func(t *Task) {
		t.TriggerRule = rule
	}
}

// WithDescription sets a human readable description.
func WithDescription(desc string) TaskOption {
	return func(t *Task) {
		t.Description = desc
	}
}

// TaskResult records how a task ended.
type TaskResult struct {
	ID        string
	Status    Status
	Err       error
	StartTime time.Time
	Duration  time.Duration
}
