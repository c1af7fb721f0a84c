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

// dag_executor.go - sequential DAG execution in topological order
package dag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DAGExecutor runs DAG tasks one at a time in topological order
type DAGExecutor struct {
	log *zap.Logger
}

// DAGExecutorOption configures a DAGExecutor
type DAGExecutorOption func(*DAGExecutor)

// WithLogger sets the executor's logger
func WithLogger(log *zap.Logger) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if log != nil {
			de.log = log
		}
	}
}

// NewDAGExecutor creates a new DAG executor with options
func NewDAGExecutor(opts ...DAGExecutorOption) *DAGExecutor {
	de := &DAGExecutor{log: zap.NewNop()}
	for _, opt := range opts {
		opt(de)
	}
	return de
}

// DAGResult contains the results of DAG execution
type DAGResult struct {
	Success     bool
	StartTime   time.Time
	EndTime     time.Time
	Order       []string
	TaskResults map[string]TaskResult
}

// Failed returns the ids of tasks that did not succeed, in execution order
func (r *DAGResult) Failed() []string {
	var failed []string
	for _, id := range r.Order {
		if res, ok := r.TaskResults[id]; ok && res.Status != StatusSuccess {
			failed = append(failed, id)
		}
	}
	return failed
}

// Execute runs every task whose trigger rule is satisfied. A failing task never
// stops the run; only a cancelled context does, in which case the partial
// result is returned with the context error.
func (de *DAGExecutor) Execute(ctx context.Context, dag *DAG) (*DAGResult, error) {
	order, err := dag.GetExecutionOrder()
	if err != nil {
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}

	result := &DAGResult{
		Success:     true,
		StartTime:   time.Now(),
		Order:       order,
		TaskResults: make(map[string]TaskResult, len(order)),
	}

	for _, taskID := range order {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.EndTime = time.Now()
			return result, err
		}

		task := dag.tasks[taskID]
		res := de.executeTask(ctx, task, result.TaskResults)
		result.TaskResults[taskID] = res
		if res.Status != StatusSuccess {
			result.Success = false
		}
	}

	result.EndTime = time.Now()
	return result, nil
}

func (de *DAGExecutor) executeTask(ctx context.Context, task *Task, done map[string]TaskResult) TaskResult {
	res := TaskResult{ID: task.ID, StartTime: time.Now()}

	if !de.shouldExecuteTask(task, done) {
		res.Status = StatusUpstreamFailed
		res.Err = ErrUpstreamFailed
		de.log.Warn("task skipped", zap.String("task", task.ID), zap.Strings("depends_on", task.Dependencies))
		return res
	}

	err := de.runTask(ctx, task)
	res.Duration = time.Since(res.StartTime)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		de.log.Error("task failed", zap.String("task", task.ID), zap.Duration("elapsed", res.Duration), zap.Error(err))
		return res
	}

	res.Status = StatusSuccess
	de.log.Debug("task completed", zap.String("task", task.ID), zap.Duration("elapsed", res.Duration))
	return res
}

// runTask turns a panicking task into a failed one.
func (de *DAGExecutor) runTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return task.Run(ctx)
}

// shouldExecuteTask checks if a task should execute based on its trigger rule
func (de *DAGExecutor) shouldExecuteTask(task *Task, done map[string]TaskResult) bool {
	if len(task.Dependencies) == 0 {
		return true
	}

	successCount := 0
	completeCount := 0
	for _, depID := range task.Dependencies {
		if res, exists := done[depID]; exists {
			completeCount++
			if res.Status == StatusSuccess {
				successCount++
			}
		}
	}

	switch task.TriggerRule {
	case TriggerAllDone:
		return completeCount == len(task.Dependencies)
	default:
		return successCount == len(task.Dependencies)
	}
}

// IsUpstreamFailure reports whether err marks a skipped task.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUpstreamFailed)
}
