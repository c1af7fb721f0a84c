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

import "fmt"

// SchemaError reports a rule that cannot run because the dataset lacks a column
// it needs. It signals a configuration or programming mistake, not bad data.
type SchemaError struct {
	Table  string
	Column string
	Rule   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: rule %s on table %s requires missing column %q", e.Rule, e.Table, e.Column)
}

// PipelineError wraps a dataset-level failure with the stage it happened in.
type PipelineError struct {
	Dataset string
	Op      string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s %s: %v", e.Dataset, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
