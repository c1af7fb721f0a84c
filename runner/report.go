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

package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/dag"
	"github.com/aaronlmathis/dqetl/loader"
	"github.com/aaronlmathis/dqetl/remediation"
	"github.com/aaronlmathis/dqetl/writers"
)

// DatasetReport is the outcome of one dataset across both phases.
type DatasetReport struct {
	Dataset     string
	Table       string
	Clean       dag.Status // empty when the phase did not run
	Load        dag.Status
	RowsIn      int64
	RowsOut     int
	Malformed   int // source rows dropped before the rules ran
	Remediation map[remediation.Action]int
	Fingerprint uint64
	LoadStats   *loader.LoadStats
	Err         error
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Datasets []*DatasetReport
}

func newReport(runID string, started time.Time, names []string, tables map[string]string) *Report {
	r := &Report{RunID: runID, Started: started}
	for _, name := range names {
		r.Datasets = append(r.Datasets, &DatasetReport{Dataset: name, Table: tables[name]})
	}
	return r
}

// Dataset returns the report entry for name, or nil.
func (r *Report) Dataset(name string) *DatasetReport {
	for _, d := range r.Datasets {
		if d.Dataset == name {
			return d
		}
	}
	return nil
}

// Failed reports whether any phase of any dataset did not succeed.
func (r *Report) Failed() bool {
	for _, d := range r.Datasets {
		if (d.Clean != "" && d.Clean != dag.StatusSuccess) || (d.Load != "" && d.Load != dag.StatusSuccess) {
			return true
		}
	}
	return false
}

// Records flattens the report into one summary record followed by one record
// per dataset.
func (r *Report) Records() []dqetl.Record {
	status := "success"
	if r.Failed() {
		status = "failed"
	}
	out := []dqetl.Record{{
		"run_id":   r.RunID,
		"started":  r.Started.UTC().Format(time.RFC3339Nano),
		"finished": r.Finished.UTC().Format(time.RFC3339Nano),
		"status":   status,
		"datasets": len(r.Datasets),
	}}
	for _, d := range r.Datasets {
		rec := dqetl.Record{
			"run_id":      r.RunID,
			"dataset":     d.Dataset,
			"table":       d.Table,
			"clean":       nullable(string(d.Clean)),
			"load":        nullable(string(d.Load)),
			"rows_in":     d.RowsIn,
			"rows_out":    d.RowsOut,
			"malformed":   d.Malformed,
			"fingerprint": nil,
			"error":       nil,
		}
		if d.Clean == dag.StatusSuccess {
			rec["fingerprint"] = fmt.Sprintf("%016x", d.Fingerprint)
		}
		remediated := make(map[string]int, len(d.Remediation))
		for action, n := range d.Remediation {
			remediated[string(action)] = n
		}
		rec["remediation"] = remediated
		if d.LoadStats != nil {
			rec["loaded_rows"] = d.LoadStats.Rows
			rec["statements"] = d.LoadStats.Statements
			rec["load_ms"] = d.LoadStats.Duration.Milliseconds()
		}
		if d.Err != nil {
			rec["error"] = d.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

// WriteJSON writes the report as JSON lines to w and closes it.
func (r *Report) WriteJSON(ctx context.Context, w io.WriteCloser) error {
	jw := writers.NewJSONWriter(w)
	for _, rec := range r.Records() {
		if err := jw.Write(ctx, rec); err != nil {
			jw.Abort()
			return err
		}
	}
	return jw.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
