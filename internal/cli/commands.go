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

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl/config"
	"github.com/aaronlmathis/dqetl/runner"
	"github.com/aaronlmathis/dqetl/store"
)

// ErrRunFailed is returned when at least one dataset failed a phase.
var ErrRunFailed = errors.New("one or more datasets failed")

type phase func(r *runner.Runner, ctx context.Context) (*runner.Report, error)

func newRunCmd(g *globals) *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean every dataset, then load the cleaned ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, g, report, nil, (*runner.Runner).Run)
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Write the run report as JSON lines to this location")
	return cmd
}

func newCleanCmd(g *globals) *cobra.Command {
	var report, archive string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean every dataset and write the destination files",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []runner.Option
			if archive != "" {
				opts = append(opts, runner.WithArchive(archive))
			}
			return execute(cmd, g, report, opts, (*runner.Runner).Clean)
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Write the run report as JSON lines to this location")
	cmd.Flags().StringVar(&archive, "archive", "", "Also write <archive>/<table>.parquet for every cleaned dataset")
	return cmd
}

func newLoadCmd(g *globals) *cobra.Command {
	var report, fromArchive string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the existing destination files into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []runner.Option
			if fromArchive != "" {
				opts = append(opts, runner.WithArchiveSource(fromArchive))
			}
			return execute(cmd, g, report, opts, (*runner.Runner).Load)
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Write the run report as JSON lines to this location")
	cmd.Flags().StringVar(&fromArchive, "from-archive", "", "Load <from-archive>/<table>.parquet instead of the destination files")
	return cmd
}

func newSchemaCmd(g *globals) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the table DDL for the configured dialect, or apply it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log, err := g.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			sess, err := store.NewSession(cfg.Store, log.Named("store"))
			if err != nil {
				return err
			}
			defer sess.Close()

			if !apply {
				for _, stmt := range sess.SchemaSQL() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", stmt)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sess.ApplySchema(ctx); err != nil {
				return err
			}
			log.Info("schema applied", zap.String("dialect", sess.Dialect().Name()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Create the tables instead of printing them")
	return cmd
}

func newCheckConfigCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the execution plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				var ce *config.ConfigError
				if errors.As(err, &ce) {
					for _, p := range ce.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
					}
				}
				return err
			}

			out := cmd.OutOrStdout()
			r := runner.New(cfg, nil)
			clean, err := r.CleanDAG()
			if err != nil {
				return err
			}
			if err := clean.Describe(out); err != nil {
				return err
			}
			load, err := r.LoadDAG(cfg.DatasetNames())
			if err != nil {
				return err
			}
			if err := load.Describe(out); err != nil {
				return err
			}

			target := cfg.Store.Dialect
			if cfg.Mongo != nil {
				target = "mongo " + cfg.Mongo.Database
			}
			fmt.Fprintf(out, "store: %s, conflict: %s, remediation: %s\n", target, cfg.Policy(), cfg.Remediation.Path)
			fmt.Fprintln(out, "config OK")
			return nil
		},
	}
}

// execute runs one phase with SIGINT cancellation, writes the optional report
// and always flushes the remediation log.
func execute(cmd *cobra.Command, g *globals, report string, opts []runner.Option, run phase) (err error) {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	log, err := g.logger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(cfg, log, opts...)
	defer func() {
		if cerr := r.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Error("closing run", zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	log.Info("run started", zap.String("run_id", r.RunID()), zap.String("command", cmd.Name()))
	rep, err := run(r, ctx)
	if err != nil {
		return err
	}

	if report != "" {
		if err := r.WriteReport(ctx, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	var failed []string
	for _, d := range rep.Datasets {
		if d.Err != nil {
			failed = append(failed, d.Dataset)
		}
	}
	log.Info("run finished",
		zap.String("run_id", r.RunID()),
		zap.Duration("elapsed", rep.Finished.Sub(rep.Started)),
		zap.Strings("failed", failed))
	if rep.Failed() {
		return fmt.Errorf("%w: %s", ErrRunFailed, strings.Join(failed, ", "))
	}
	return nil
}
