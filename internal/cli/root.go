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

// Package cli wires the dqetl commands with cobra.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl/config"
	"github.com/aaronlmathis/dqetl/logging"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath  string
	envFiles    []string
	logLevel    string
	development bool
}

// NewRootCmd creates the dqetl command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "dqetl",
		Short: "Clean related CSV datasets and upsert them into a store",
		Long: `dqetl reads the users, posts, comments, albums, photos and todos datasets,
runs each through its data-quality rule chain, writes the cleaned files and
upserts them into a SQL store or MongoDB. Every fix is appended to the
remediation log.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "dqetl.yaml", "Path to the YAML or JSON configuration")
	flags.StringSliceVar(&g.envFiles, "env-file", nil, "Environment files to load before reading the config (default .env)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level, overrides the config (debug, info, warn, error)")
	flags.BoolVar(&g.development, "dev", false, "Human-readable development logging")

	rootCmd.AddCommand(
		newRunCmd(g),
		newCleanCmd(g),
		newLoadCmd(g),
		newSchemaCmd(g),
		newCheckConfigCmd(g),
	)
	return rootCmd
}

// load reads the environment files and the configuration.
func (g *globals) load() (*config.Config, error) {
	if err := config.LoadEnv(g.envFiles...); err != nil {
		return nil, err
	}
	return config.Load(g.configPath)
}

// logger builds the operational logger for cfg.
func (g *globals) logger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log, err := logging.New(logging.Options{Level: level, Development: g.development})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}
