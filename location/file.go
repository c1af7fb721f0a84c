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

package location

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileLocation is a path on the local filesystem.
type FileLocation struct {
	Path string
}

func (f *FileLocation) String() string {
	return f.Path
}

// Open opens the file for reading.
func (f *FileLocation) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, &LocationError{Op: "open", URI: f.Path, Err: err}
	}
	return file, nil
}

// Exists reports whether the file exists.
func (f *FileLocation) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(f.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &LocationError{Op: "stat", URI: f.Path, Err: err}
}

// Create writes to a temporary file next to Path, renamed over Path on Close.
// Parent directories are created as needed.
func (f *FileLocation) Create(ctx context.Context) (Writer, error) {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &LocationError{Op: "create_directory", URI: f.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return nil, &LocationError{Op: "create", URI: f.Path, Err: err}
	}
	return &atomicFile{File: tmp, target: f.Path}, nil
}

type atomicFile struct {
	*os.File
	target string
	done   bool
}

func (a *atomicFile) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(a.File.Name())
		return &LocationError{Op: "sync", URI: a.target, Err: err}
	}
	if err := a.File.Close(); err != nil {
		os.Remove(a.File.Name())
		return &LocationError{Op: "close", URI: a.target, Err: err}
	}
	if err := os.Chmod(a.File.Name(), 0o644); err != nil {
		os.Remove(a.File.Name())
		return &LocationError{Op: "chmod", URI: a.target, Err: err}
	}
	if err := os.Rename(a.File.Name(), a.target); err != nil {
		os.Remove(a.File.Name())
		return &LocationError{Op: "rename", URI: a.target, Err: err}
	}
	return nil
}

func (a *atomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	a.File.Close()
	if err := os.Remove(a.File.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &LocationError{Op: "abort", URI: a.target, Err: err}
	}
	return nil
}
