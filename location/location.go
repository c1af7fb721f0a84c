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

// Package location resolves dataset sources and destinations, local paths or
// s3://bucket/key URIs, to readers and atomic writers.
package location

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// LocationError wraps a failed location operation with its URI.
type LocationError struct {
	Op  string
	URI string
	Err error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// Writer is an output that becomes visible only when closed.
// Abort discards everything written.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// Location is a place a dataset can be read from or written to.
type Location interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Create(ctx context.Context) (Writer, error)
	Exists(ctx context.Context) (bool, error)
	String() string
}

// Resolver maps URIs to locations. The S3 client is created on first use.
type Resolver struct {
	opts S3Options

	mu     sync.Mutex
	client S3API
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithS3Client uses client instead of building one from the S3 options.
func WithS3Client(client S3API) ResolverOption {
	return func(r *Resolver) { r.client = client }
}

// NewResolver creates a resolver.
func NewResolver(opts S3Options, options ...ResolverOption) *Resolver {
	r := &Resolver{opts: opts}
	for _, o := range options {
		o(r)
	}
	return r
}

// Resolve parses uri. A "file://" prefix is optional for local paths.
func (r *Resolver) Resolve(ctx context.Context, uri string) (Location, error) {
	if strings.HasPrefix(uri, "s3://") {
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, &LocationError{Op: "resolve", URI: uri, Err: err}
		}
		client, err := r.s3Client(ctx)
		if err != nil {
			return nil, &LocationError{Op: "resolve", URI: uri, Err: err}
		}
		return &S3Location{Bucket: bucket, Key: key, Client: client}, nil
	}
	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return nil, &LocationError{Op: "resolve", URI: uri, Err: fmt.Errorf("empty path")}
	}
	return &FileLocation{Path: path}, nil
}

func (r *Resolver) s3Client(ctx context.Context) (S3API, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := newS3Client(ctx, r.opts)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Join appends elem to a directory-like URI.
func Join(base, elem string) string {
	if strings.HasPrefix(base, "s3://") {
		return strings.TrimSuffix(base, "/") + "/" + elem
	}
	return filepath.Join(strings.TrimPrefix(base, "file://"), elem)
}
