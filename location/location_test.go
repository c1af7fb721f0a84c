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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

// TestResolver_Resolve tests URI parsing into locations
func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(S3Options{}, WithS3Client(newFakeS3()))
	ctx := context.Background()

	loc, err := r.Resolve(ctx, "data/posts.csv")
	require.NoError(t, err)
	assert.Equal(t, &FileLocation{Path: "data/posts.csv"}, loc)

	loc, err = r.Resolve(ctx, "file:///tmp/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.csv", loc.String())

	loc, err = r.Resolve(ctx, "s3://bucket/clean/posts.csv")
	require.NoError(t, err)
	s3loc, ok := loc.(*S3Location)
	require.True(t, ok)
	assert.Equal(t, "bucket", s3loc.Bucket)
	assert.Equal(t, "clean/posts.csv", s3loc.Key)

	for _, bad := range []string{"s3://bucket", "s3:///key", ""} {
		_, err = r.Resolve(ctx, bad)
		var locErr *LocationError
		assert.ErrorAs(t, err, &locErr, bad)
	}
}

// TestJoin tests joining archive names onto base URIs
func TestJoin(t *testing.T) {
	assert.Equal(t, "s3://b/archive/posts.parquet", Join("s3://b/archive/", "posts.parquet"))
	assert.Equal(t, filepath.Join("out", "archive", "posts.parquet"), Join("out/archive", "posts.parquet"))
}

// TestFileLocation_AtomicCreate tests that output appears only on Close
func TestFileLocation_AtomicCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "posts.csv")
	loc := &FileLocation{Path: path}
	ctx := context.Background()

	w, err := loc.Create(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("id\n1\n"))
	require.NoError(t, err)

	exists, err := loc.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "target must not exist before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	rc, err := loc.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

// TestFileLocation_AbortKeepsPrevious tests that abort leaves the previous file in place
func TestFileLocation_AbortKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	loc := &FileLocation{Path: path}

	w, err := loc.Create(context.Background())
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}

// TestFileLocation_OpenMissing tests the error for a missing file
func TestFileLocation_OpenMissing(t *testing.T) {
	loc := &FileLocation{Path: filepath.Join(t.TempDir(), "missing.csv")}
	_, err := loc.Open(context.Background())
	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestS3Location_RoundTrip tests upload on Close, abort and existence checks
func TestS3Location_RoundTrip(t *testing.T) {
	client := newFakeS3()
	loc := &S3Location{Bucket: "b", Key: "clean/users.csv", Client: client}
	ctx := context.Background()

	exists, err := loc.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	w, err := loc.Create(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, client.puts, "nothing uploaded before Close")
	require.NoError(t, w.Close())
	assert.Equal(t, 1, client.puts)

	exists, err = loc.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := loc.Open(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	aborted, err := loc.Create(ctx)
	require.NoError(t, err)
	_, err = aborted.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, aborted.Abort())
	require.NoError(t, aborted.Close())
	assert.Equal(t, 1, client.puts, "aborted writer never uploads")

	_, err = (&S3Location{Bucket: "b", Key: "missing", Client: client}).Open(ctx)
	var locErr *LocationError
	assert.ErrorAs(t, err, &locErr)
}
