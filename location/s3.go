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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 client used for s3:// locations.
type S3Options struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	Endpoint        string `yaml:"endpoint"`   // custom endpoint for S3-compatible services
	PathStyle       bool   `yaml:"path_style"` // use path-style addressing
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs a bucket and a key: %q", uri)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), nil
}

func createAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		)
	}
	return cfg, nil
}

// S3Location is an object in a bucket.
type S3Location struct {
	Bucket string
	Key    string
	Client S3API
}

func (s *S3Location) String() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

// Open streams the object body.
func (s *S3Location) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, &LocationError{Op: "get_object", URI: s.String(), Err: err}
	}
	return out.Body, nil
}

// Exists reports whether the object exists.
func (s *S3Location) Exists(ctx context.Context) (bool, error) {
	_, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, &LocationError{Op: "head_object", URI: s.String(), Err: err}
}

// Create buffers the object in memory and uploads it with a single PutObject on Close.
func (s *S3Location) Create(ctx context.Context) (Writer, error) {
	return &s3Writer{ctx: ctx, loc: s}, nil
}

type s3Writer struct {
	ctx  context.Context
	loc  *S3Location
	buf  bytes.Buffer
	done bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, &LocationError{Op: "write", URI: w.loc.String(), Err: errors.New("writer is closed")}
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	_, err := w.loc.Client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.loc.Bucket),
		Key:           aws.String(w.loc.Key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	})
	if err != nil {
		return &LocationError{Op: "put_object", URI: w.loc.String(), Err: err}
	}
	return nil
}

func (w *s3Writer) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
