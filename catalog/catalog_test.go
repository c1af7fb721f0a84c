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

package catalog

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/readers"
	"github.com/aaronlmathis/dqetl/rules"
	"github.com/aaronlmathis/dqetl/writers"
)

// sliceSource serves records from memory
type sliceSource struct {
	columns []string
	records []dqetl.Record
	pos     int
}

func (s *sliceSource) Columns() []string { return s.columns }

func (s *sliceSource) Read(ctx context.Context) (dqetl.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Close() error { return nil }

func clean(t *testing.T, name string, parent *dqetl.Dataset, columns []string, records ...dqetl.Record) *dqetl.Dataset {
	t.Helper()
	spec, ok := Lookup(name)
	require.True(t, ok)
	p, err := dqetl.NewPipeline(name).
		From(&sliceSource{columns: columns, records: records}).
		Check(spec.Rules(parent, Options{})...).
		Build()
	require.NoError(t, err)
	ds, err := p.Execute(context.Background())
	require.NoError(t, err)
	return ds
}

// TestSpecs_Order tests that parents precede children
func TestSpecs_Order(t *testing.T) {
	assert.Equal(t, []string{"users", "posts", "comments", "albums", "photos", "todos"}, Names())
	seen := map[string]bool{}
	for _, s := range Specs() {
		for _, dep := range s.Dependencies() {
			assert.True(t, seen[dep], "%s before %s", dep, s.Name)
		}
		seen[s.Name] = true
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
}

// TestSpecs_RuleChains tests the rule order of every dataset
func TestSpecs_RuleChains(t *testing.T) {
	parent := dqetl.NewDataset("p", "p", []string{"id"})
	want := map[string][]string{
		"users":    {"primary-key(id)", "username-fill(username)", "email-blank(email)", "phone(phone)"},
		"posts":    {"primary-key(id)", "foreign-key(userId->p.id)", "title-soft(title)", "body-required(body)"},
		"comments": {"primary-key(id)", "foreign-key(postId->p.id)", "name-soft(name)", "email-blank(email)", "body-required(body)"},
		"albums":   {"primary-key(id)", "foreign-key(userId->p.id)", "title-soft(title)"},
		"photos":   {"primary-key(id)", "foreign-key(albumId->p.id)", "title-soft(title)", "url-drop(url)", "url-fallback(thumbnailUrl)"},
		"todos":    {"foreign-key(userId->p.id)", "primary-key(id)", "title-strict(title)", "boolean(completed)"},
	}
	for _, s := range Specs() {
		var names []string
		for _, r := range s.Rules(parent, Options{}) {
			names = append(names, r.Name())
		}
		assert.Equal(t, want[s.Name], names, s.Name)
	}
}

// TestPosts_Example tests the posts chain against a cleaned users dataset
func TestPosts_Example(t *testing.T) {
	users := clean(t, "users", nil, []string{"id", "name", "username", "email", "phone"},
		dqetl.Record{"id": int64(1), "name": "Leanne", "username": "Bret", "email": "a@b.co", "phone": "1234567890"})

	posts := clean(t, "posts", users, []string{"id", "userId", "title", "body"},
		dqetl.Record{"id": int64(10), "userId": int64(1), "title": nil, "body": "hi"},
		dqetl.Record{"id": int64(11), "userId": int64(99), "title": "t", "body": "x"},
	)

	require.Equal(t, 1, posts.Len())
	assert.Equal(t, dqetl.Record{"id": int64(10), "userId": int64(1), "title": "untitled", "body": "hi"}, posts.Records[0])
}

// TestTodos_Booleans tests that only True/False completions survive
func TestTodos_Booleans(t *testing.T) {
	users := dqetl.NewDataset("users", "users", []string{"id"})
	users.Records = []dqetl.Record{{"id": int64(1)}}

	todos := clean(t, "todos", users, []string{"userId", "id", "title", "completed"},
		dqetl.Record{"userId": int64(1), "id": int64(1), "title": "a", "completed": "maybe"},
		dqetl.Record{"userId": int64(1), "id": int64(2), "title": "b", "completed": "True"},
		dqetl.Record{"userId": int64(1), "id": int64(3), "title": "c", "completed": false},
	)

	require.Equal(t, 2, todos.Len())
	assert.Equal(t, int64(2), todos.Records[0]["id"])
	assert.Equal(t, int64(3), todos.Records[1]["id"])
}

// TestPhotos_ThumbnailFallback tests the null-safe URL rule in the photos chain
func TestPhotos_ThumbnailFallback(t *testing.T) {
	albums := dqetl.NewDataset("albums", "albums", []string{"id"})
	albums.Records = []dqetl.Record{{"id": int64(1)}}

	photos := clean(t, "photos", albums, []string{"albumId", "id", "title", "url", "thumbnailUrl"},
		dqetl.Record{"albumId": int64(1), "id": int64(1), "title": "p", "url": "https://via.placeholder.com/600/92c952", "thumbnailUrl": "ftp://x"},
		dqetl.Record{"albumId": int64(1), "id": int64(2), "title": "p", "url": "not a url", "thumbnailUrl": "https://x.y"},
	)

	require.Equal(t, 1, photos.Len())
	assert.Equal(t, rules.DefaultFallbackURL, photos.Records[0]["thumbnailUrl"])
}

// TestUsers_Chain tests username fill, email blanking and phone checks
func TestUsers_Chain(t *testing.T) {
	users := clean(t, "users", nil, []string{"id", "name", "username", "email", "phone"},
		dqetl.Record{"id": int64(1), "name": "Leanne", "username": nil, "email": "not-an-email", "phone": "1-770-736-8031"},
		dqetl.Record{"id": int64(2), "name": "Ervin", "username": "Antonette", "email": "e@x.io", "phone": int64(1234567890)},
		dqetl.Record{"id": int64(2), "name": "Dup", "username": "d", "email": "d@x.io", "phone": "1234567890"},
		dqetl.Record{"id": int64(3), "name": "Clementine", "username": "Samantha", "email": "c@x.io", "phone": int64(1234567890)},
	)

	require.Equal(t, 2, users.Len())
	assert.Equal(t, dqetl.Record{"id": int64(1), "name": "Leanne", "username": "Leanne", "email": "", "phone": ""}, users.Records[0])
	assert.Equal(t, int64(3), users.Records[1]["id"])
	assert.Equal(t, int64(1234567890), users.Records[1]["phone"])
}

// TestUsers_KeepsLeadingZeros tests that phone numbers and zip codes read from
// CSV survive the users chain and the cleaned output unchanged
func TestUsers_KeepsLeadingZeros(t *testing.T) {
	input := "id,name,username,email,phone,address.zipcode,title\n" +
		"1,Leanne,Bret,a@b.co,0123456789,02134,Inf\n" +
		"2,Ervin,Antonette,e@x.io,1-770-736,10001,Sir\n"
	reader, err := readers.NewCSVReader(io.NopCloser(strings.NewReader(input)))
	require.NoError(t, err)

	var out bytes.Buffer
	writer, err := writers.NewCSVWriter(nopWriteCloser{&out})
	require.NoError(t, err)

	spec, ok := Lookup("users")
	require.True(t, ok)
	p, err := dqetl.NewPipeline("users").
		Key(spec.Key).
		From(reader).
		Check(spec.Rules(nil, Options{})...).
		To(writer).
		Build()
	require.NoError(t, err)
	users, err := p.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, users.Len())
	assert.Equal(t, "0123456789", users.Records[0]["phone"])
	assert.Equal(t, "02134", users.Records[0]["address.zipcode"])
	assert.Equal(t, "", users.Records[1]["phone"])
	assert.Equal(t, "id,name,username,email,phone,address.zipcode,title\n"+
		"1,Leanne,Bret,a@b.co,0123456789,02134,Inf\n"+
		"2,Ervin,Antonette,e@x.io,,10001,Sir\n", out.String())
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
