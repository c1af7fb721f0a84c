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

// Package catalog defines the six datasets: their keys, parents and the
// ordered rule chain each one is cleaned with.
package catalog

import (
	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/rules"
)

// Options tune the rule chains.
type Options struct {
	// FallbackURL replaces invalid photo thumbnails; empty means rules.DefaultFallbackURL.
	FallbackURL string
}

// Spec describes one dataset.
type Spec struct {
	Name string
	Key  string
	// Parent is the dataset whose cleaned keys ForeignKey is checked against.
	Parent     string
	ForeignKey string
	chain      func(parent *dqetl.Dataset, opts Options) []dqetl.Rule
}

// Rules returns the rule chain in application order. parent must be the
// cleaned parent dataset when Parent is set.
func (s Spec) Rules(parent *dqetl.Dataset, opts Options) []dqetl.Rule {
	return s.chain(parent, opts)
}

// Dependencies returns the datasets that must be cleaned first.
func (s Spec) Dependencies() []string {
	if s.Parent == "" {
		return nil
	}
	return []string{s.Parent}
}

var specs = []Spec{
	{
		Name: "users",
		Key:  "id",
		chain: func(_ *dqetl.Dataset, _ Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.PrimaryKey("id"),
				rules.UsernameFill("username", "name"),
				rules.EmailBlank("email"),
				rules.Phone("phone"),
			}
		},
	},
	{
		Name:       "posts",
		Key:        "id",
		Parent:     "users",
		ForeignKey: "userId",
		chain: func(parent *dqetl.Dataset, _ Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.PrimaryKey("id"),
				rules.ForeignKey("userId", parent, "id"),
				rules.TitleSoft("title"),
				rules.BodyRequired("body"),
			}
		},
	},
	{
		Name:       "comments",
		Key:        "id",
		Parent:     "posts",
		ForeignKey: "postId",
		chain: func(parent *dqetl.Dataset, _ Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.PrimaryKey("id"),
				rules.ForeignKey("postId", parent, "id"),
				rules.NameSoft("name"),
				rules.EmailBlank("email"),
				rules.BodyRequired("body"),
			}
		},
	},
	{
		Name:       "albums",
		Key:        "id",
		Parent:     "users",
		ForeignKey: "userId",
		chain: func(parent *dqetl.Dataset, _ Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.PrimaryKey("id"),
				rules.ForeignKey("userId", parent, "id"),
				rules.TitleSoft("title"),
			}
		},
	},
	{
		Name:       "photos",
		Key:        "id",
		Parent:     "albums",
		ForeignKey: "albumId",
		chain: func(parent *dqetl.Dataset, opts Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.PrimaryKey("id"),
				rules.ForeignKey("albumId", parent, "id"),
				rules.TitleSoft("title"),
				rules.URLDrop("url"),
				rules.URLFallback("thumbnailUrl", opts.FallbackURL),
			}
		},
	},
	{
		Name:       "todos",
		Key:        "id",
		Parent:     "users",
		ForeignKey: "userId",
		// the foreign key is checked before the primary key
		chain: func(parent *dqetl.Dataset, _ Options) []dqetl.Rule {
			return []dqetl.Rule{
				rules.ForeignKey("userId", parent, "id"),
				rules.PrimaryKey("id"),
				rules.TitleStrict("title"),
				rules.Boolean("completed"),
			}
		},
	},
}

// Specs returns every dataset spec, parents before children.
func Specs() []Spec {
	return append([]Spec(nil), specs...)
}

// Names returns the dataset names in Specs order.
func Names() []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the spec for a dataset name.
func Lookup(name string) (Spec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
