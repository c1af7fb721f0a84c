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

package rules

// DefaultFallbackURL replaces invalid thumbnail URLs.
const DefaultFallbackURL = "https://surl.li/yfoimd"

// TitleSoft replaces a null title with "untitled".
func TitleSoft(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "title-soft",
		Column:    column,
		Validator: FieldValidator{Required: true},
		Remedy:    SubstituteWith("untitled"),
		Problem:   "blank",
	}
}

// TitleStrict drops records with a null title.
func TitleStrict(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "title-strict",
		Column:    column,
		Validator: FieldValidator{Required: true},
		Remedy:    DropRow(),
		Problem:   "blank",
	}
}

// NameSoft replaces a null name with "anonymous".
func NameSoft(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "name-soft",
		Column:    column,
		Validator: FieldValidator{Required: true},
		Remedy:    SubstituteWith("anonymous"),
		Problem:   "blank",
	}
}

// EmailBlank empties email addresses that do not look like one.
func EmailBlank(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "email-blank",
		Column:    column,
		Validator: FieldValidator{Pattern: EmailPattern},
		Remedy:    BlankOut(),
	}
}

// EmailDrop drops every record whose email does not look like one.
func EmailDrop(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "email-drop",
		Column:    column,
		Validator: FieldValidator{Pattern: EmailPattern},
		Remedy:    DropRow(),
	}
}

// BodyRequired drops records with a null body.
func BodyRequired(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "body-required",
		Column:    column,
		Validator: FieldValidator{Required: true},
		Remedy:    DropRow(),
		Problem:   "null",
	}
}

// URLDrop drops every record whose URL does not start like one.
func URLDrop(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "url-drop",
		Column:    column,
		Validator: FieldValidator{Pattern: URLPattern},
		Remedy:    DropRow(),
	}
}

// URLFallback replaces invalid URLs with fallback, or DefaultFallbackURL when empty.
func URLFallback(column, fallback string) *ColumnRule {
	if fallback == "" {
		fallback = DefaultFallbackURL
	}
	return &ColumnRule{
		RuleName:  "url-fallback",
		Column:    column,
		Validator: FieldValidator{Pattern: URLPattern},
		Remedy:    SubstituteWith(fallback),
	}
}

// UsernameFill replaces a null username with the record's value in from,
// or "anonymous" when that is null as well.
func UsernameFill(column, from string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "username-fill",
		Column:    column,
		Validator: FieldValidator{Required: true},
		Remedy:    SubstituteFrom(from, "anonymous"),
		Problem:   "blank",
	}
}

// Phone empties phone numbers that are not exactly ten digits.
func Phone(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "phone",
		Column:    column,
		Validator: FieldValidator{Pattern: PhonePattern},
		Remedy:    BlankOut(),
	}
}

// Boolean drops records whose value does not print as True or False.
func Boolean(column string) *ColumnRule {
	return &ColumnRule{
		RuleName:  "boolean",
		Column:    column,
		Validator: FieldValidator{AllowedValues: []string{"True", "False"}},
		Remedy:    DropRow(),
	}
}
