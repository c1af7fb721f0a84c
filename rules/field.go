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

// Package rules implements the data-quality rule library: composable checks over
// one column of a dataset, each paired with a remediation policy.
package rules

import (
	"regexp"

	"github.com/aaronlmathis/dqetl"
)

// Patterns used by the built-in rules.
var (
	EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	PhonePattern = regexp.MustCompile(`^[0-9]{10}$`)

	// URLPattern only anchors at the start; trailing text is allowed.
	URLPattern = regexp.MustCompile(`^(?:https?://(?:www\.)?\S+|www\.\S+)`)
)

// FieldDataType represents expected data types for validation
type FieldDataType string

const (
	FieldTypeString FieldDataType = "string"
	FieldTypeInt    FieldDataType = "int"
	FieldTypeFloat  FieldDataType = "float"
	FieldTypeNumber FieldDataType = "number"
	FieldTypeBool   FieldDataType = "bool"
	FieldTypeEmail  FieldDataType = "email"
	FieldTypeURL    FieldDataType = "url"
	FieldTypeAny    FieldDataType = "any"
)

// FieldValidator defines validation rules for a single column value.
//
// Pattern and AllowedValues compare against the stringified value, so a numeric
// phone number and a boolean read as True/False are checked the same way as text.
type FieldValidator struct {
	Required      bool           // null values are invalid
	DataType      FieldDataType  // expected data type; empty means any
	Pattern       *regexp.Regexp // regex the stringified value must match
	AllowedValues []string       // whitelist of stringified values
}

// Valid reports whether v passes every configured check.
// A null value fails whenever any value-level check is configured.
func (fv FieldValidator) Valid(v interface{}) bool {
	if dqetl.IsNull(v) {
		if fv.Required || fv.Pattern != nil || len(fv.AllowedValues) > 0 {
			return false
		}
		return fv.DataType == "" || fv.DataType == FieldTypeAny
	}

	if !validateDataType(v, fv.DataType) {
		return false
	}

	s := dqetl.Stringify(v)
	if fv.Pattern != nil && !fv.Pattern.MatchString(s) {
		return false
	}

	if len(fv.AllowedValues) > 0 {
		allowed := false
		for _, a := range fv.AllowedValues {
			if s == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// validateDataType checks if a non-null value matches the expected data type
func validateDataType(value interface{}, expected FieldDataType) bool {
	switch expected {
	case "", FieldTypeAny:
		return true
	case FieldTypeString:
		_, ok := value.(string)
		return ok
	case FieldTypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case FieldTypeFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case FieldTypeNumber:
		return dqetl.IsNumeric(value)
	case FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case FieldTypeEmail:
		s, ok := value.(string)
		return ok && EmailPattern.MatchString(s)
	case FieldTypeURL:
		s, ok := value.(string)
		return ok && URLPattern.MatchString(s)
	default:
		return true // Unknown types pass validation
	}
}
