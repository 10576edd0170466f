/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeUnknown     Code = "UNKNOWN"
	CodeValidation  Code = "VALIDATION"
	CodeIndex       Code = "INDEX"
	CodeCredential  Code = "CREDENTIAL"
	CodeGeneration  Code = "GENERATION"
	CodePermutation Code = "PERMUTATION"
	CodeNoScript    Code = "NO_SCRIPT"
)

// ErrNoScript is returned by stateful callers when an operation needs a script and none is held.
var ErrNoScript = errors.New("no script")

// ValidationError reports missing drafting inputs. Fields lists every missing field.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required field(s): " + strings.Join(e.Fields, ", ")
}

// FieldError reports a field value outside its allowed range.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// IndexError reports a panel position that does not exist.
type IndexError struct {
	Op    string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: panel index %d out of range [0,%d)", e.Op, e.Index, e.Len)
}

// CredentialError reports a generation request without a usable credential.
type CredentialError struct{}

func (e *CredentialError) Error() string { return "image provider credential is required" }

// GenerationFailure wraps a failed provider call for one panel.
type GenerationFailure struct {
	PanelID string
	Err     error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generate image for panel %s: %v", e.PanelID, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// PermutationError reports a reorder input that is not a permutation of the current panels.
type PermutationError struct {
	Reason string
}

func (e *PermutationError) Error() string { return "invalid panel permutation: " + e.Reason }

// CodeOf maps err onto its category. Nil maps to "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		fe *FieldError
		ie *IndexError
		ce *CredentialError
		ge *GenerationFailure
		pe *PermutationError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &fe):
		return CodeValidation
	case errors.As(err, &ie):
		return CodeIndex
	case errors.As(err, &ce):
		return CodeCredential
	case errors.As(err, &ge):
		return CodeGeneration
	case errors.As(err, &pe):
		return CodePermutation
	case errors.Is(err, ErrNoScript):
		return CodeNoScript
	default:
		return CodeUnknown
	}
}

// IsCode reports whether err belongs to category c.
func IsCode(err error, c Code) bool { return CodeOf(err) == c }
