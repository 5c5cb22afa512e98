// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package table

import (
	"errors"
	"fmt"
)

// Sentinel errors, compared with errors.Is. spec.md §7.
var (
	ErrNotFound           = errors.New("table: record not found")
	ErrIndexAlreadyExists = errors.New("table: index already exists")
	ErrIndexMissing       = errors.New("table: index does not exist")
	ErrClosed             = errors.New("table: closed")
)

// ConstraintKind distinguishes the two constraint flavors of spec.md §4.6.
type ConstraintKind int

const (
	KindUnique ConstraintKind = iota
	KindCheck
)

func (k ConstraintKind) String() string {
	if k == KindUnique {
		return "Unique"
	}
	return "Check"
}

// ConstraintError is returned when a write violates a registered
// constraint. Name identifies the index (for Unique) or the constraint
// (for Check).
type ConstraintError struct {
	Name string
	Kind ConstraintKind
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("table: constraint violated: %s (%s)", e.Name, e.Kind)
}

// BackendError wraps an error surfaced by the underlying kv store.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("table: backend error: %v", e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// CodecError wraps a failure to decode a stored record.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("table: codec error: %v", e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
