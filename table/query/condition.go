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

// Package query compiles a boolean tree of per-index equality predicates
// (a Condition) into a set of candidate RecordIds and applies an
// operation - select, update, delete - to the result (spec.md §4.7).
package query

import (
	"fmt"

	"github.com/erigontech/tinybase/table"
	"github.com/erigontech/tinybase/table/idset"
)

type opKind int

const (
	opBy opKind = iota
	opAnd
	opOr
	opNot
)

// Condition is a boolean-algebra expression over single-index equality
// predicates:
//
//	Condition ::= By(index, key) | And(a,b) | Or(a,b) | Not(a)
//
// Build one with By, And, Or and Not, then evaluate it with a Query.
type Condition[T any] struct {
	op          opKind
	left, right *Condition[T]
	selectFn    func() (*idset.Set, error)
	desc        string
}

// By selects every record whose ix key equals key.
func By[T any, K comparable](ix *table.Index[T, K], key K) Condition[T] {
	return Condition[T]{
		op:       opBy,
		selectFn: func() (*idset.Set, error) { return ix.Select(key) },
		desc:     fmt.Sprintf("By(%s,%v)", ix.Name(), key),
	}
}

// And is the intersection of a and b.
func And[T any](a, b Condition[T]) Condition[T] {
	return Condition[T]{op: opAnd, left: &a, right: &b, desc: fmt.Sprintf("And(%s, %s)", a.desc, b.desc)}
}

// Or is the union of a and b.
func Or[T any](a, b Condition[T]) Condition[T] {
	return Condition[T]{op: opOr, left: &a, right: &b, desc: fmt.Sprintf("Or(%s, %s)", a.desc, b.desc)}
}

// Not is the complement of a with respect to every id currently in the
// table's primary tree.
func Not[T any](a Condition[T]) Condition[T] {
	return Condition[T]{op: opNot, left: &a, desc: fmt.Sprintf("Not(%s)", a.desc)}
}

// String renders the condition tree, e.g. "And(By(last_name,Smith),
// By(name,Bill))". Used by Query.Explain for troubleshooting only; it
// has no effect on evaluation.
func (c Condition[T]) String() string { return c.desc }
