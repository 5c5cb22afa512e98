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

package query

import (
	"fmt"

	"github.com/erigontech/tinybase/table"
	"github.com/erigontech/tinybase/table/idset"
)

// Query compiles a Condition over a Table and materializes it with
// Select, Update or Delete (spec.md §4.7).
type Query[T any] struct {
	table *table.Table[T]
	cond  Condition[T]
}

// New constructs a Query with no condition set; call WithCondition
// before materializing.
func New[T any](t *table.Table[T]) *Query[T] {
	return &Query[T]{table: t}
}

// WithCondition attaches c to the query and returns the query for
// chaining.
func (q *Query[T]) WithCondition(c Condition[T]) *Query[T] {
	q.cond = c
	return q
}

// Explain renders the attached condition tree for logging; it never
// affects evaluation.
func (q *Query[T]) Explain() string { return q.cond.String() }

func (q *Query[T]) eval(c Condition[T]) (*idset.Set, error) {
	switch c.op {
	case opBy:
		return c.selectFn()
	case opAnd:
		a, err := q.eval(*c.left)
		if err != nil {
			return nil, err
		}
		b, err := q.eval(*c.right)
		if err != nil {
			return nil, err
		}
		return idset.And(a, b), nil
	case opOr:
		a, err := q.eval(*c.left)
		if err != nil {
			return nil, err
		}
		b, err := q.eval(*c.right)
		if err != nil {
			return nil, err
		}
		return idset.Or(a, b), nil
	case opNot:
		a, err := q.eval(*c.left)
		if err != nil {
			return nil, err
		}
		universe, err := q.table.AllIDs()
		if err != nil {
			return nil, err
		}
		return idset.Not(a, universe), nil
	default:
		return nil, fmt.Errorf("query: unknown condition kind %d", c.op)
	}
}

// Select decodes every id the condition resolves to and returns them in
// ascending id order. Stale ids (pointing at since-deleted records) are
// silently skipped (spec.md §4.7, §4.8).
func (q *Query[T]) Select() ([]T, error) {
	ids, err := q.eval(q.cond)
	if err != nil {
		return nil, err
	}
	sorted := ids.ToSortedSlice()
	out := make([]T, 0, len(sorted))
	for _, id := range sorted {
		rec, ok, err := q.table.Get(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Failure records one id's failed Update or Delete during a best-effort
// bulk operation.
type Failure struct {
	ID  uint64
	Err error
}

// Update applies transform to every record the condition resolves to,
// rewriting it through Table.Update. A constraint violation on one
// record does not abort the sweep: that record is left unchanged, its
// error is collected into failures, and the remaining records still
// attempt (spec.md §4.7, §9 "Best-effort bulk operations"). Returns the
// successfully updated records' old values.
func (q *Query[T]) Update(transform func(T) T) (updated []T, failures []Failure, err error) {
	ids, err := q.eval(q.cond)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids.ToSortedSlice() {
		rec, ok, gerr := q.table.Get(id)
		if gerr != nil {
			return nil, nil, gerr
		}
		if !ok {
			continue
		}
		old, uerr := q.table.Update(id, transform(rec))
		if uerr != nil {
			failures = append(failures, Failure{ID: id, Err: uerr})
			continue
		}
		updated = append(updated, old)
	}
	return updated, failures, nil
}

// Delete removes every record the condition resolves to, best-effort
// like Update. Returns the successfully removed records.
func (q *Query[T]) Delete() (removed []T, failures []Failure, err error) {
	ids, err := q.eval(q.cond)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids.ToSortedSlice() {
		old, derr := q.table.Delete(id)
		if derr != nil {
			if table.IsNotFound(derr) {
				continue
			}
			failures = append(failures, Failure{ID: id, Err: derr})
			continue
		}
		removed = append(removed, old)
	}
	return removed, failures, nil
}

// Operator selects how LegacyQuery combines its accumulated terms at
// Execute time.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
)

// LegacyQuery reproduces the older two-call chaining surface - repeated
// By(index, key) calls combined by a single Operator supplied at
// execution time - kept because it must produce identical results to
// assembling the equivalent And/Or of By nodes directly (spec.md §4.7).
type LegacyQuery[T any] struct {
	table *table.Table[T]
	terms []Condition[T]
}

// NewLegacy starts a legacy-style query over t.
func NewLegacy[T any](t *table.Table[T]) *LegacyQuery[T] {
	return &LegacyQuery[T]{table: t}
}

// By appends another term to the chain.
func (q *LegacyQuery[T]) By(term Condition[T]) *LegacyQuery[T] {
	q.terms = append(q.terms, term)
	return q
}

// Execute combines every accumulated term with op, left to right, and
// returns the resulting Query.
func (q *LegacyQuery[T]) Execute(op Operator) *Query[T] {
	if len(q.terms) == 0 {
		return New(q.table)
	}
	combined := q.terms[0]
	for _, term := range q.terms[1:] {
		switch op {
		case OpOr:
			combined = Or(combined, term)
		default:
			combined = And(combined, term)
		}
	}
	return New(q.table).WithCondition(combined)
}
