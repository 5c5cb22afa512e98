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

// Constraint is a predicate invoked during writes; violating it aborts
// the write before any batch is assembled (spec.md §4.6). Construct one
// with Unique or Check.
type Constraint[T any] struct {
	kind      ConstraintKind
	name      string
	indexName string
	predicate func(T) bool
}

// Unique marks the index named indexName as enforcing uniqueness. If the
// index already enforces uniqueness this is a no-op; otherwise
// registering it triggers a one-time verification scan of the index's
// current contents (spec.md §4.4).
func Unique[T any](indexName string) Constraint[T] {
	return Constraint[T]{kind: KindUnique, indexName: indexName, name: indexName}
}

// Check registers a named predicate every write must satisfy. Checks run
// before any batch is assembled and are pure from the engine's
// perspective (spec.md §4.6).
func Check[T any](name string, predicate func(T) bool) Constraint[T] {
	return Constraint[T]{kind: KindCheck, name: name, predicate: predicate}
}
