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

// Package kv is the generic ordered key-value store TinyBase is layered
// over. It provides a namespace of disjoint named "trees", atomic
// multi-key batches, and prefix iteration - the minimal contract spec.md
// assumes of the underlying storage engine.
//
// Variables naming:
//
//	tx  - read transaction
//	rwtx - read-write transaction
//	k, v - key, value
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by the in-memory DB's View and Update after the
// DB has been closed.
var ErrClosed = errors.New("kv: store is closed")

// ErrTreeMissing marks a tree that was never created when it is opened
// without creating it. The mdbx backend's reads and deletes turn it into
// an empty result (GetOne returns nil, nil; Count returns 0; ForPrefix
// visits nothing; Delete is a no-op), so Getter callers never see it.
var ErrTreeMissing = errors.New("kv: tree does not exist")

// Getter is the read side of a tree-scoped transaction.
type Getter interface {
	// GetOne returns the value stored under k in tree, or (nil, nil) if
	// absent. The returned slice must not be retained past the
	// transaction's lifetime.
	GetOne(tree string, k []byte) ([]byte, error)

	// Has reports whether k exists in tree.
	Has(tree string, k []byte) (bool, error)

	// ForPrefix calls walker for every key in tree with the given
	// prefix, in ascending key order, until walker returns false or the
	// prefix is exhausted.
	ForPrefix(tree string, prefix []byte, walker func(k, v []byte) (bool, error)) error

	// Count returns the number of keys in tree.
	Count(tree string) (uint64, error)
}

// Putter is the write side of a tree-scoped transaction.
type Putter interface {
	Put(tree string, k, v []byte) error
	Delete(tree string, k []byte) error
}

// Tx is a read-only transaction. It observes a stable snapshot: concurrent
// writers never produce a torn read within a single Tx.
type Tx interface {
	Getter
}

// RwTx is a read-write transaction. All writes made through a RwTx become
// visible atomically at Commit, or not at all.
type RwTx interface {
	Tx
	Putter

	// CreateTreeIfNotExists ensures tree exists, creating it empty if
	// this is the first reference.
	CreateTreeIfNotExists(tree string) error
}

// DB is a handle to the underlying ordered store. Implementations: the
// mdbx-backed persistent store (mdbxDB) and the btree-backed in-memory
// store (memDB) used for temporary Stores and tests.
type DB interface {
	// View runs f inside a read-only transaction.
	View(ctx context.Context, f func(tx Tx) error) error

	// Update runs f inside a read-write transaction, committing iff f
	// returns nil. The whole batch of writes f performs becomes visible
	// atomically, or none of it does.
	Update(ctx context.Context, f func(tx RwTx) error) error

	// ListTrees returns the names of all trees that currently exist.
	ListTrees() ([]string, error)

	// Close flushes and releases the store. Safe to call more than
	// once.
	Close() error
}
