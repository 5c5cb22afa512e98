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

package kv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

type kvItem struct {
	key, val []byte
}

func kvLess(a, b kvItem) bool { return bytes.Compare(a.key, b.key) < 0 }

// memDB is an in-memory DB backed by one github.com/google/btree ordered
// tree per named tree, used for temporary Stores (spec.md §4.1) and
// tests. An RWMutex serializes writers and isolates readers from
// in-flight batches; a failed Update restores the pre-batch tree
// pointers instead of leaving the trees it touched mutated, so either
// every write in the batch becomes visible or none does.
type memDB struct {
	mu    sync.RWMutex
	trees map[string]*btree.BTreeG[kvItem]
	closed bool
}

// NewMem returns a fresh in-memory DB with no persisted state.
func NewMem() DB {
	return &memDB{trees: make(map[string]*btree.BTreeG[kvItem])}
}

// mutableTree returns the tree to write through for this transaction,
// cloning it into d.trees on first touch (google/btree's Clone is O(1)
// copy-on-write) so a rolled-back Update never mutates a tree a
// concurrent or prior reader is looking at.
func (tx *memRwTx) mutableTree(name string) *btree.BTreeG[kvItem] {
	if tx.touched[name] {
		return tx.db.trees[name]
	}
	t, ok := tx.db.trees[name]
	if ok {
		t = t.Clone()
	} else {
		t = btree.NewG(32, kvLess)
	}
	tx.db.trees[name] = t
	tx.touched[name] = true
	return t
}

type memTx struct {
	db *memDB
}

func (tx *memTx) GetOne(tree string, k []byte) ([]byte, error) {
	t, ok := tx.db.trees[tree]
	if !ok {
		return nil, nil
	}
	if item, found := t.Get(kvItem{key: k}); found {
		return item.val, nil
	}
	return nil, nil
}

func (tx *memTx) Has(tree string, k []byte) (bool, error) {
	v, err := tx.GetOne(tree, k)
	return v != nil, err
}

func (tx *memTx) ForPrefix(tree string, prefix []byte, walker func(k, v []byte) (bool, error)) error {
	t, ok := tx.db.trees[tree]
	if !ok {
		return nil
	}
	var walkErr error
	t.AscendGreaterOrEqual(kvItem{key: prefix}, func(item kvItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		cont, err := walker(item.key, item.val)
		if err != nil {
			walkErr = err
			return false
		}
		return cont
	})
	return walkErr
}

func (tx *memTx) Count(tree string) (uint64, error) {
	t, ok := tx.db.trees[tree]
	if !ok {
		return 0, nil
	}
	return uint64(t.Len()), nil
}

type memRwTx struct {
	memTx
	touched map[string]bool
}

func (tx *memRwTx) CreateTreeIfNotExists(tree string) error {
	tx.mutableTree(tree)
	return nil
}

func (tx *memRwTx) Put(tree string, k, v []byte) error {
	t := tx.mutableTree(tree)
	cp := make([]byte, len(v))
	copy(cp, v)
	t.ReplaceOrInsert(kvItem{key: append([]byte(nil), k...), val: cp})
	return nil
}

func (tx *memRwTx) Delete(tree string, k []byte) error {
	if _, ok := tx.db.trees[tree]; !ok && !tx.touched[tree] {
		return nil
	}
	t := tx.mutableTree(tree)
	t.Delete(kvItem{key: k})
	return nil
}

func (d *memDB) View(ctx context.Context, f func(tx Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return f(&memTx{db: d})
}

func (d *memDB) Update(ctx context.Context, f func(tx RwTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	orig := make(map[string]*btree.BTreeG[kvItem], len(d.trees))
	for name, t := range d.trees {
		orig[name] = t
	}
	rwtx := &memRwTx{memTx{db: d}, make(map[string]bool)}
	if err := f(rwtx); err != nil {
		d.trees = orig
		return err
	}
	return nil
}

func (d *memDB) ListTrees() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.trees))
	for name := range d.trees {
		names = append(names, name)
	}
	return names, nil
}

func (d *memDB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.trees = nil
	return nil
}
