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
	"context"
	"sync/atomic"

	"github.com/erigontech/tinybase/codec"
	"github.com/erigontech/tinybase/kv"
	"github.com/erigontech/tinybase/table/idset"
)

// Index is a derived mapping from a key-extraction function T -> K to the
// set of RecordIds sharing that key (spec.md §3, §4.5). An Index holds a
// shared handle to the kv store and its own secondary tree, never a
// reference back to the owning Table - queries reference indexes and the
// table, but indexes never reference either (spec.md §9).
type Index[T any, K comparable] struct {
	db      kv.DB
	tree    string
	name    string
	keyFn   func(T) K
	keyCode codec.Codec[K]
	unique  atomic.Bool
}

// CreateIndex opens or creates an index over t named name, keyed by
// keyFn, optionally enforcing uniqueness. If the index's secondary tree
// is new and t's primary tree is non-empty, CreateIndex back-fills it by
// scanning the primary tree; the whole back-fill runs under t's write
// lock so a uniqueness violation leaves no partial secondary tree
// visible (spec.md §4.4, §4.8).
//
// This is a package-level function, not a method on Table, because Go
// does not allow a method to introduce type parameters beyond its
// receiver's.
func CreateIndex[T any, K comparable](t *Table[T], name string, keyFn func(T) K, unique bool) (*Index[T, K], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, &BackendError{Err: ErrClosed}
	}
	if existing, ok := t.indexes[name]; ok {
		if existing.IsUnique() != unique {
			t.log.Warn("re-declaring index with different uniqueness", "table", t.name, "index", name)
		}
		if ix, ok := existing.(*Index[T, K]); ok {
			return ix, nil
		}
		return nil, ErrIndexAlreadyExists
	}

	ix := &Index[T, K]{
		db:      t.db,
		tree:    t.name + "_" + name,
		name:    name,
		keyFn:   keyFn,
		keyCode: codec.NewCBOR[K](),
	}
	ix.unique.Store(unique)

	var existed bool
	err := t.db.View(context.Background(), func(tx kv.Tx) error {
		trees, err := t.db.ListTrees()
		if err != nil {
			return err
		}
		for _, name := range trees {
			if name == ix.tree {
				existed = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, &BackendError{Err: err}
	}

	if !existed {
		t.log.Info("back-filling new index", "table", t.name, "index", name, "unique", unique)
		if err := t.db.Update(context.Background(), func(rwtx kv.RwTx) error {
			if err := rwtx.CreateTreeIfNotExists(ix.tree); err != nil {
				return err
			}
			return t.scanPrimary(rwtx, func(id uint64, rec T) error {
				return ix.put(rwtx, id, rec)
			})
		}); err != nil {
			return nil, err
		}
	}

	t.indexes[name] = ix
	return ix, nil
}

// Name returns the index's declared name.
func (ix *Index[T, K]) Name() string { return ix.name }

// IsUnique reports whether this index currently enforces uniqueness.
func (ix *Index[T, K]) IsUnique() bool { return ix.unique.Load() }

// Select returns the set of RecordIds currently associated with key.
// Missing keys yield the empty set (spec.md §4.5).
func (ix *Index[T, K]) Select(key K) (*idset.Set, error) {
	var out *idset.Set
	err := ix.db.View(context.Background(), func(tx kv.Tx) error {
		s, err := ix.selectTx(tx, key)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	return out, nil
}

func (ix *Index[T, K]) selectTx(tx kv.Tx, key K) (*idset.Set, error) {
	enc, err := encodeIndexKey(ix.keyCode, key)
	if err != nil {
		return nil, &CodecError{Err: err}
	}
	out := idset.New()
	if ix.IsUnique() {
		v, err := tx.GetOne(ix.tree, enc)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out.Add(DecodeID(v))
		}
		return out, nil
	}
	err = tx.ForPrefix(ix.tree, enc, func(k, v []byte) (bool, error) {
		out.Add(DecodeID(k[len(enc):]))
		return true, nil
	})
	return out, err
}

// put inserts the composite entry for (record, id). Invoked only by
// Table during a batched write, never directly by callers (spec.md
// §4.5).
func (ix *Index[T, K]) put(rwtx kv.RwTx, id uint64, record T) error {
	key := ix.keyFn(record)
	enc, err := encodeIndexKey(ix.keyCode, key)
	if err != nil {
		return &CodecError{Err: err}
	}
	if ix.IsUnique() {
		existing, err := rwtx.GetOne(ix.tree, enc)
		if err != nil {
			return err
		}
		if existing != nil && DecodeID(existing) != id {
			return &ConstraintError{Name: ix.name, Kind: KindUnique}
		}
		return rwtx.Put(ix.tree, enc, EncodeID(id))
	}
	return rwtx.Put(ix.tree, compositeKey(enc, id), []byte{})
}

// remove deletes the composite entry for (record, id).
func (ix *Index[T, K]) remove(rwtx kv.RwTx, id uint64, record T) error {
	key := ix.keyFn(record)
	enc, err := encodeIndexKey(ix.keyCode, key)
	if err != nil {
		return &CodecError{Err: err}
	}
	if ix.IsUnique() {
		return rwtx.Delete(ix.tree, enc)
	}
	return rwtx.Delete(ix.tree, compositeKey(enc, id))
}

// verifyUnique scans the index's current non-unique secondary tree and
// reports whether any key maps to more than one id. Used when a Unique
// constraint is registered retroactively on an already-populated,
// non-unique index (spec.md §4.4, "Registering a unique constraint...").
func (ix *Index[T, K]) verifyUnique(tx kv.Tx) (bool, error) {
	seen := make(map[string]struct{})
	dup := false
	err := tx.ForPrefix(ix.tree, nil, func(k, v []byte) (bool, error) {
		if len(k) < 4 {
			return true, nil
		}
		n := int(uint32(k[0])<<24 | uint32(k[1])<<16 | uint32(k[2])<<8 | uint32(k[3]))
		encKey := k[:4+n]
		if _, ok := seen[string(encKey)]; ok {
			dup = true
			return false, nil
		}
		seen[string(encKey)] = struct{}{}
		return true, nil
	})
	return dup, err
}

// migrateToUnique rewrites the secondary tree from the non-unique
// composite-key format to the unique single-key format, assuming the
// caller has already verified no key has more than one id.
func (ix *Index[T, K]) migrateToUnique(rwtx kv.RwTx) error {
	var entries [][2][]byte
	err := rwtx.ForPrefix(ix.tree, nil, func(k, v []byte) (bool, error) {
		if len(k) < 4 {
			return true, nil
		}
		n := int(uint32(k[0])<<24 | uint32(k[1])<<16 | uint32(k[2])<<8 | uint32(k[3]))
		encKey := append([]byte(nil), k[:4+n]...)
		id := append([]byte(nil), k[4+n:]...)
		entries = append(entries, [2][]byte{encKey, id})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := rwtx.Delete(ix.tree, compositeKey(e[0], DecodeID(e[1]))); err != nil {
			return err
		}
		if err := rwtx.Put(ix.tree, e[0], e[1]); err != nil {
			return err
		}
	}
	ix.unique.Store(true)
	return nil
}

// registeredIndex erases K so Table can hold indexes of differing key
// types in one registry, per spec.md §9's "Dynamic key types" note.
type registeredIndex[T any] interface {
	Name() string
	IsUnique() bool
	put(rwtx kv.RwTx, id uint64, record T) error
	remove(rwtx kv.RwTx, id uint64, record T) error
	verifyUnique(tx kv.Tx) (bool, error)
	migrateToUnique(rwtx kv.RwTx) error
}

var _ registeredIndex[struct{}] = (*Index[struct{}, int])(nil)
