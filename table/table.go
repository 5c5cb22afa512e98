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

// Package table implements TinyBase's indexed-table engine: primary
// record storage keyed by RecordId, the secondary indexes maintained
// alongside it, the constraints that guard writes, and the id allocator
// backing all three (spec.md §3, §4).
package table

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	logv3 "github.com/erigontech/erigon-lib/log/v3"
	"github.com/erigontech/tinybase/codec"
	"github.com/erigontech/tinybase/kv"
	"github.com/erigontech/tinybase/table/idset"
)

const defaultCacheSize = 1024

// Table is the primary storage of records of type T keyed by RecordId,
// plus the registry of its indexes and constraints (spec.md §3). All
// Table methods are safe for concurrent use: writes are serialized by an
// internal lock held from the start of constraint evaluation to batch
// commit (spec.md §5); reads never take that lock.
type Table[T any] struct {
	mu     sync.Mutex
	db     kv.DB
	name   string
	codec  codec.Codec[T]
	log    logv3.Logger

	indexes     map[string]registeredIndex[T]
	constraints []Constraint[T]

	cache  *lru.Cache[uint64, T]
	closed bool
}

// Options configures a Table at Open time.
type Options[T any] struct {
	// Codec overrides the default CBOR codec.
	Codec codec.Codec[T]
	// Logger overrides the default root logger.
	Logger logv3.Logger
	// CacheSize bounds the read-through record cache; 0 uses a sane
	// default, a negative value disables caching entirely.
	CacheSize int
}

// Open opens or creates a table named name inside store db. Opening an
// existing table discovers its primary tree and id counter but does not
// re-register indexes or constraints - those live only in memory and
// must be re-declared on every open (spec.md §3, "Lifecycle").
func Open[T any](db kv.DB, name string, opts Options[T]) (*Table[T], error) {
	if opts.Codec == nil {
		opts.Codec = codec.NewCBOR[T]()
	}
	if opts.Logger == nil {
		opts.Logger = logv3.Root()
	}
	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}

	t := &Table[T]{
		db:      db,
		name:    name,
		codec:   opts.Codec,
		log:     opts.Logger,
		indexes: make(map[string]registeredIndex[T]),
	}

	if cacheSize > 0 {
		c, err := lru.New[uint64, T](cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "table: create cache")
		}
		t.cache = c
	}

	if err := db.Update(context.Background(), func(rwtx kv.RwTx) error {
		return rwtx.CreateTreeIfNotExists(name)
	}); err != nil {
		return nil, &BackendError{Err: err}
	}
	return t, nil
}

// Name returns the table's name.
func (t *Table[T]) Name() string { return t.name }

// Constraint registers c, either a Unique constraint over an already
// registered index or a Check predicate. Constraints evaluate in
// registration order; the first failure short-circuits (spec.md §4.4,
// §4.6).
func (t *Table[T]) Constraint(c Constraint[T]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &BackendError{Err: ErrClosed}
	}

	if c.kind == KindUnique {
		ix, ok := t.indexes[c.indexName]
		if !ok {
			return ErrIndexMissing
		}
		if !ix.IsUnique() {
			var dup bool
			var err error
			if uerr := t.db.Update(context.Background(), func(rwtx kv.RwTx) error {
				dup, err = ix.verifyUnique(rwtx)
				if err != nil || dup {
					return nil
				}
				return ix.migrateToUnique(rwtx)
			}); uerr != nil {
				return &BackendError{Err: uerr}
			}
			if err != nil {
				return &BackendError{Err: err}
			}
			if dup {
				return &ConstraintError{Name: c.indexName, Kind: KindUnique}
			}
			t.log.Info("promoted index to unique", "table", t.name, "index", c.indexName)
		}
	}
	t.constraints = append(t.constraints, c)
	return nil
}

// checkConstraints evaluates every registered Check constraint, in
// registration order, against a prospective record. Unique constraints
// are skipped here because the index's own put enforces them; put
// accepts an entry under the same key that already carries the same id,
// which lets Update rewrite a record without changing its key.
func (t *Table[T]) checkConstraints(record T) error {
	for _, c := range t.constraints {
		if c.kind != KindCheck {
			continue
		}
		if !c.predicate(record) {
			return &ConstraintError{Name: c.name, Kind: KindCheck}
		}
	}
	return nil
}

// Insert checks all constraints, allocates the next id, and atomically
// writes the record plus every index entry (spec.md §4.4).
func (t *Table[T]) Insert(record T) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, &BackendError{Err: ErrClosed}
	}
	if err := t.checkConstraints(record); err != nil {
		return 0, err
	}

	var id uint64
	err := t.db.Update(context.Background(), func(rwtx kv.RwTx) error {
		enc, err := t.codec.Encode(record)
		if err != nil {
			return &CodecError{Err: err}
		}
		id, err = allocate(rwtx, t.name)
		if err != nil {
			return err
		}
		for _, ix := range t.indexes {
			if err := ix.put(rwtx, id, record); err != nil {
				return err
			}
		}
		return rwtx.Put(t.name, EncodeID(id), enc)
	})
	if err != nil {
		return 0, wrapWriteErr(err)
	}
	if t.cache != nil {
		t.cache.Add(id, record)
	}
	return id, nil
}

// Get looks up id in the primary tree, decoding on hit. The second
// return value is false when id is absent.
func (t *Table[T]) Get(id uint64) (T, bool, error) {
	var zero T
	if t.cache != nil {
		if v, ok := t.cache.Get(id); ok {
			return v, true, nil
		}
	}
	var (
		rec   T
		found bool
	)
	err := t.db.View(context.Background(), func(tx kv.Tx) error {
		v, err := tx.GetOne(t.name, EncodeID(id))
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		found = true
		rec, err = t.codec.Decode(v)
		if err != nil {
			return &CodecError{Err: err}
		}
		return nil
	})
	if err != nil {
		return zero, false, wrapReadErr(err)
	}
	if found && t.cache != nil {
		t.cache.Add(id, rec)
	}
	return rec, found, nil
}

// Update replaces the record at id with newRecord and returns the
// previous value. Every index entry is moved atomically: the composite
// derived from the existing record is deleted and the one derived from
// newRecord is inserted, in the same batch as the primary rewrite
// (spec.md §4.4).
func (t *Table[T]) Update(id uint64, newRecord T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if t.closed {
		return zero, &BackendError{Err: ErrClosed}
	}
	if err := t.checkConstraints(newRecord); err != nil {
		return zero, err
	}

	var old T
	err := t.db.Update(context.Background(), func(rwtx kv.RwTx) error {
		v, err := rwtx.GetOne(t.name, EncodeID(id))
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		old, err = t.codec.Decode(v)
		if err != nil {
			return &CodecError{Err: err}
		}

		for _, ix := range t.indexes {
			if err := ix.remove(rwtx, id, old); err != nil {
				return err
			}
			if err := ix.put(rwtx, id, newRecord); err != nil {
				return err
			}
		}
		enc, err := t.codec.Encode(newRecord)
		if err != nil {
			return &CodecError{Err: err}
		}
		return rwtx.Put(t.name, EncodeID(id), enc)
	})
	if err != nil {
		return zero, wrapWriteErr(err)
	}
	if t.cache != nil {
		t.cache.Add(id, newRecord)
	}
	return old, nil
}

// Delete removes id, returning the record that was stored there.
func (t *Table[T]) Delete(id uint64) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if t.closed {
		return zero, &BackendError{Err: ErrClosed}
	}

	var old T
	err := t.db.Update(context.Background(), func(rwtx kv.RwTx) error {
		v, err := rwtx.GetOne(t.name, EncodeID(id))
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		old, err = t.codec.Decode(v)
		if err != nil {
			return &CodecError{Err: err}
		}
		for _, ix := range t.indexes {
			if err := ix.remove(rwtx, id, old); err != nil {
				return err
			}
		}
		return rwtx.Delete(t.name, EncodeID(id))
	})
	if err != nil {
		return zero, wrapWriteErr(err)
	}
	if t.cache != nil {
		t.cache.Remove(id)
	}
	return old, nil
}

// AllIDs returns the set of every RecordId currently in the primary
// tree - the "universe" Not() conditions complement against (spec.md
// §4.7).
func (t *Table[T]) AllIDs() (*idset.Set, error) {
	out := idset.New()
	err := t.db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForPrefix(t.name, nil, func(k, v []byte) (bool, error) {
			if string(k) == string(counterKey) {
				return true, nil
			}
			out.Add(DecodeID(k))
			return true, nil
		})
	})
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	return out, nil
}

// scanPrimary walks every record currently in the primary tree, calling
// visit(id, record) for each. Used by index back-fill.
func (t *Table[T]) scanPrimary(tx kv.Tx, visit func(id uint64, rec T) error) error {
	return tx.ForPrefix(t.name, nil, func(k, v []byte) (bool, error) {
		if string(k) == string(counterKey) {
			return true, nil
		}
		rec, err := t.codec.Decode(v)
		if err != nil {
			return false, &CodecError{Err: err}
		}
		if err := visit(DecodeID(k), rec); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Close marks the table closed; subsequent Insert, Update, Delete,
// Constraint and CreateIndex calls fail with ErrClosed wrapped in
// BackendError. Get, AllIDs and Index.Select do not check this flag and
// keep reading the store.
func (t *Table[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func wrapWriteErr(err error) error {
	switch err.(type) {
	case *ConstraintError, *CodecError, *BackendError:
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &BackendError{Err: err}
}

func wrapReadErr(err error) error {
	if _, ok := err.(*CodecError); ok {
		return err
	}
	return &BackendError{Err: err}
}
