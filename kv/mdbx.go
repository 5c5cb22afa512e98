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
	"context"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
)

// mdbxDB is the persistent DB backend. Each tree is an mdbx named DBI;
// mdbx's own transactions give us the atomic multi-tree batch the spec
// requires without any write-ahead log of our own (spec.md §9, "Atomicity
// surface").
type mdbxDB struct {
	env *mdbx.Env
}

// MdbxOptions configures the persistent backend.
type MdbxOptions struct {
	Path string
	// MapSize bounds the memory-mapped database size; mdbx grows the
	// backing file lazily up to this ceiling.
	MapSize uint64
	ReadOnly bool
}

const defaultMapSize = 1 << 30 // 1GiB, generous headroom for an embedded table store

// OpenMdbx opens (creating if absent) a persistent mdbx environment at
// opts.Path.
func OpenMdbx(opts MdbxOptions) (DB, error) {
	if opts.Path == "" {
		return nil, errors.New("kv: mdbx path must not be empty")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, errors.Wrap(err, "kv: create data directory")
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "kv: create mdbx env")
	}
	if err := env.SetOption(mdbx.OptMaxDB, 256); err != nil {
		return nil, errors.Wrap(err, "kv: set max dbi count")
	}
	mapSize := opts.MapSize
	if mapSize == 0 {
		mapSize = defaultMapSize
	}
	if err := env.SetGeometry(-1, -1, int(mapSize), -1, -1, -1); err != nil {
		return nil, errors.Wrap(err, "kv: set geometry")
	}

	flags := uint(0)
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	if err := env.Open(opts.Path, flags, 0o644); err != nil {
		return nil, errors.Wrap(err, "kv: open mdbx environment")
	}
	return &mdbxDB{env: env}, nil
}

type mdbxTx struct {
	txn   *mdbx.Txn
	dbis  map[string]mdbx.DBI
}

func (tx *mdbxTx) dbi(tree string, create bool) (mdbx.DBI, error) {
	if dbi, ok := tx.dbis[tree]; ok {
		return dbi, nil
	}
	flags := uint(0)
	if create {
		flags |= mdbx.Create
	}
	dbi, err := tx.txn.OpenDBISimple(tree, flags)
	if err != nil {
		if !create {
			return 0, ErrTreeMissing
		}
		return 0, errors.Wrapf(err, "kv: open tree %q", tree)
	}
	tx.dbis[tree] = dbi
	return dbi, nil
}

func (tx *mdbxTx) GetOne(tree string, k []byte) ([]byte, error) {
	dbi, err := tx.dbi(tree, false)
	if err == ErrTreeMissing {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	v, err := tx.txn.Get(dbi, k)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "kv: get from %q", tree)
	}
	return v, nil
}

func (tx *mdbxTx) Has(tree string, k []byte) (bool, error) {
	v, err := tx.GetOne(tree, k)
	return v != nil, err
}

func (tx *mdbxTx) Count(tree string) (uint64, error) {
	dbi, err := tx.dbi(tree, false)
	if err == ErrTreeMissing {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	stat, err := tx.txn.StatDBI(dbi)
	if err != nil {
		return 0, errors.Wrapf(err, "kv: stat %q", tree)
	}
	return stat.Entries, nil
}

func (tx *mdbxTx) ForPrefix(tree string, prefix []byte, walker func(k, v []byte) (bool, error)) error {
	dbi, err := tx.dbi(tree, false)
	if err == ErrTreeMissing {
		return nil
	} else if err != nil {
		return err
	}
	cur, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return errors.Wrapf(err, "kv: open cursor on %q", tree)
	}
	defer cur.Close()

	k, v, err := cur.Get(prefix, nil, mdbx.SetRange)
	for ; err == nil; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if !hasPrefix(k, prefix) {
			break
		}
		cont, werr := walker(k, v)
		if werr != nil {
			return werr
		}
		if !cont {
			break
		}
	}
	if err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrapf(err, "kv: iterate %q", tree)
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

type mdbxRwTx struct {
	mdbxTx
}

func (tx *mdbxRwTx) CreateTreeIfNotExists(tree string) error {
	_, err := tx.dbi(tree, true)
	return err
}

func (tx *mdbxRwTx) Put(tree string, k, v []byte) error {
	dbi, err := tx.dbi(tree, true)
	if err != nil {
		return err
	}
	if err := tx.txn.Put(dbi, k, v, 0); err != nil {
		return errors.Wrapf(err, "kv: put into %q", tree)
	}
	return nil
}

func (tx *mdbxRwTx) Delete(tree string, k []byte) error {
	dbi, err := tx.dbi(tree, false)
	if err == ErrTreeMissing {
		return nil
	} else if err != nil {
		return err
	}
	if err := tx.txn.Del(dbi, k, nil); err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrapf(err, "kv: delete from %q", tree)
	}
	return nil
}

func (d *mdbxDB) View(ctx context.Context, f func(tx Tx) error) error {
	return d.env.View(func(txn *mdbx.Txn) error {
		return f(&mdbxTx{txn: txn, dbis: make(map[string]mdbx.DBI)})
	})
}

func (d *mdbxDB) Update(ctx context.Context, f func(tx RwTx) error) error {
	return d.env.Update(func(txn *mdbx.Txn) error {
		return f(&mdbxRwTx{mdbxTx{txn: txn, dbis: make(map[string]mdbx.DBI)}})
	})
}

func (d *mdbxDB) ListTrees() ([]string, error) {
	var names []string
	err := d.View(context.Background(), func(tx Tx) error {
		mtx := tx.(*mdbxTx)
		list, err := mtx.txn.ListDBI()
		if err != nil {
			return errors.Wrap(err, "kv: list dbis")
		}
		names = list
		return nil
	})
	return names, err
}

func (d *mdbxDB) Close() error {
	d.env.Close()
	return nil
}
