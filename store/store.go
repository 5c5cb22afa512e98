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

// Package store implements TinyBase's Store handle: it owns the
// underlying kv.DB and hands out named trees, opening either a
// persistent mdbx-backed store or a temporary in-memory one (spec.md
// §4.1).
package store

import (
	"sync"

	logv3 "github.com/erigontech/erigon-lib/log/v3"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/erigontech/tinybase/kv"
)

// Options configures Store.Open.
type Options struct {
	// Path is the on-disk directory for a persistent store. Ignored
	// when Temporary is set.
	Path string
	// Temporary opens an in-memory store that is discarded on Close;
	// Path is ignored. Also implied when Path is empty.
	Temporary bool
	// Fs is the filesystem used to create Path before the mdbx
	// environment is opened; defaults to the real OS filesystem.
	// kv.OpenMdbx creates and opens Path on the real filesystem in any
	// case, so an in-memory Fs such as afero.NewMemMapFs() only affects
	// that preliminary directory creation, not where the mdbx files live.
	Fs afero.Fs

	Logger logv3.Logger
}

// Store owns the underlying ordered key-value store and hands out named
// sub-namespaces ("trees"). Store, its Tables and their Indexes are
// reference-counted shared handles: closing the Store invalidates all of
// them (spec.md §5, "Resource lifetime").
type Store struct {
	mu        sync.Mutex
	db        kv.DB
	temporary bool
	closed    bool
	log       logv3.Logger
}

// Open opens a persistent store at opts.Path, or an in-memory store when
// opts.Path is empty or opts.Temporary is set (spec.md §4.1).
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logv3.Root()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	if opts.Temporary || opts.Path == "" {
		opts.Logger.Debug("opening temporary store")
		return &Store{db: kv.NewMem(), temporary: true, log: opts.Logger}, nil
	}

	if err := opts.Fs.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, errors.Wrap(err, "store: prepare data directory")
	}
	db, err := kv.OpenMdbx(kv.MdbxOptions{Path: opts.Path})
	if err != nil {
		return nil, errors.Wrap(err, "store: open mdbx")
	}
	opts.Logger.Info("opened persistent store", "path", opts.Path)
	return &Store{db: db, log: opts.Logger}, nil
}

// DB returns the underlying kv.DB, for package table to build Table
// handles over.
func (s *Store) DB() kv.DB {
	return s.db
}

// Trees lists every tree currently present in the store.
func (s *Store) Trees() ([]string, error) {
	return s.db.ListTrees()
}

// Close flushes and releases the store. A temporary store's contents are
// discarded. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "store: close")
	}
	return nil
}
