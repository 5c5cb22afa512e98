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
	"encoding/binary"

	"github.com/erigontech/tinybase/kv"
)

// counterKey is the reserved key inside a table's primary tree holding
// its persisted id counter (spec.md §4.3).
var counterKey = []byte("__counter__")

// EncodeID serializes a RecordId as fixed-width big-endian so lexical
// key order matches numeric order (spec.md §3).
func EncodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// DecodeID is the inverse of EncodeID.
func DecodeID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// readCounter returns the table's current counter value, or 0 if never
// allocated.
func readCounter(tx kv.Tx, primaryTree string) (uint64, error) {
	v, err := tx.GetOne(primaryTree, counterKey)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return DecodeID(v), nil
}

// allocate bumps and persists the id counter within rwtx, returning the
// newly allocated id. Starting value is 1; 0 is reserved as "no id"
// (spec.md §4.3). The caller's RwTx is the same batch as the record
// write, so the counter and the new record commit together.
func allocate(rwtx kv.RwTx, primaryTree string) (uint64, error) {
	cur, err := readCounter(rwtx, primaryTree)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := rwtx.Put(primaryTree, counterKey, EncodeID(next)); err != nil {
		return 0, err
	}
	return next, nil
}
