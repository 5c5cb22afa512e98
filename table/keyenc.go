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

	"github.com/erigontech/tinybase/codec"
)

// encodeIndexKey produces a prefix-free encoding of an arbitrary index
// key: a 4-byte big-endian length followed by the key's codec encoding.
// Prefix-freedom is what lets composite keys (key ++ id) be split back
// apart unambiguously (spec.md §4.5).
func encodeIndexKey[K any](c codec.Codec[K], k K) ([]byte, error) {
	raw, err := c.Encode(k)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(out, uint32(len(raw)))
	copy(out[4:], raw)
	return out, nil
}

// compositeKey appends a RecordId suffix to an already length-prefixed
// encoded key, for non-unique index entries.
func compositeKey(encodedKey []byte, id uint64) []byte {
	out := make([]byte, len(encodedKey)+8)
	copy(out, encodedKey)
	binary.BigEndian.PutUint64(out[len(encodedKey):], id)
	return out
}
