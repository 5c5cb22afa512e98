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

package codec

import (
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

var cborHandle = func() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.Canonical = true
	return h
}()

// cborCodec is the default Codec: a CBOR encoding via ugorji/go/codec,
// chosen for compactness and because CBOR is self-describing, so
// arbitrary struct shapes round-trip without a schema registry.
type cborCodec[T any] struct{}

// NewCBOR returns the default record codec for T.
func NewCBOR[T any]() Codec[T] {
	return cborCodec[T]{}
}

func (cborCodec[T]) Encode(v T) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, cborHandle)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "codec: encode")
	}
	return buf, nil
}

func (cborCodec[T]) Decode(b []byte) (T, error) {
	var v T
	dec := codec.NewDecoderBytes(b, cborHandle)
	if err := dec.Decode(&v); err != nil {
		return v, errors.Wrap(err, "codec: decode")
	}
	return v, nil
}
