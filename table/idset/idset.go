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

// Package idset implements the RecordId-set algebra the query engine
// compiles Condition trees to (spec.md §4.7): union, intersection,
// complement.
//
// RecordId is a 64-bit value but github.com/RoaringBitmap/roaring/v2
// operates over uint32 domains. We shard each id into a 32-bit high word
// selecting a per-shard roaring.Bitmap and a 32-bit low word that is the
// bit set within that shard - the standard way to get roaring's
// compressed-bitmap behavior over a 64-bit id space without pulling in a
// second bitmap library.
package idset

import "github.com/RoaringBitmap/roaring/v2"

// Set is a sparse, compact set of uint64 RecordIds.
type Set struct {
	shards map[uint32]*roaring.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{shards: make(map[uint32]*roaring.Bitmap)}
}

// FromSlice builds a Set containing exactly the given ids.
func FromSlice(ids []uint64) *Set {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func split(id uint64) (hi, lo uint32) {
	return uint32(id >> 32), uint32(id)
}

func join(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

// Add inserts id into the set.
func (s *Set) Add(id uint64) {
	hi, lo := split(id)
	b, ok := s.shards[hi]
	if !ok {
		b = roaring.New()
		s.shards[hi] = b
	}
	b.Add(lo)
}

// Contains reports whether id is a member.
func (s *Set) Contains(id uint64) bool {
	hi, lo := split(id)
	b, ok := s.shards[hi]
	if !ok {
		return false
	}
	return b.Contains(lo)
}

// Len returns the number of members.
func (s *Set) Len() int {
	var n uint64
	for _, b := range s.shards {
		n += b.GetCardinality()
	}
	return int(n)
}

// ToSortedSlice returns members in ascending RecordId order.
func (s *Set) ToSortedSlice() []uint64 {
	out := make([]uint64, 0, s.Len())
	his := make([]uint32, 0, len(s.shards))
	for hi := range s.shards {
		his = append(his, hi)
	}
	sortUint32(his)
	for _, hi := range his {
		it := s.shards[hi].Iterator()
		for it.HasNext() {
			out = append(out, join(hi, it.Next()))
		}
	}
	return out
}

func sortUint32(xs []uint32) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// And returns the intersection of a and b.
func And(a, b *Set) *Set {
	out := New()
	for hi, ab := range a.shards {
		bb, ok := b.shards[hi]
		if !ok {
			continue
		}
		out.shards[hi] = roaring.And(ab, bb)
	}
	return out
}

// Or returns the union of a and b.
func Or(a, b *Set) *Set {
	out := New()
	for hi, ab := range a.shards {
		out.shards[hi] = ab.Clone()
	}
	for hi, bb := range b.shards {
		if existing, ok := out.shards[hi]; ok {
			existing.Or(bb)
		} else {
			out.shards[hi] = bb.Clone()
		}
	}
	return out
}

// Not returns the complement of a with respect to universe.
func Not(a *Set, universe *Set) *Set {
	out := New()
	for hi, ub := range universe.shards {
		ab, ok := a.shards[hi]
		if !ok {
			out.shards[hi] = ub.Clone()
			continue
		}
		out.shards[hi] = roaring.AndNot(ub, ab)
	}
	return out
}
