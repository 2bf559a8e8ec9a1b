// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rabitq

import (
	"github.com/usamoi/VectorChord-sub003/tuple"
	"github.com/usamoi/VectorChord-sub003/vector"
)

// Centroid is an internal (level >= 1) tuple: a cell's representative
// vector plus the page where its children begin (§3 "H1 tuple").
type Centroid struct {
	Vector []float32
	First  uint32
}

func encodeCentroid(c Centroid) []byte {
	w := tuple.NewWriter()
	w.PutU32(c.First)
	w.PutFloats32(c.Vector)
	w.Align8()
	return w.Bytes()
}

func decodeCentroid(buf []byte) Centroid {
	r := tuple.NewReader(buf)
	var c Centroid
	c.First = r.U32()
	c.Vector = r.Floats32()
	return c
}

// Leaf is a level-0 tuple: one indexed vector's payload reference,
// RaBitQ code, and (when the index is configured with
// rerank_in_table) its original full-precision vector stored
// inline so a rerank pass never has to fault the payload source
// (§4.F, resolving the open question about rerank reconstruction
// under residual quantization by keeping the *original*, not the
// residual, vector here).
type Leaf struct {
	Payload  uint64
	HeadSlot uint16 // slot this tuple occupied in its head page, for self-consistency checks after a reconstruct
	Code     vector.Code
	Hint     []byte   // prefetch hint tail (§4.H), opaque to this package
	Full     []float32 // present iff rerank_in_table; nil otherwise
}

func encodeLeaf(l Leaf) []byte {
	w := tuple.NewWriter()
	w.PutU64(l.Payload)
	w.PutU16(l.HeadSlot)
	w.PutF32(l.Code.DisU2)
	w.PutF32(l.Code.FactorPPC)
	w.PutF32(l.Code.FactorIP)
	w.PutF32(l.Code.FactorErr)
	w.PutTail(l.Code.Bits)
	w.PutTail(l.Hint)
	w.PutU8(boolToU8(l.Full != nil))
	if l.Full != nil {
		w.PutFloats32(l.Full)
	}
	w.Align8()
	return w.Bytes()
}

func decodeLeaf(buf []byte) Leaf {
	r := tuple.NewReader(buf)
	var l Leaf
	l.Payload = r.U64()
	l.HeadSlot = r.U16()
	l.Code.DisU2 = r.F32()
	l.Code.FactorPPC = r.F32()
	l.Code.FactorIP = r.F32()
	l.Code.FactorErr = r.F32()
	l.Code.Bits = r.Tail()
	l.Hint = r.Tail()
	if r.U8() != 0 {
		l.Full = r.Floats32()
	}
	return l
}
