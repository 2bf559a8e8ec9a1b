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

package vamana

import (
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/tuple"
)

// Vertex is one graph node (§4.G "Each vertex tuple: {payload:
// Option<u64>, vector_head: Pointer, neighbors: [Pointer; <=m],
// edge_distances: [f32; <=m]}"). Neighbors/EdgeDistances are
// always exactly m entries wide on disk (padded with
// host.NilPointer / 0), so a neighbor-list update never changes
// the tuple's size and can be applied via field_mut (§4.D).
// HasPayload false models a tombstoned vertex: it stays reachable
// for graph traversal until maintain bridges it out.
type Vertex struct {
	HasPayload    bool
	Payload       uint64
	VectorHead    host.Pointer
	Neighbors     []host.Pointer
	EdgeDistances []float32
}

// Fixed byte offsets within an encoded Vertex tuple, in writer
// order (§4.D field_mut offsets for payload tombstoning and
// neighbor-list edits).
const (
	vtxHasPayloadOff = 0
	vtxPayloadOff    = 1
	vtxVecHeadPageOff = 9
	vtxVecHeadSlotOff = 13
	vtxNeighborsOff   = 15 // neighborCount (u16) precedes the arrays
)

func vtxNeighborOff(i int) int     { return vtxNeighborsOff + 2 + i*6 }
func vtxNeighborSlotOff(i int) int { return vtxNeighborOff(i) + 4 }
func vtxEdgeDistOff(m, i int) int  { return vtxNeighborsOff + 2 + m*6 + i*4 }

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// encodeVertex writes v as a fixed-width tuple sized for up to m
// neighbors; len(v.Neighbors) may be less than m, in which case
// the remaining slots are padded with host.NilPointer / 0.0 so
// that the tuple's size depends only on m, never on how many
// neighbors are currently live.
func encodeVertex(v Vertex, m int) []byte {
	w := tuple.NewWriter()
	w.PutU8(boolToU8(v.HasPayload))
	w.PutU64(v.Payload)
	w.PutU32(v.VectorHead.Page)
	w.PutU16(uint16(v.VectorHead.Slot))
	w.PutU16(uint16(len(v.Neighbors)))
	for i := 0; i < m; i++ {
		p := host.NilPointer
		if i < len(v.Neighbors) {
			p = v.Neighbors[i]
		}
		w.PutU32(p.Page)
		w.PutU16(uint16(p.Slot))
	}
	for i := 0; i < m; i++ {
		var d float32
		if i < len(v.EdgeDistances) {
			d = v.EdgeDistances[i]
		}
		w.PutF32(d)
	}
	w.Align8()
	return w.Bytes()
}

func decodeVertex(buf []byte, m int) Vertex {
	r := tuple.NewReader(buf)
	hasPayload := r.U8() != 0
	payload := r.U64()
	head := host.Pointer{Page: r.U32(), Slot: host.Slot(r.U16())}
	count := int(r.U16())
	neighbors := make([]host.Pointer, m)
	for i := 0; i < m; i++ {
		neighbors[i] = host.Pointer{Page: r.U32(), Slot: host.Slot(r.U16())}
	}
	dists := make([]float32, m)
	for i := 0; i < m; i++ {
		dists[i] = r.F32()
	}
	if count > m {
		count = m
	}
	return Vertex{
		HasPayload:    hasPayload,
		Payload:       payload,
		VectorHead:    head,
		Neighbors:     neighbors[:count],
		EdgeDistances: dists[:count],
	}
}

// encodeVectorTuple stores a full-precision vector as its own
// tuple kind, referenced by a vertex's vector_head pointer (§3
// tuple kinds: "... Vector, Freepages").
func encodeVectorTuple(v []float32) []byte {
	w := tuple.NewWriter()
	w.PutFloats32(v)
	w.Align8()
	return w.Bytes()
}

func decodeVectorTuple(buf []byte) []float32 {
	r := tuple.NewReader(buf)
	return r.Floats32()
}
