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

// Package rabitq implements the two-level IVF index (§4.F): a
// fan-out tree of k-means centroids over 1-bit RaBitQ codes
// (of residuals when IsResidual is set), searched via fast-scan lower
// bounds and an ef-bounded result heap.
package rabitq

import (
	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/tuple"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// metaPage and metaSlot are fixed per §3 ("Metadata tuple at page
// 0, slot 1").
const metaPage host.PageID = 0
const metaSlot = 1

// Meta is the decoded form of the metadata tuple (§3 IVF tree).
type Meta struct {
	BuildID         uuid.UUID
	Dims            int
	VectorKind      vector.Kind
	DistanceKind    vector.Distance
	IsResidual      bool
	RerankInTable   bool
	HeightOfRoot    int
	RootFirst       host.PageID
	CentroidsFirst  host.PageID // Build writes a single root chain and sets this equal to RootFirst
	FreepagesFirst  host.PageID
	Cells           []uint32 // cells[k] = fan-out of level k, ascending by level index
}

func encodeMeta(m Meta) []byte {
	w := tuple.NewWriter()
	w.PutBytes(m.BuildID[:])
	w.PutU32(uint32(m.Dims))
	w.PutU8(uint8(m.VectorKind))
	w.PutU8(uint8(m.DistanceKind))
	w.PutU8(boolToU8(m.IsResidual))
	w.PutU8(boolToU8(m.RerankInTable))
	w.PutU8(uint8(m.HeightOfRoot))
	w.PutU32(m.RootFirst)
	w.PutU32(m.CentroidsFirst)
	w.PutU32(m.FreepagesFirst)
	w.PutU32(uint32(len(m.Cells)))
	for _, c := range m.Cells {
		w.PutU32(c)
	}
	w.Align8()
	return w.Bytes()
}

func decodeMeta(buf []byte) Meta {
	r := tuple.NewReader(buf)
	var m Meta
	copy(m.BuildID[:], r.Bytes(16))
	m.Dims = int(r.U32())
	m.VectorKind = vector.Kind(r.U8())
	m.DistanceKind = vector.Distance(r.U8())
	m.IsResidual = r.U8() != 0
	m.RerankInTable = r.U8() != 0
	m.HeightOfRoot = int(r.U8())
	m.RootFirst = r.U32()
	m.CentroidsFirst = r.U32()
	m.FreepagesFirst = r.U32()
	n := int(r.U32())
	m.Cells = make([]uint32, n)
	for i := range m.Cells {
		m.Cells[i] = r.U32()
	}
	return m
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Index is a handle to an on-disk RaBitQ index, dispatch-tabled
// once per open from its metadata tuple (§9 "Polymorphism over
// distance & vector kind": monomorphised per (vector_kind,
// distance_kind) pair rather than dispatched virtually on the hot
// path -- here that table is just Meta.DistanceKind/VectorKind
// consulted once per call, since this module targets a managed
// runtime rather than emitting specialized machine code per pair).
type Index struct {
	bm      host.BufferManager
	payload host.PayloadSource
	meta    Meta
}

// Open reads the metadata tuple at page 0 slot 1 and returns a
// handle ready for Search/Insert/Bulkdelete.
func Open(bm host.BufferManager, payload host.PayloadSource) (*Index, error) {
	pg, release, err := page.ReadPage(bm, metaPage)
	if err != nil {
		return nil, err
	}
	defer release()
	data, ok := pg.Get(metaSlot)
	if !ok {
		return nil, vxerr.Corruptf("rabitq: missing metadata tuple at page 0 slot 1")
	}
	return &Index{bm: bm, payload: payload, meta: decodeMeta(data)}, nil
}

// Meta returns the index's decoded metadata tuple.
func (ix *Index) Meta() Meta { return ix.meta }
