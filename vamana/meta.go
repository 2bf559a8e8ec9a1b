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

// Package vamana implements the disk-resident Vamana/DiskANN-style
// proximity graph index (§4.G): incremental insert with robust
// pruning, beam search, tombstone vacuum and bridging maintenance.
package vamana

import (
	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/tuple"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// metaPage/metaSlot mirror rabitq's convention: the metadata
// tuple always lives at page 0, slot 1 (§3).
const metaPage host.PageID = 0
const metaSlot = 1

// Meta is the graph's metadata tuple (§4.G "Metadata tuple at
// page 0, slot 1: {dims, m, ef_construction, beam_construction,
// max_alpha, bits, start, skip}"). VectorKind/DistanceKind stand
// in for the spec's terse "bits" version stamp, generalized the
// way rabitq's Meta stamps its own layout (see DESIGN.md).
// VerticesFirst/VectorsFirst are the append-only chain roots for
// vertex and full-precision-vector tuples respectively; they are
// fixed at Build time and never mutated afterwards.
type Meta struct {
	BuildID          uuid.UUID
	Dims             int
	M                int
	EfConstruction   int
	BeamConstruction int
	MaxAlpha         float32
	VectorKind       vector.Kind
	DistanceKind     vector.Distance
	Start            host.Pointer
	VerticesFirst    host.PageID
	VectorsFirst     host.PageID
	FreepagesFirst   host.PageID
}

// Fixed byte offsets within an encoded Meta tuple, in writer
// order. None of these fields ever changes size across a
// rewrite, so Start can be updated in place via field_mut once
// the first vertex is inserted (§5 "insert: the vertex tuple
// page must be durable before start is updated in metadata").
const (
	metaStartPageOff  = 38
	metaStartSlotOff  = 42
	metaVerticesOff   = 44
	metaVectorsOff    = 48
	metaFreepagesOff  = 52
)

func encodeMeta(m Meta) []byte {
	w := tuple.NewWriter()
	idBytes := m.BuildID
	w.PutBytes(idBytes[:])
	w.PutU32(uint32(m.Dims))
	w.PutU32(uint32(m.M))
	w.PutU32(uint32(m.EfConstruction))
	w.PutU32(uint32(m.BeamConstruction))
	w.PutF32(m.MaxAlpha)
	w.PutU8(uint8(m.VectorKind))
	w.PutU8(uint8(m.DistanceKind))
	w.PutU32(m.Start.Page)
	w.PutU16(uint16(m.Start.Slot))
	w.PutU32(m.VerticesFirst)
	w.PutU32(m.VectorsFirst)
	w.PutU32(m.FreepagesFirst)
	w.Align8()
	return w.Bytes()
}

func decodeMeta(buf []byte) Meta {
	r := tuple.NewReader(buf)
	var id uuid.UUID
	copy(id[:], r.Bytes(16))
	m := Meta{BuildID: id}
	m.Dims = int(r.U32())
	m.M = int(r.U32())
	m.EfConstruction = int(r.U32())
	m.BeamConstruction = int(r.U32())
	m.MaxAlpha = r.F32()
	m.VectorKind = vector.Kind(r.U8())
	m.DistanceKind = vector.Distance(r.U8())
	m.Start = host.Pointer{Page: r.U32(), Slot: host.Slot(r.U16())}
	m.VerticesFirst = r.U32()
	m.VectorsFirst = r.U32()
	m.FreepagesFirst = r.U32()
	return m
}

// Index is an opened graph index bound to a host buffer manager
// and payload source.
type Index struct {
	bm      host.BufferManager
	payload host.PayloadSource
	meta    Meta
}

// Open reads the metadata tuple at page 0 slot 1 and returns a
// ready-to-use Index.
func Open(bm host.BufferManager, payload host.PayloadSource) (*Index, error) {
	pg, release, err := page.ReadPage(bm, metaPage)
	if err != nil {
		return nil, err
	}
	defer release()
	data, ok := pg.Get(metaSlot)
	if !ok {
		return nil, vxerr.Corruptf("vamana: metadata tuple missing at page %d slot %d", metaPage, metaSlot)
	}
	return &Index{bm: bm, payload: payload, meta: decodeMeta(data)}, nil
}

// Meta returns the index's decoded metadata.
func (ix *Index) Meta() Meta { return ix.meta }

// setStart durably points start at ptr via in-place field
// mutation of the already-written metadata tuple.
func (ix *Index) setStart(ptr host.Pointer) error {
	wr, err := page.WritePage(ix.bm, metaPage, false)
	if err != nil {
		return err
	}
	defer wr.Guard.Release()
	data, ok := wr.Page.GetMut(metaSlot)
	if !ok {
		return vxerr.Corruptf("vamana: metadata tuple missing at page %d slot %d", metaPage, metaSlot)
	}
	tuple.PutU32At(data, metaStartPageOff, ptr.Page)
	tuple.PutU16At(data, metaStartSlotOff, uint16(ptr.Slot))
	ix.meta.Start = ptr
	return nil
}
