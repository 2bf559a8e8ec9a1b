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
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// Insert attaches a new vertex for payload/v (§4.G "Insert(v,
// payload)"). The very first insert seeds `start`; every
// subsequent insert runs a construction-time search from `start`,
// picks outgoing neighbors via robust_prune, and back-patches
// every picked neighbor's own neighbor list.
func (ix *Index) Insert(payload uint64, v []float32) error {
	if len(v) != ix.meta.Dims {
		return vxerr.Validationf("vamana insert: vector has %d dims, index expects %d", len(v), ix.meta.Dims)
	}

	if ix.meta.Start.IsNil() {
		ptr, err := ix.createVertex(payload, v, nil, nil)
		if err != nil {
			return err
		}
		return ix.setStart(ptr)
	}

	hits, err := ix.search(v, ix.meta.EfConstruction, ix.meta.BeamConstruction)
	if err != nil {
		return err
	}
	chosen := robustPrune(ix.meta.DistanceKind, v, hits, ix.meta.M, ix.meta.MaxAlpha)

	neighbors := make([]host.Pointer, len(chosen))
	dists := make([]float32, len(chosen))
	for i, c := range chosen {
		neighbors[i] = c.ptr
		dists[i] = c.dist
	}
	u, err := ix.createVertex(payload, v, neighbors, dists)
	if err != nil {
		return err
	}

	for _, w := range chosen {
		if err := ix.backPatch(w.ptr, u, w.dist); err != nil {
			return err
		}
	}
	return nil
}

// createVertex stores v's full-precision vector tuple, then its
// vertex tuple pointing at it, both durable before returning.
func (ix *Index) createVertex(payload uint64, v []float32, neighbors []host.Pointer, dists []float32) (host.Pointer, error) {
	vecPtr, err := appendTuple(ix.bm, ix.meta.VectorsFirst, encodeVectorTuple(v))
	if err != nil {
		return host.Pointer{}, err
	}
	vtx := Vertex{HasPayload: true, Payload: payload, VectorHead: vecPtr, Neighbors: neighbors, EdgeDistances: dists}
	return appendTuple(ix.bm, ix.meta.VerticesFirst, encodeVertex(vtx, ix.meta.M))
}

// backPatch re-runs robust_prune on w's existing neighbors union
// {u, duw} and rewrites w's neighbor list in place (§4.G step 4).
// The tuple's size never changes (always exactly m slots), so the
// whole vertex tuple can simply be re-Alloc'd... in practice we
// overwrite it via field_mut by re-encoding and copying into the
// same slot bytes, since the encoded size is identical for a
// fixed m.
func (ix *Index) backPatch(w host.Pointer, u host.Pointer, duw float32) error {
	wr, err := page.WritePage(ix.bm, w.Page, false)
	if err != nil {
		return err
	}
	defer wr.Guard.Release()

	data, ok := wr.Page.GetMut(int(w.Slot))
	if !ok {
		return vxerr.Corruptf("vamana: vertex tuple (%d,%d) missing", w.Page, w.Slot)
	}
	wv := decodeVertex(data, ix.meta.M)

	wVec, err := ix.fetchVectorAt(wv.VectorHead)
	if err != nil {
		return err
	}

	cands := make([]ranked, 0, len(wv.Neighbors)+1)
	for i, nb := range wv.Neighbors {
		if nb.IsNil() || nb == u {
			continue
		}
		nvec, err := ix.vectorOfVertex(nb)
		if err != nil {
			return err
		}
		cands = append(cands, ranked{ptr: nb, vec: nvec, dist: wv.EdgeDistances[i]})
	}
	uVec, err := ix.vectorOfVertex(u)
	if err != nil {
		return err
	}
	cands = append(cands, ranked{ptr: u, vec: uVec, dist: duw})

	chosen := robustPrune(ix.meta.DistanceKind, wVec, cands, ix.meta.M, ix.meta.MaxAlpha)
	neighbors := make([]host.Pointer, len(chosen))
	dists := make([]float32, len(chosen))
	for i, c := range chosen {
		neighbors[i] = c.ptr
		dists[i] = c.dist
	}
	updated := Vertex{HasPayload: wv.HasPayload, Payload: wv.Payload, VectorHead: wv.VectorHead, Neighbors: neighbors, EdgeDistances: dists}
	copy(data, encodeVertex(updated, ix.meta.M))
	return nil
}
