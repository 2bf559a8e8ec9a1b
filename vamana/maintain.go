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
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
	"github.com/usamoi/VectorChord-sub003/vxlog"
)

// Maintain repairs the graph around tombstoned vertices and
// reclaims their storage (§4.G "Maintain: bridge, then vacuum").
// It runs in three passes over the whole vertex chain: (1) load
// every vertex and partition it into live/dead, (2) for every live
// vertex whose neighbor list touches a dead vertex, replace that
// edge by bridging to the dead vertex's own live neighbors and
// re-running robust_prune, and (3) once no live vertex references
// a dead one any more, physically reclaim its vertex and vector
// tuples and return emptied pages to the free-page pool, modeled on
// rabitq's vacuumChain walk/unlink pattern.
func (ix *Index) Maintain() error {
	vertexOf := map[host.Pointer]Vertex{}
	deadSet := map[host.Pointer]bool{}
	var order []host.Pointer
	var fallbackStart host.Pointer
	haveFallback := false

	cur := ix.meta.VerticesFirst
	for cur != host.NIL {
		pg, release, err := page.ReadPage(ix.bm, cur)
		if err != nil {
			return err
		}
		n := pg.NumSlots()
		for slot := 1; slot <= n; slot++ {
			data, ok := pg.Get(slot)
			if !ok {
				continue
			}
			ptr := host.Pointer{Page: cur, Slot: host.Slot(slot)}
			v := decodeVertex(data, ix.meta.M)
			vertexOf[ptr] = v
			order = append(order, ptr)
			if v.HasPayload {
				if !haveFallback {
					fallbackStart = ptr
					haveFallback = true
				}
			} else {
				deadSet[ptr] = true
			}
		}
		next := pg.Next()
		release()
		cur = next
	}

	vecCache := map[host.Pointer][]float32{}
	vectorOf := func(ptr host.Pointer) ([]float32, error) {
		if v, ok := vecCache[ptr]; ok {
			return v, nil
		}
		v, err := ix.fetchVectorAt(vertexOf[ptr].VectorHead)
		if err != nil {
			return nil, err
		}
		vecCache[ptr] = v
		return v, nil
	}

	var bridged int
	for _, ptr := range order {
		v := vertexOf[ptr]
		if !v.HasPayload {
			continue
		}
		touchesDead := false
		for _, nb := range v.Neighbors {
			if !nb.IsNil() && deadSet[nb] {
				touchesDead = true
				break
			}
		}
		if !touchesDead {
			continue
		}

		wVec, err := vectorOf(ptr)
		if err != nil {
			return err
		}
		seen := map[host.Pointer]bool{ptr: true}
		var cands []ranked
		for i, nb := range v.Neighbors {
			if nb.IsNil() {
				continue
			}
			if !deadSet[nb] {
				if seen[nb] {
					continue
				}
				seen[nb] = true
				nvec, err := vectorOf(nb)
				if err != nil {
					return err
				}
				cands = append(cands, ranked{ptr: nb, vec: nvec, dist: v.EdgeDistances[i]})
				continue
			}
			dv := vertexOf[nb]
			for _, nb2 := range dv.Neighbors {
				if nb2.IsNil() || seen[nb2] || deadSet[nb2] {
					continue
				}
				seen[nb2] = true
				nvec2, err := vectorOf(nb2)
				if err != nil {
					return err
				}
				cands = append(cands, ranked{ptr: nb2, vec: nvec2, dist: vector.Exact(ix.meta.DistanceKind, wVec, nvec2)})
			}
		}

		chosen := robustPrune(ix.meta.DistanceKind, wVec, cands, ix.meta.M, ix.meta.MaxAlpha)
		neighbors := make([]host.Pointer, len(chosen))
		dists := make([]float32, len(chosen))
		for i, c := range chosen {
			neighbors[i] = c.ptr
			dists[i] = c.dist
		}
		v.Neighbors = neighbors
		v.EdgeDistances = dists
		vertexOf[ptr] = v

		wr, err := page.WritePage(ix.bm, ptr.Page, false)
		if err != nil {
			return err
		}
		data, ok := wr.Page.GetMut(int(ptr.Slot))
		if !ok {
			wr.Guard.Release()
			return vxerr.Corruptf("vamana: vertex tuple (%d,%d) missing", ptr.Page, ptr.Slot)
		}
		copy(data, encodeVertex(v, ix.meta.M))
		wr.Guard.Release()
		bridged++
	}

	referenced := map[host.Pointer]bool{}
	for _, ptr := range order {
		v := vertexOf[ptr]
		if !v.HasPayload {
			continue
		}
		for _, nb := range v.Neighbors {
			if !nb.IsNil() {
				referenced[nb] = true
			}
		}
	}

	reclaimVertices := map[host.Pointer]bool{}
	reclaimVectors := map[host.Pointer]bool{}
	startDead := false
	for ptr := range deadSet {
		if referenced[ptr] {
			continue
		}
		reclaimVertices[ptr] = true
		reclaimVectors[vertexOf[ptr].VectorHead] = true
		if ptr == ix.meta.Start {
			startDead = true
		}
	}

	nVerts, freedVertPages, err := reclaimChainPointers(ix.bm, ix.meta.VerticesFirst, reclaimVertices)
	if err != nil {
		return err
	}
	nVecs, freedVecPages, err := reclaimChainPointers(ix.bm, ix.meta.VectorsFirst, reclaimVectors)
	if err != nil {
		return err
	}

	var freed []uint32
	freed = append(freed, freedVertPages...)
	freed = append(freed, freedVecPages...)
	if len(freed) > 0 {
		if err := page.Mark(ix.bm, ix.meta.FreepagesFirst, freed); err != nil {
			return err
		}
	}

	if startDead {
		if haveFallback && !reclaimVertices[fallbackStart] {
			if err := ix.setStart(fallbackStart); err != nil {
				return err
			}
		} else {
			replacement := host.NilPointer
			for _, ptr := range order {
				if vertexOf[ptr].HasPayload && !reclaimVertices[ptr] {
					replacement = ptr
					break
				}
			}
			if err := ix.setStart(replacement); err != nil {
				return err
			}
		}
	}

	vxlog.Default().Infof("vamana: maintain bridged %d vertices, reclaimed %d vertex tuples (%d pages) and %d vector tuples (%d pages)",
		bridged, nVerts, len(freedVertPages), nVecs, len(freedVecPages))
	return nil
}

// reclaimChainPointers walks the append-only chain rooted at first,
// freeing every tuple whose pointer is in drop. Surviving tuples
// keep their slot numbers, since live vertices and meta.Start refer
// to them by (page, slot); only a page left with no live tuple is
// compacted with Reconstruct. Emptied pages are unlinked and
// returned, except the chain's head page, which is kept -- mirrors
// rabitq's vacuumChain, keyed on an explicit pointer set rather than a
// payload predicate since vamana's two reclaimable tuple kinds
// (vertex, vector) don't carry a payload of their own to test.
func reclaimChainPointers(bm host.BufferManager, first host.PageID, drop map[host.Pointer]bool) (reclaimedCount int, freedPages []uint32, err error) {
	if len(drop) == 0 {
		return 0, nil, nil
	}
	prev := host.NIL
	cur := first
	for cur != host.NIL {
		wr, err := page.WritePage(bm, cur, true)
		if err != nil {
			return reclaimedCount, freedPages, err
		}
		n := wr.Page.NumSlots()
		var dead []int
		for slot := 1; slot <= n; slot++ {
			if _, ok := wr.Page.Get(slot); !ok {
				continue
			}
			if drop[host.Pointer{Page: cur, Slot: host.Slot(slot)}] {
				dead = append(dead, slot)
				reclaimedCount++
			}
		}
		next := wr.Page.Next()
		for _, s := range dead {
			wr.Page.Free(s)
		}
		empty := true
		for slot := 1; slot <= n; slot++ {
			if _, ok := wr.Page.Get(slot); ok {
				empty = false
				break
			}
		}
		if empty && len(dead) > 0 {
			wr.Page.Reconstruct(nil)
		}
		wr.Guard.Release()

		if empty && cur != first {
			pwr, err := page.WritePage(bm, prev, true)
			if err != nil {
				return reclaimedCount, freedPages, err
			}
			pwr.Page.SetNext(next)
			pwr.Guard.Release()
			freedPages = append(freedPages, cur)
		} else {
			prev = cur
		}
		cur = next
	}
	return reclaimedCount, freedPages, nil
}
