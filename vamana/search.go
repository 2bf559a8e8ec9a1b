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
	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/distance"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// frontierItem is one discovered-but-unvisited vertex waiting in
// search's candidate frontier.
type frontierItem struct {
	ptr  host.Pointer
	dist distance.Scalar
}

// popMin removes and returns the smallest-distance item from
// frontier. distance.WindowHeap is a poor fit here: its Source
// latches "exhausted" the first time it runs dry, but the graph
// search frontier keeps growing as vertices are visited, so a
// plain linear-scan pop over a small slice is simpler and
// correct at the scale beam search actually holds open (see
// DESIGN.md).
func popMin(frontier []frontierItem) ([]frontierItem, frontierItem, bool) {
	if len(frontier) == 0 {
		return frontier, frontierItem{}, false
	}
	min := 0
	for i := 1; i < len(frontier); i++ {
		if frontier[i].dist < frontier[min].dist {
			min = i
		}
	}
	item := frontier[min]
	frontier[min] = frontier[len(frontier)-1]
	frontier = frontier[:len(frontier)-1]
	return frontier, item, true
}

func peekMin(frontier []frontierItem) (distance.Scalar, bool) {
	if len(frontier) == 0 {
		return 0, false
	}
	best := frontier[0].dist
	for _, f := range frontier[1:] {
		if f.dist < best {
			best = f.dist
		}
	}
	return best, true
}

// search runs the beam-search traversal common to Insert and
// Search (§4.G "Search(query, ef, beam)"): a frontier of
// discovered-but-unvisited vertices, expanded beam vertices at a
// time, feeding an ef-bounded Results set. Vertex vectors here
// are stored at full precision (graph construction never
// quantizes), so the distance computed during traversal is
// already exact rather than merely a lower bound -- see
// DESIGN.md for why that satisfies the spec's generic "(lower
// bound) distance" language.
func (ix *Index) search(query []float32, ef, beam int) ([]ranked, error) {
	if ix.meta.Start.IsNil() {
		return nil, nil
	}
	if ef < 1 {
		ef = 1
	}
	if beam < 1 {
		beam = 1
	}

	visited := map[host.Pointer]bool{}
	results := distance.NewResults[ranked](ef)
	var frontier []frontierItem

	startVec, err := ix.vectorOfVertex(ix.meta.Start)
	if err != nil {
		return nil, err
	}
	d0 := vector.Exact(ix.meta.DistanceKind, query, startVec)
	frontier = append(frontier, frontierItem{ptr: ix.meta.Start, dist: distance.From(d0)})
	results.Push(distance.From(d0), ranked{ptr: ix.meta.Start, vec: startVec, dist: d0})

	for {
		dmin, ok := peekMin(frontier)
		if !ok {
			break
		}
		if th, okTh := results.PeekEfTh(); okTh && results.Len() >= ef && dmin > th {
			break
		}
		progressed := false
		for i := 0; i < beam; i++ {
			var item frontierItem
			frontier, item, ok = popMin(frontier)
			if !ok {
				break
			}
			progressed = true
			if visited[item.ptr] {
				continue
			}
			visited[item.ptr] = true

			vtx, err := ix.readVertex(item.ptr)
			if err != nil {
				return nil, err
			}
			for _, nb := range vtx.Neighbors {
				if nb.IsNil() || visited[nb] {
					continue
				}
				nvec, err := ix.vectorOfVertex(nb)
				if err != nil {
					return nil, err
				}
				d := vector.Exact(ix.meta.DistanceKind, query, nvec)
				ds := distance.From(d)
				results.Push(ds, ranked{ptr: nb, vec: nvec, dist: d})
				frontier = append(frontier, frontierItem{ptr: nb, dist: ds})
			}
		}
		if !progressed {
			break
		}
	}

	return results.Drain(), nil
}

// Search returns up to k live payloads nearest query (§4.G, host
// query path). Query-time beam defaults to beam_construction
// capped by ef_search, since the persisted query-time
// configuration (§6) does not expose a separate graph beam knob
// (see DESIGN.md).
func (ix *Index) Search(query []float32, k int, q config.Query) ([]uint64, error) {
	if len(query) != ix.meta.Dims {
		return nil, vxerr.Validationf("vamana search: query has %d dims, index expects %d", len(query), ix.meta.Dims)
	}
	if k < 1 {
		return nil, vxerr.Validationf("vamana search: k must be >= 1")
	}
	beam := ix.meta.BeamConstruction
	if q.EfSearch > 0 && q.EfSearch < beam {
		beam = q.EfSearch
	}
	hits, err := ix.search(query, q.EfSearch, beam)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, k)
	for _, r := range hits {
		vtx, err := ix.readVertex(r.ptr)
		if err != nil {
			return nil, err
		}
		if !vtx.HasPayload {
			continue
		}
		out = append(out, vtx.Payload)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (ix *Index) readVertex(ptr host.Pointer) (Vertex, error) {
	pg, release, err := page.ReadPage(ix.bm, ptr.Page)
	if err != nil {
		return Vertex{}, err
	}
	defer release()
	data, ok := pg.Get(int(ptr.Slot))
	if !ok {
		return Vertex{}, vxerr.Corruptf("vamana: vertex tuple (%d,%d) missing", ptr.Page, ptr.Slot)
	}
	return decodeVertex(data, ix.meta.M), nil
}

// vectorOfVertex resolves vertex pointer ptr to its full-precision
// vector, indirecting through the vertex tuple's vector_head.
func (ix *Index) vectorOfVertex(ptr host.Pointer) ([]float32, error) {
	v, err := ix.readVertex(ptr)
	if err != nil {
		return nil, err
	}
	return ix.fetchVectorAt(v.VectorHead)
}

func (ix *Index) fetchVectorAt(ptr host.Pointer) ([]float32, error) {
	pg, release, err := page.ReadPage(ix.bm, ptr.Page)
	if err != nil {
		return nil, err
	}
	defer release()
	data, ok := pg.Get(int(ptr.Slot))
	if !ok {
		return nil, vxerr.Corruptf("vamana: vector tuple (%d,%d) missing", ptr.Page, ptr.Slot)
	}
	return decodeVectorTuple(data), nil
}
