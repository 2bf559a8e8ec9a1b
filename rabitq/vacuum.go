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
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vxlog"
)

// Bulkdelete walks every leaf chain reachable from the tree,
// reclaiming any leaf tuple for which callback(payload) reports
// true, compacting each chain page at a time via Reconstruct, and
// returning fully emptied chain pages to the free-page pool
// (§4.F "Vacuum").
func (ix *Index) Bulkdelete(callback func(payload uint64) bool) error {
	leafParents, err := leafChainFirsts(ix.bm, ix.meta)
	if err != nil {
		return err
	}
	var freed int
	var reclaimed []uint32
	for _, first := range leafParents {
		n, ids, err := vacuumChain(ix.bm, first, callback)
		if err != nil {
			return err
		}
		freed += n
		reclaimed = append(reclaimed, ids...)
	}
	if len(reclaimed) > 0 {
		if err := page.Mark(ix.bm, ix.meta.FreepagesFirst, reclaimed); err != nil {
			return err
		}
	}
	vxlog.Default().Infof("rabitq: bulkdelete reclaimed %d tuples, freed %d pages", freed, len(reclaimed))
	return nil
}

// leafChainFirsts collects the first-page id of every level-1
// node's leaf chain, by walking the tree down to height-1 and
// reading each surviving centroid's `first` field.
func leafChainFirsts(bm host.BufferManager, meta Meta) ([]host.PageID, error) {
	cur := []host.PageID{meta.RootFirst}
	for level := 0; level < meta.HeightOfRoot; level++ {
		var next []host.PageID
		for _, first := range cur {
			cands, err := scanCentroidChain(bm, first)
			if err != nil {
				return nil, err
			}
			for _, c := range cands {
				next = append(next, c.First)
			}
		}
		cur = next
	}
	return cur, nil
}

// vacuumChain compacts one leaf chain, page by page, dropping
// tuples the callback marks dead. A page left with zero surviving
// tuples after Reconstruct is unlinked from the chain and its id
// returned for reclamation; the chain's head page is never
// reclaimed even if briefly empty, since the owning centroid's
// `first` field still references it.
func vacuumChain(bm host.BufferManager, first host.PageID, callback func(uint64) bool) (deletedCount int, reclaimed []uint32, err error) {
	prev := host.NIL
	cur := first
	for cur != host.NIL {
		wr, err := page.WritePage(bm, cur, true)
		if err != nil {
			return deletedCount, reclaimed, err
		}
		n := wr.Page.NumSlots()
		var dead []int
		for slot := 1; slot <= n; slot++ {
			data, ok := wr.Page.Get(slot)
			if !ok {
				continue
			}
			leaf := decodeLeaf(data)
			if callback(leaf.Payload) {
				dead = append(dead, slot)
				deletedCount++
			}
		}
		next := wr.Page.Next()
		if len(dead) > 0 {
			wr.Page.Reconstruct(dead)
		}
		empty := wr.Page.NumSlots() == 0
		wr.Guard.Release()

		if empty && cur != first {
			// unlink cur from the chain: prev.next = cur.next
			pwr, err := page.WritePage(bm, prev, true)
			if err != nil {
				return deletedCount, reclaimed, err
			}
			pwr.Page.SetNext(next)
			pwr.Guard.Release()
			reclaimed = append(reclaimed, cur)
		} else {
			prev = cur
		}
		cur = next
	}
	return deletedCount, reclaimed, nil
}
