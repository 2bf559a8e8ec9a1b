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
	"github.com/usamoi/VectorChord-sub003/tuple"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// scannedCentroid pairs a decoded Centroid with the (page, slot)
// it was read from, so a caller descending through the tree can
// later splice a new chain-head page in by mutating that owner's
// `first` field in place.
type scannedCentroid struct {
	Centroid
	owner host.Pointer
}

// scanCentroidChain reads every live centroid tuple reachable from
// first, walking the `next` trailer link until NIL.
func scanCentroidChain(bm host.BufferManager, first host.PageID) ([]scannedCentroid, error) {
	var out []scannedCentroid
	cur := first
	for cur != host.NIL {
		pg, release, err := page.ReadPage(bm, cur)
		if err != nil {
			return nil, err
		}
		n := pg.NumSlots()
		next := pg.Next()
		for slot := 1; slot <= n; slot++ {
			data, ok := pg.Get(slot)
			if !ok {
				continue
			}
			out = append(out, scannedCentroid{
				Centroid: decodeCentroid(data),
				owner:    host.Pointer{Page: cur, Slot: host.Slot(slot)},
			})
		}
		release()
		cur = next
	}
	return out, nil
}

// descend walks the on-disk tree from the root chain down to the
// level-1 node nearest v (optionally residual, mirroring build's
// routing rule), returning that node's owner pointer (for
// splicing), its child leaf-chain first page, and the fully
// accumulated residual v - sum(chosen centroids) for residual
// encoding.
func descend(bm host.BufferManager, meta Meta, v []float32) (owner host.Pointer, leafFirst host.PageID, residual []float32, err error) {
	cur := meta.RootFirst
	residual = v
	for level := 0; level < meta.HeightOfRoot; level++ {
		cands, err := scanCentroidChain(bm, cur)
		if err != nil {
			return host.Pointer{}, 0, nil, err
		}
		if len(cands) == 0 {
			return host.Pointer{}, 0, nil, vxerr.Corruptf("rabitq: empty centroid chain at page %d", cur)
		}
		best := 0
		bestD := vector.Exact(meta.DistanceKind, residual, cands[0].Vector)
		for i := 1; i < len(cands); i++ {
			d := vector.Exact(meta.DistanceKind, residual, cands[i].Vector)
			if d < bestD {
				best, bestD = i, d
			}
		}
		owner = cands[best].owner
		cur = cands[best].First
		if meta.IsResidual {
			residual = vector.Residual(residual, cands[best].Vector)
		}
	}
	return owner, cur, residual, nil
}

// Insert attaches a new leaf tuple for payload/v, routing top-down
// through the existing tree and splicing a fresh chain-head page
// in (FIFO) if the target leaf chain's head page has no room
// (§4.F "Insert"). Insert never restructures the tree.
func (ix *Index) Insert(payload uint64, v []float32) error {
	if len(v) != ix.meta.Dims {
		return vxerr.Validationf("insert: vector has %d dims, index expects %d", len(v), ix.meta.Dims)
	}
	owner, leafFirst, residual, err := descend(ix.bm, ix.meta, v)
	if err != nil {
		return err
	}
	u := v
	if ix.meta.IsResidual {
		u = residual
	}
	leaf := Leaf{Payload: payload, Code: vector.Encode(u)}
	if ix.meta.RerankInTable {
		leaf.Full = v
	}
	return spliceAppendLeafAt(ix.bm, owner, leafFirst, leaf)
}

// spliceAppendLeaf is the Build-time entry point: the leaf chain's
// first page is always read fresh from owner's `first` field.
func spliceAppendLeaf(bm host.BufferManager, owner host.Pointer, leaf Leaf) error {
	first, err := readOwnerFirst(bm, owner)
	if err != nil {
		return err
	}
	return spliceAppendLeafAt(bm, owner, first, leaf)
}

func readOwnerFirst(bm host.BufferManager, owner host.Pointer) (host.PageID, error) {
	pg, release, err := page.ReadPage(bm, owner.Page)
	if err != nil {
		return 0, err
	}
	defer release()
	data, ok := pg.Get(int(owner.Slot))
	if !ok {
		return 0, vxerr.Corruptf("rabitq: centroid owner slot (%d,%d) missing", owner.Page, owner.Slot)
	}
	return tuple.U32At(data, 0), nil
}

// spliceAppendLeafAt appends enc(leaf) to the chain rooted at
// first. If the head page has no room, a fresh page is extended
// and spliced in as the new head (its next set to the old first),
// and owner's `first` field is updated in place to point at it
// (§4.F "splice at the chain head (FIFO)"). Guards are acquired
// one at a time per §4.A's ordering discipline.
func spliceAppendLeafAt(bm host.BufferManager, owner host.Pointer, first host.PageID, leaf Leaf) error {
	enc := encodeLeaf(leaf)

	headWR, err := page.WritePage(bm, first, true)
	if err != nil {
		return err
	}
	if slot, ok := headWR.Page.Alloc(enc); ok {
		setHeadSlot(headWR.Page, slot)
		headWR.Guard.Release()
		return nil
	}
	headWR.Guard.Release()

	trailer := make([]byte, page.TrailerSize)
	copy(trailer, first4(first))
	newID, newWR, err := page.ExtendPage(bm, trailer, true)
	if err != nil {
		return err
	}
	slot, ok := newWR.Page.Alloc(enc)
	if !ok {
		newWR.Guard.Release()
		return vxerr.OutOfResource(newID, len(enc))
	}
	setHeadSlot(newWR.Page, slot)
	newWR.Guard.Release()

	ownerWR, err := page.WritePage(bm, owner.Page, false)
	if err != nil {
		return err
	}
	buf, ok := ownerWR.Page.GetMut(int(owner.Slot))
	if !ok {
		ownerWR.Guard.Release()
		return vxerr.Corruptf("rabitq: centroid owner slot (%d,%d) missing", owner.Page, owner.Slot)
	}
	tuple.PutU32At(buf, 0, newID)
	ownerWR.Guard.Release()
	return nil
}

func first4(next host.PageID) []byte {
	b := make([]byte, 4)
	tuple.PutU32At(b, 0, next)
	return b
}

// leafHeadSlotOffset is the byte offset of Leaf.HeadSlot within an
// encoded leaf tuple: an 8-byte Payload field precedes it.
const leafHeadSlotOffset = 8

// setHeadSlot rewrites the just-allocated leaf tuple's head_slot
// self-consistency field in place so a later reader can detect a
// stale slot reference after a Reconstruct (§3 IVF tree "head_slot").
func setHeadSlot(pg *page.Page, slot int) {
	buf, ok := pg.GetMut(slot)
	if !ok {
		return
	}
	tuple.PutU16At(buf, leafHeadSlotOffset, uint16(slot))
}
