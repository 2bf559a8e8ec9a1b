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

package page

import (
	"encoding/binary"
	"sort"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// freeWindowBits is the number of page ids covered by one
// free-page bitmap page (§6 "32768 bits per page offset window").
const freeWindowBits = 32768
const freeBitmapBytes = freeWindowBits / 8
const freeTupleSize = 4 + freeBitmapBytes // base (u32) + bitmap

// Mark inserts ids into the free-page pool rooted at first,
// sorting-descending-deduplicating the input before walking the
// chain, and allocating a fresh chain page only once an existing
// tuple's window doesn't cover the id and the chain has been
// walked to its end (§4.B).
func Mark(bm host.BufferManager, first host.PageID, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]uint32(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	deduped := sorted[:1]
	for _, id := range sorted[1:] {
		if id != deduped[len(deduped)-1] {
			deduped = append(deduped, id)
		}
	}
	for _, id := range deduped {
		if err := markOne(bm, first, id); err != nil {
			return err
		}
	}
	return nil
}

func windowOf(id uint32) uint32 { return (id / freeWindowBits) * freeWindowBits }

func markOne(bm host.BufferManager, first host.PageID, id uint32) error {
	window := windowOf(id)
	cur := first
	for {
		if cur == NIL {
			return vxerr.Corruptf("free-page pool: chain exhausted before finding/allocating window %d", window)
		}
		g, err := bm.Write(cur, false)
		if err != nil {
			return err
		}
		pg := New(g.Bytes())
		if err := pg.Validate(); err != nil {
			return err
		}
		data, ok := pg.GetMut(1)
		if !ok {
			initFreeTuple(pg, window)
			data, _ = pg.GetMut(1)
			setBit(data[4:], id-window)
			g.Release()
			return nil
		}
		base := binary.LittleEndian.Uint32(data[0:4])
		if base == window {
			setBit(data[4:], id-window)
			g.Release()
			return nil
		}
		next := pg.Next()
		if next == NIL {
			newID, ng, err := bm.Extend(nil, false)
			if err != nil {
				g.Release()
				return err
			}
			pg.SetNext(newID)
			g.Release()
			npg := New(ng.Bytes())
			initFreeTuple(npg, window)
			data, _ := npg.GetMut(1)
			setBit(data[4:], id-window)
			ng.Release()
			return nil
		}
		g.Release()
		cur = next
	}
}

func initFreeTuple(pg *Page, window uint32) {
	buf := make([]byte, freeTupleSize)
	binary.LittleEndian.PutUint32(buf[0:4], window)
	if _, ok := pg.Alloc(buf); !ok {
		panic(vxerr.OutOfResource(0, len(buf)))
	}
}

func setBit(bitmap []byte, offset uint32) {
	bitmap[offset/8] |= 1 << (offset % 8)
}

func clearBit(bitmap []byte, offset uint32) bool {
	mask := byte(1 << (offset % 8))
	had := bitmap[offset/8]&mask != 0
	bitmap[offset/8] &^= mask
	return had
}

func firstSetBit(bitmap []byte) (uint32, bool) {
	for i, b := range bitmap {
		if b == 0 {
			continue
		}
		for j := 0; j < 8; j++ {
			if b&(1<<uint(j)) != 0 {
				return uint32(i*8 + j), true
			}
		}
	}
	return 0, false
}

// Fetch removes and returns one previously marked id from the
// pool rooted at first, or ok=false once the chain is exhausted
// without finding a set bit (§4.B). Every id returned has been
// previously marked and will not be returned again without an
// intervening Mark (§8 invariant 6).
func Fetch(bm host.BufferManager, first host.PageID) (uint32, bool, error) {
	cur := first
	for cur != NIL {
		g, err := bm.Write(cur, false)
		if err != nil {
			return 0, false, err
		}
		pg := New(g.Bytes())
		if err := pg.Validate(); err != nil {
			return 0, false, err
		}
		data, ok := pg.GetMut(1)
		if !ok {
			next := pg.Next()
			g.Release()
			cur = next
			continue
		}
		base := binary.LittleEndian.Uint32(data[0:4])
		bitmap := data[4:]
		if off, found := firstSetBit(bitmap); found {
			clearBit(bitmap, off)
			g.Release()
			return base + off, true, nil
		}
		next := pg.Next()
		g.Release()
		cur = next
	}
	return 0, false, nil
}
