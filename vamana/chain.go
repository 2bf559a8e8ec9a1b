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

// appendTuple appends enc to the append-only chain rooted at
// first, walking forward via the Next trailer link until it finds
// room or runs off the end of the chain, in which case it extends
// a fresh page and links it in. Unlike rabitq's leaf chains
// (which splice new pages in at the head so the routing owner's
// `first` field stays correct), vertex/vector chains have no
// owner needing an up-to-date head pointer: they exist purely for
// enumeration (vacuum, maintain), and every real reference to a
// tuple goes by its exact (page, slot), so appending at the tail
// is simpler and equally correct (see DESIGN.md).
func appendTuple(bm host.BufferManager, first host.PageID, enc []byte) (host.Pointer, error) {
	cur := first
	for {
		wr, err := page.WritePage(bm, cur, false)
		if err != nil {
			return host.Pointer{}, err
		}
		if slot, ok := wr.Page.Alloc(enc); ok {
			wr.Guard.Release()
			return host.Pointer{Page: cur, Slot: host.Slot(slot)}, nil
		}
		next := wr.Page.Next()
		if next != host.NIL {
			wr.Guard.Release()
			cur = next
			continue
		}
		// cur is the tail and full; extend and link while still
		// holding cur's guard so a concurrent appender can't also
		// decide to extend past the same tail.
		newID, newWR, err := page.ExtendPage(bm, nil, false)
		if err != nil {
			wr.Guard.Release()
			return host.Pointer{}, err
		}
		slot, ok := newWR.Page.Alloc(enc)
		if !ok {
			newWR.Guard.Release()
			wr.Guard.Release()
			return host.Pointer{}, vxerr.OutOfResource(newID, len(enc))
		}
		newWR.Guard.Release()
		wr.Page.SetNext(newID)
		wr.Guard.Release()
		return host.Pointer{Page: newID, Slot: host.Slot(slot)}, nil
	}
}
